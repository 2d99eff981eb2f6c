//go:build linux

package socketcan

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/kstaniek/uavcan-gateway/internal/can"
)

type Device struct {
	fd int
}

func Open(iface string) (*Device, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socket(AF_CAN): %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 0); err != nil {
		// Older kernels may not know this option; ignore ENOPROTOOPT
		if err != unix.ENOPROTOOPT {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("disable CAN FD: %w", err)
		}
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("if %q: %w", iface, err)
	}
	sa := &unix.SockaddrCAN{Ifindex: ifi.Index}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind(can@%s): %w", iface, err)
	}
	return &Device{fd: fd}, nil
}

func (d *Device) Close() error { return unix.Close(d.fd) }

// Filter is one kernel-side acceptance filter: a frame is delivered
// when received_id & Mask == ID & Mask.
type Filter struct {
	ID   uint32
	Mask uint32
}

// ExtendedOnlyFilter accepts all extended-id data frames and nothing
// else; UAVCAN traffic never uses standard ids.
func ExtendedOnlyFilter() Filter {
	return Filter{ID: can.CAN_EFF_FLAG, Mask: can.CAN_EFF_FLAG | can.CAN_RTR_FLAG}
}

// MessageTypeFilter accepts extended frames whose UAVCAN message data
// type id matches typeID (data_type_id occupies bits 23..8 of the
// frame id; bit 7 clear selects message frames).
func MessageTypeFilter(typeID uint16) Filter {
	return Filter{
		ID:   can.CAN_EFF_FLAG | uint32(typeID)<<8,
		Mask: can.CAN_EFF_FLAG | can.CAN_RTR_FLAG | 0xFFFF<<8 | 1<<7,
	}
}

// SetFilters installs kernel-side acceptance filters so the gateway is
// not woken for traffic it will drop anyway. An empty slice restores
// accept-all.
func (d *Device) SetFilters(filters []Filter) error {
	if len(filters) == 0 {
		return unix.SetsockoptCanRawFilter(d.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, nil)
	}
	kf := make([]unix.CanFilter, len(filters))
	for i, f := range filters {
		kf[i] = unix.CanFilter{Id: f.ID, Mask: f.Mask}
	}
	if err := unix.SetsockoptCanRawFilter(d.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, kf); err != nil {
		return fmt.Errorf("set can filters: %w", err)
	}
	return nil
}

// ReadFrame reads one classic CAN frame from the raw CAN socket.
func (d *Device) ReadFrame(fr *can.Frame) error {
	var buf [unix.CAN_MTU]byte // classic CAN MTU = 16 bytes
	n, err := unix.Read(d.fd, buf[:])
	if err != nil {
		return err
	}
	if n != unix.CAN_MTU {
		return fmt.Errorf("short read: %d", n)
	}

	// struct can_frame (linux/can.h):
	//   can_id  u32   [0:4]  (includes EFF/RTR/ERR flags)
	//   can_dlc u8    [4]
	//   pad     3B    [5:8]
	//   data    [8]   [8:16]
	//
	// NOTE: The kernel provides fields in host byte order. On common Linux
	// archs (little-endian) this matches binary.LittleEndian. If you ever
	// target big-endian, switch to BigEndian here.
	id := binary.LittleEndian.Uint32(buf[0:4])
	dlc := int(buf[4])
	if dlc < 0 || dlc > can.MaxDataLen {
		dlc = can.MaxDataLen
	}

	fr.CANID = id
	fr.Len = uint8(dlc)
	copy(fr.Data[:], buf[8:8+dlc])
	return nil
}

// WriteFrame writes one classic CAN frame to the raw CAN socket.
func (d *Device) WriteFrame(fr can.Frame) error {
	var buf [unix.CAN_MTU]byte
	binary.LittleEndian.PutUint32(buf[0:4], fr.CANID)
	buf[4] = fr.Len
	copy(buf[8:], fr.Data[:fr.Len])
	_, err := unix.Write(d.fd, buf[:])
	return err
}
