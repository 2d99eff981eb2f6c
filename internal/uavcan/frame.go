package uavcan

import "github.com/kstaniek/uavcan-gateway/internal/can"

// MaxFrameDataLength is the classic CAN 2.0B payload capacity.
const MaxFrameDataLength = 8

// Frame is one transport datagram: a 29-bit arbitration id and up to
// MaxFrameDataLength bytes of payload, the last of which is always a
// TailByte once the frame holds at least one byte.
type Frame struct {
	ID   FrameID
	Data [MaxFrameDataLength]byte
	Len  uint8
}

// Payload returns the valid prefix of Data.
func (f *Frame) Payload() []byte { return f.Data[:f.Len] }

// Tail returns the frame's tail byte. Callers must ensure Len > 0.
func (f *Frame) Tail() TailByte { return TailByte(f.Data[f.Len-1]) }

// FullTransferID names the transfer this frame belongs to.
func (f *Frame) FullTransferID() FullTransferID {
	return FullTransferID{FrameID: f.ID, TransferID: f.Tail().TransferID()}
}

// ToCANFrame converts a uavcan Frame to the gateway's generic CAN
// frame carrier, setting the extended-id flag the way
// internal/socketcan and internal/serial expect it.
func (f Frame) ToCANFrame() can.Frame {
	var out can.Frame
	out.CANID = uint32(f.ID) | can.CAN_EFF_FLAG
	out.Len = f.Len
	copy(out.Data[:], f.Data[:f.Len])
	return out
}

// FrameFromCANFrame converts a generic CAN frame carrier (as produced
// by the serial/SocketCAN backends) into a uavcan Frame. The EFF flag
// and any RTR/ERR bits are stripped; callers on a SocketCAN backend
// always see EFF set for uavcan traffic, matching the 29-bit id space
// this package operates in.
func FrameFromCANFrame(cf can.Frame) Frame {
	var f Frame
	f.ID = NewFrameID(cf.CANID & can.CAN_EFF_MASK)
	f.Len = cf.Len
	copy(f.Data[:], cf.Data[:cf.Len])
	return f
}
