package serial

import (
	"bytes"

	"github.com/kstaniek/uavcan-gateway/internal/can"
	"github.com/kstaniek/uavcan-gateway/internal/metrics"
)

// Codec speaks the SLCAN (Lawicel) ASCII protocol used by USB-CAN
// adapters common on UAVCAN buses. Each command is a single line
// terminated by CR:
//
//	T iiiiiiii l dd..  extended frame: 8 hex id digits, 1 hex DLC, DLC data bytes
//	t iii l dd..       standard frame: 3 hex id digits
//	r/R                remote frames: not CAN payload traffic, skipped
//	z/Z                transmit acks from the adapter, skipped
//
// Stateless and safe for concurrent use.
type Codec struct{}

const slcanCR = '\r'

// maxCmdLen bounds a plausible command line: 'T' + 8 id + 1 dlc + 16
// data digits + CR. Anything longer without a CR is garbage.
const maxCmdLen = 1 + 8 + 1 + 16 + 1

// CompactBuffer reclaims consumed prefix capacity when the underlying
// buffer grows too large relative to unread bytes. It returns true if
// compaction occurred. Thresholds chosen to avoid excessive copying.
func CompactBuffer(b *bytes.Buffer) bool {
	data := b.Bytes()
	// If buffer size < 1KB, skip.
	if len(data) < 1024 {
		return false
	}
	// If unread < 25% of capacity, compact.
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
		return true
	}
	return false
}

const hexDigits = "0123456789ABCDEF"

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// Encode renders one frame as an SLCAN command line. UAVCAN traffic is
// always extended; standard-id frames still encode correctly as 't'
// commands so raw observer traffic relayed from TCP survives the trip.
func (Codec) Encode(f can.Frame) []byte {
	ext := f.IsExtended()
	id := f.Arbitration()
	n := int(f.Len)
	if n > can.MaxDataLen {
		n = can.MaxDataLen
	}

	idDigits := 3
	cmd := byte('t')
	if ext {
		idDigits = 8
		cmd = 'T'
	}
	out := make([]byte, 0, 1+idDigits+1+2*n+1)
	out = append(out, cmd)
	for i := idDigits - 1; i >= 0; i-- {
		out = append(out, hexDigits[(id>>(4*i))&0xF])
	}
	out = append(out, hexDigits[n])
	for _, b := range f.Data[:n] {
		out = append(out, hexDigits[b>>4], hexDigits[b&0xF])
	}
	return append(out, slcanCR)
}

// DecodeStream consumes complete SLCAN lines from in and emits decoded
// frames via out. Partial lines stay buffered for the next read; junk
// (line noise, adapter status responses, malformed hex) is skipped with
// the malformed counter bumped where it indicates corruption rather
// than a benign ack.
func (Codec) DecodeStream(in *bytes.Buffer, out func(can.Frame)) error {
	for {
		_ = CompactBuffer(in)
		data := in.Bytes()
		cr := bytes.IndexByte(data, slcanCR)
		if cr < 0 {
			// No complete line. A run longer than any valid command
			// without a terminator is noise; drop it so the buffer
			// cannot grow without bound on a glitching link.
			if len(data) > maxCmdLen {
				metrics.IncMalformed()
				in.Next(len(data) - maxCmdLen)
			}
			return nil
		}
		line := data[:cr]
		if fr, ok := parseLine(line); ok {
			out(fr)
			metrics.IncSerialRx()
		}
		in.Next(cr + 1)
	}
}

// parseLine decodes one CR-stripped SLCAN line. ok=false means the line
// carried no frame (ack, status, or malformed).
func parseLine(line []byte) (can.Frame, bool) {
	if len(line) == 0 {
		return can.Frame{}, false
	}
	var idDigits int
	var ext bool
	switch line[0] {
	case 'T':
		idDigits, ext = 8, true
	case 't':
		idDigits, ext = 3, false
	case 'z', 'Z', '\a':
		// Transmit ack / bell (error) from the adapter; no frame.
		return can.Frame{}, false
	default:
		// Unknown command: adapters also emit version/status lines.
		// Not UAVCAN corruption, skip silently.
		return can.Frame{}, false
	}
	if len(line) < 1+idDigits+1 {
		metrics.IncMalformed()
		return can.Frame{}, false
	}
	var id uint32
	for _, c := range line[1 : 1+idDigits] {
		n, ok := hexNibble(c)
		if !ok {
			metrics.IncMalformed()
			return can.Frame{}, false
		}
		id = id<<4 | uint32(n)
	}
	dlc, ok := hexNibble(line[1+idDigits])
	if !ok || dlc > can.MaxDataLen {
		metrics.IncMalformed()
		return can.Frame{}, false
	}
	if len(line) != 1+idDigits+1+2*int(dlc) {
		metrics.IncMalformed()
		return can.Frame{}, false
	}
	var f can.Frame
	if ext {
		f.CANID = (id & can.CAN_EFF_MASK) | can.CAN_EFF_FLAG
	} else {
		f.CANID = id & can.CAN_SFF_MASK
	}
	f.Len = dlc
	for i := 0; i < int(dlc); i++ {
		hi, ok1 := hexNibble(line[1+idDigits+1+2*i])
		lo, ok2 := hexNibble(line[1+idDigits+1+2*i+1])
		if !ok1 || !ok2 {
			metrics.IncMalformed()
			return can.Frame{}, false
		}
		f.Data[i] = hi<<4 | lo
	}
	return f, true
}
