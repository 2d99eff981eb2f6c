// Package stream implements the gateway's TCP observer protocol: a
// plain byte stream of CAN frames, each encoded as a 4-byte big-endian
// identifier (SocketCAN flag bits included), one length byte, and the
// payload. Observers use it to watch or inject raw bus traffic; the
// framing is deliberately dumb so a UAVCAN-aware client can run its own
// transfer reassembly on what it receives.
package stream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kstaniek/uavcan-gateway/internal/can"
	"github.com/kstaniek/uavcan-gateway/internal/metrics"
)

// Codec encodes/decodes observer-stream frames. Stateless and safe for
// concurrent use.
type Codec struct{}

// ErrInvalidLength is returned when a frame length is outside 0..8.
var ErrInvalidLength = errors.New("stream: invalid length")

// ErrTruncatedFrame is returned when the underlying reader ends inside a
// frame's payload. A stream that ends inside the 4-byte id yields
// io.ErrUnexpectedEOF, and one that ends right after the id yields io.EOF.
var ErrTruncatedFrame = errors.New("stream: truncated frame")

// headerLen is id(4) + length(1).
const headerLen = 5

// EncodedSize returns the exact wire size of one frame.
func EncodedSize(f can.Frame) int { return headerLen + int(f.Len&0x7F) }

// AppendFrame appends the wire representation of one frame to dst.
func AppendFrame(dst []byte, f can.Frame) []byte {
	var id [4]byte
	binary.BigEndian.PutUint32(id[:], f.CANID)
	dst = append(dst, id[:]...)
	dst = append(dst, f.Len)
	ln := int(f.Len & 0x7F)
	if ln > 0 {
		dst = append(dst, f.Data[:ln]...)
	}
	return dst
}

// Encode packs frames into a single buffer.
func (c *Codec) Encode(frames []can.Frame) []byte {
	if len(frames) == 0 {
		return nil
	}
	size := 0
	for _, f := range frames {
		size += EncodedSize(f)
	}
	out := make([]byte, 0, size)
	for _, f := range frames {
		out = AppendFrame(out, f)
	}
	return out
}

// EncodeTo writes the wire representation of frames to w and returns
// bytes written.
func (c *Codec) EncodeTo(w io.Writer, frames []can.Frame) (int, error) {
	var scratch bytes.Buffer
	scratch.Grow(len(frames) * (headerLen + can.MaxDataLen))
	for _, f := range frames {
		scratch.Write(AppendFrame(nil, f))
	}
	n, err := w.Write(scratch.Bytes())
	if err != nil {
		return n, fmt.Errorf("stream encode: %w", err)
	}
	return n, nil
}

// Decode reads exactly one frame from r. It returns io.EOF if called at
// a clean frame boundary with no more data available, and also when the
// stream ends right after a frame's id, before its length byte.
func (c *Codec) Decode(r io.Reader) (can.Frame, error) {
	var f can.Frame
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:4]); err != nil {
		return f, err
	}
	f.CANID = binary.BigEndian.Uint32(hdr[:4])
	// Read the length byte separately; a zero-byte read here means a
	// clean boundary EOF rather than truncation.
	n, err := r.Read(hdr[4:5])
	if err != nil {
		return f, err
	}
	if n == 0 {
		return f, io.EOF
	}
	ln := int(hdr[4] & 0x7F) // high bit reserved for future flags
	if ln > can.MaxDataLen {
		metrics.IncMalformed()
		return f, fmt.Errorf("stream decode: %w (%d)", ErrInvalidLength, ln)
	}
	f.Len = uint8(ln)
	if ln > 0 {
		if _, err := io.ReadFull(r, f.Data[:ln]); err != nil {
			metrics.IncMalformed()
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return f, fmt.Errorf("stream decode payload: %w", ErrTruncatedFrame)
			}
			return f, fmt.Errorf("stream decode payload: %w", err)
		}
	}
	return f, nil
}

// DecodeN decodes up to max frames (if max>0) or until EOF (if max<=0),
// invoking onFrame for each. It returns the number of frames decoded
// and the terminal error (which can be io.EOF).
func (c *Codec) DecodeN(r io.Reader, max int, onFrame func(can.Frame)) (int, error) {
	var n int
	for max <= 0 || n < max {
		fr, err := c.Decode(r)
		if err != nil {
			return n, err
		}
		onFrame(fr)
		n++
	}
	return n, nil
}
