package transport

import (
	"io"

	"github.com/kstaniek/uavcan-gateway/internal/can"
	"github.com/kstaniek/uavcan-gateway/internal/stream"
)

// FrameDecoder decodes a single CAN frame from a stream.
type FrameDecoder interface {
	Decode(r io.Reader) (can.Frame, error)
}

// MultiFrameDecoder optionally drains multiple frames from a stream.
type MultiFrameDecoder interface {
	DecodeN(r io.Reader, max int, onFrame func(can.Frame)) (int, error)
}

// FrameBatchEncoder can encode batches efficiently (either to bytes or
// directly to a writer).
type FrameBatchEncoder interface {
	Encode([]can.Frame) []byte
	EncodeTo(w io.Writer, frames []can.Frame) (int, error)
}

// FrameSink is a generic CAN frame transmission target. The gateway's
// sinks (PriorityTx-backed writers) are expected to hand frames to the
// device in arbitration order among what they have queued; the UAVCAN
// engine relies on equal-id FIFO to keep a transfer's frames in
// sequence.
type FrameSink interface {
	SendFrame(can.Frame) error
}

// Compile-time assertions that *stream.Codec satisfies the optional
// capabilities the TCP server probes for.
var (
	_ FrameDecoder      = (*stream.Codec)(nil)
	_ MultiFrameDecoder = (*stream.Codec)(nil)
	_ FrameBatchEncoder = (*stream.Codec)(nil)
)
