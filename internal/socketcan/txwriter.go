//go:build linux

package socketcan

import (
	"context"
	"errors"

	"github.com/kstaniek/uavcan-gateway/internal/can"
	"github.com/kstaniek/uavcan-gateway/internal/metrics"
	"github.com/kstaniek/uavcan-gateway/internal/transport"
)

var ErrTxOverflow = errors.New("socketcan tx overflow")

// Dev is the minimal interface needed by the backend and TXWriter.
// Implemented by *Device in production and by fakes in tests.
type Dev interface {
	ReadFrame(*can.Frame) error
	WriteFrame(can.Frame) error
	Close() error
}

// TXWriter funnels all SocketCAN writes through a single goroutine in
// CAN arbitration order, mirroring the serial TXWriter behavior.
type TXWriter struct{ base *transport.PriorityTx }

// NewTXWriter creates a SocketCAN TXWriter holding at most buf queued frames.
func NewTXWriter(parent context.Context, dev Dev, buf int) *TXWriter {
	send := func(fr can.Frame) error { return dev.WriteFrame(fr) }
	hooks := transport.Hooks{
		OnError: func(err error) { metrics.IncError(metrics.ErrSocketCANWrite) },
		OnAfter: func() { metrics.IncSocketCANTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSocketCANOver)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewPriorityTx(parent, buf, send, hooks)}
}

// SendFrame queues a frame for asynchronous device write (drops with
// ErrTxOverflow when the queue is full).
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.SendFrame(fr) }

// Close stops the writer and waits for the worker goroutine to finish.
func (w *TXWriter) Close() { w.base.Close() }
