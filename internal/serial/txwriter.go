package serial

import (
	"context"
	"errors"

	"github.com/kstaniek/uavcan-gateway/internal/can"
	"github.com/kstaniek/uavcan-gateway/internal/logging"
	"github.com/kstaniek/uavcan-gateway/internal/metrics"
	"github.com/kstaniek/uavcan-gateway/internal/transport"
)

var ErrTxOverflow = errors.New("serial tx overflow")

// TXWriter funnels all adapter writes through one goroutine, draining
// in CAN arbitration order (see transport.PriorityTx).
type TXWriter struct{ base *transport.PriorityTx }

// NewTXWriter creates a serial TXWriter holding at most buf queued frames.
func NewTXWriter(parent context.Context, sp Port, codec Codec, buf int) *TXWriter {
	send := func(fr can.Frame) error {
		_, err := sp.Write(codec.Encode(fr))
		return err
	}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrSerialWrite)
			logging.L().Error("serial_write_error", "error", err)
		},
		OnAfter: func() { metrics.IncSerialTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSerialOverflow)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewPriorityTx(parent, buf, send, hooks)}
}

// SendFrame queues a frame for asynchronous write (drops with
// ErrTxOverflow when the queue is full).
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.SendFrame(fr) }

// Close stops the writer and waits for the worker goroutine to exit.
func (w *TXWriter) Close() { w.base.Close() }
