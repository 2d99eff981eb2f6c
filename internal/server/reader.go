package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/uavcan-gateway/internal/can"
	"github.com/kstaniek/uavcan-gateway/internal/hub"
	"github.com/kstaniek/uavcan-gateway/internal/metrics"
	"github.com/kstaniek/uavcan-gateway/internal/serial"
	"github.com/kstaniek/uavcan-gateway/internal/socketcan"
)

// inject relays one observer-supplied frame to the backend, classifying
// overflow (expected under load, debug-logged) apart from real device
// errors.
func (s *Server) inject(fr can.Frame, logger *slog.Logger) {
	if s.injectFilter != nil && !s.injectFilter(&fr) {
		return
	}
	metrics.IncTCPRx()
	if err := s.Send(fr); err != nil {
		if errors.Is(err, serial.ErrTxOverflow) || errors.Is(err, socketcan.ErrTxOverflow) {
			s.totalBackendOverflow.Add(1)
			logger.Debug("backend_overflow_drop", "can_id", fmt.Sprintf("0x%X", fr.CANID), "len", fr.Len)
			return
		}
		wrap := fmt.Errorf("%w: %v", ErrBackendTx, err)
		s.setError(wrap)
		s.totalBackendErrors.Add(1)
		logger.Error("backend_tx_error", "error", wrap, "can_id", fmt.Sprintf("0x%X", fr.CANID))
	}
}

// startReader launches the goroutine draining observer-supplied frames
// from one connection into the backend.
func (s *Server) startReader(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = conn.Close() }()
		// A dead read side ends the session: closing the hub client makes
		// the writer exit and remove it from the hub.
		defer cl.Close()
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
			var count int
			var err error
			if mfd, ok := s.Codec.(interface {
				DecodeN(io.Reader, int, func(can.Frame)) (int, error)
			}); ok {
				count, err = mfd.DecodeN(conn, 16, func(fr can.Frame) { s.inject(fr, logger) })
			} else {
				var fr can.Frame
				fr, err = s.Codec.Decode(conn)
				if err == nil {
					s.inject(fr, logger)
					count = 1
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					return
				}
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
				metrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				return
			}
			if count == 0 {
				time.Sleep(100 * time.Microsecond)
			}
			select {
			case <-ctxDone:
				return
			default:
			}
		}
	}()
}
