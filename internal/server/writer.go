package server

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/uavcan-gateway/internal/can"
	"github.com/kstaniek/uavcan-gateway/internal/hub"
	"github.com/kstaniek/uavcan-gateway/internal/metrics"
	"github.com/kstaniek/uavcan-gateway/internal/transport"
)

// startWriter launches the goroutine pushing hub frames to a single
// observer connection. Frames are batched to amortize syscalls and
// flushed either when the batch fills or on the flush ticker, whichever
// comes first.
func (s *Server) startWriter(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	// The codec's batch capability is resolved once, not per flush; the
	// stream codec always provides it, so the fallback exists only for
	// alternative codecs wired in tests.
	enc, _ := s.Codec.(transport.FrameBatchEncoder)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = conn.Close()
			if s.Hub != nil {
				s.Hub.Remove(cl)
			}
			s.totalDisconnected.Add(1)
			logger.Info("client_disconnected")
		}()
		// A kick closes cl.Closed while this goroutine may be blocked in a
		// write to an observer that stopped reading; closing the connection
		// unblocks that write.
		go func() {
			select {
			case <-cl.Closed:
				_ = conn.Close()
			case <-ctxDone:
			}
		}()
		t := time.NewTicker(s.flushInterval)
		defer t.Stop()
		batch := make([]can.Frame, 0, s.batchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			n := len(batch)
			var err error
			if enc != nil {
				_, err = enc.EncodeTo(conn, batch)
			} else {
				err = fmt.Errorf("codec cannot encode batches")
			}
			batch = batch[:0]
			if err != nil {
				wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
				metrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				return wrap
			}
			metrics.AddTCPTx(n)
			return nil
		}
		for {
			select {
			case fr := <-cl.Out:
				batch = append(batch, fr)
				if len(batch) >= s.batchSize {
					if err := flush(); err != nil {
						return
					}
				}
			case <-t.C:
				if err := flush(); err != nil {
					return
				}
			case <-cl.Closed:
				_ = flush()
				return
			case <-ctxDone:
				_ = flush()
				return
			}
		}
	}()
}
