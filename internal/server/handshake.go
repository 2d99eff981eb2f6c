package server

import (
	"context"
	"net"

	"github.com/kstaniek/uavcan-gateway/internal/stream"
)

// ObserverHandshake runs the protocol hello exchange with a freshly
// accepted observer connection.
func (s *Server) ObserverHandshake(ctx context.Context, c net.Conn) error {
	return stream.Handshake(ctx, c, s.handshakeTimeout)
}
