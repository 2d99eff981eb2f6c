package stream

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestHandshakeLoopback(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	errCh := make(chan error, 2)
	go func() { errCh <- Handshake(context.Background(), a, time.Second) }()
	go func() { errCh <- Handshake(context.Background(), b, time.Second) }()
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("handshake failed: %v", err)
		}
	}
}

func TestHandshakeRejectsWrongHello(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		buf := make([]byte, len(hello))
		_, _ = b.Read(buf)
		_, _ = b.Write([]byte("NOTUAVCAN1")) // same length, wrong protocol
	}()
	if err := Handshake(context.Background(), a, time.Second); err == nil {
		t.Fatal("expected handshake failure on wrong hello")
	}
}
