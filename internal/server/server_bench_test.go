package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kstaniek/uavcan-gateway/internal/can"
	"github.com/kstaniek/uavcan-gateway/internal/hub"
	"github.com/kstaniek/uavcan-gateway/internal/stream"
)

// BenchmarkBroadcastFanout measures the hub->writer path with one
// draining observer attached, end to end over a real TCP socket.
func BenchmarkBroadcastFanout(b *testing.B) {
	h := hub.New()
	srv := NewServer(
		WithListenAddr("127.0.0.1:0"),
		WithHub(h),
		WithCodec(&stream.Codec{}),
		WithSend(func(can.Frame) error { return nil }),
		WithLogger(testLogger()),
		WithFlushInterval(time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()
	<-srv.Ready()

	conn, err := net.DialTimeout("tcp", srv.Addr(), time.Second)
	if err != nil {
		b.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := stream.Handshake(context.Background(), conn, time.Second); err != nil {
		b.Fatalf("handshake: %v", err)
	}
	go func() {
		buf := make([]byte, 64*1024)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()
	for h.Count() == 0 {
		time.Sleep(time.Millisecond)
	}

	fr := can.Frame{CANID: can.CAN_EFF_FLAG | 0x100, Len: 8, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Broadcast(fr)
	}
}
