package hub

import (
	"testing"
	"time"

	"github.com/kstaniek/uavcan-gateway/internal/can"
)

func TestHub_Broadcast_DropDoesNotBlock(t *testing.T) {
	h := New()
	cl := NewClient(4, Filter{})
	h.Add(cl)
	defer h.Remove(cl)

	// Don't read from cl.Out to simulate a stalled observer.
	start := time.Now()
	for i := 0; i < 1000; i++ {
		h.Broadcast(can.Frame{CANID: 0x123 | can.CAN_EFF_FLAG})
	}
	elapsed := time.Since(start)
	if elapsed > time.Second {
		t.Fatalf("Broadcast took too long: %s", elapsed)
	}
	if len(cl.Out) != cap(cl.Out) {
		t.Fatalf("expected client buffer to be full, got len=%d cap=%d", len(cl.Out), cap(cl.Out))
	}
}

func TestHub_Broadcast_DropKeepsOthersFlowing(t *testing.T) {
	h := New()
	slow := NewClient(1, Filter{})
	fast := NewClient(16, Filter{})
	h.Add(slow)
	h.Add(fast)
	defer h.Remove(slow)
	defer h.Remove(fast)

	// Fill slow buffer.
	h.Broadcast(can.Frame{CANID: 0x1 | can.CAN_EFF_FLAG})

	// Bursts that drop on slow must still reach fast.
	for i := 0; i < 10; i++ {
		h.Broadcast(can.Frame{CANID: 0x2 | can.CAN_EFF_FLAG})
	}

	got := 0
	timeout := time.After(200 * time.Millisecond)
loop:
	for {
		select {
		case <-fast.Out:
			got++
			if got >= 5 { // at least some got through
				break loop
			}
		case <-timeout:
			break loop
		}
	}
	if got == 0 {
		t.Fatalf("fast client did not receive any frames while slow was backpressured")
	}
}

func TestHub_Broadcast_FilterSelectsTraffic(t *testing.T) {
	h := New()
	// Accept only extended frames whose data_type_id bits (23..8 of a
	// UAVCAN message frame id) equal 341.
	const typeID = uint32(341)
	obs := NewClient(8, Filter{
		ID:   can.CAN_EFF_FLAG | typeID<<8,
		Mask: can.CAN_EFF_FLAG | 0xFFFF<<8 | 1<<7,
	})
	all := NewClient(8, Filter{})
	h.Add(obs)
	h.Add(all)
	defer h.Remove(obs)
	defer h.Remove(all)

	match := can.Frame{CANID: can.CAN_EFF_FLAG | typeID<<8 | 0x20, Len: 1}
	other := can.Frame{CANID: can.CAN_EFF_FLAG | uint32(200)<<8 | 0x20, Len: 1}
	h.Broadcast(match)
	h.Broadcast(other)

	if n := len(obs.Out); n != 1 {
		t.Fatalf("filtered client got %d frames, want 1", n)
	}
	if fr := <-obs.Out; fr.CANID != match.CANID {
		t.Fatalf("filtered client received wrong frame 0x%X", fr.CANID)
	}
	if n := len(all.Out); n != 2 {
		t.Fatalf("unfiltered client got %d frames, want 2", n)
	}
}

func TestFilter_ZeroValueMatchesEverything(t *testing.T) {
	var f Filter
	for _, id := range []uint32{0, 0x7FF, can.CAN_EFF_FLAG | 0x1FFFFFFF} {
		if !f.Match(id) {
			t.Fatalf("zero filter rejected 0x%X", id)
		}
	}
}
