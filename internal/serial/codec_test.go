package serial

import (
	"bytes"
	"testing"

	"github.com/kstaniek/uavcan-gateway/internal/can"
)

func extFrame(id uint32, data ...byte) can.Frame {
	var fr can.Frame
	fr.CANID = (id & can.CAN_EFF_MASK) | can.CAN_EFF_FLAG
	fr.Len = uint8(len(data))
	copy(fr.Data[:], data)
	return fr
}

func TestCodec_RoundTrip_Chunked(t *testing.T) {
	codec := Codec{}

	want := []can.Frame{
		extFrame(0x0001E5A, 0x34, 0x7B, 0x70, 0xD7, 0x94, 0x10, 0x0D, 0xF7), // 8B
		extFrame(0x0001F55, 0xA1, 0xB2, 0xC3, 0xD4, 0xE5, 0xF6),             // 6B
		extFrame(0x0123456, 0x9A, 0xBC),                                     // 2B
		extFrame(0x01ABCDE),                                                 // DLC=0
	}

	// Build a continuous RX stream with adapter acks interleaved, the
	// way a real SLCAN device mixes its 'z' responses into RX traffic.
	stream := make([]byte, 0, 256)
	for _, fr := range want {
		stream = append(stream, codec.Encode(fr)...)
		stream = append(stream, 'z', slcanCR)
	}

	var buf bytes.Buffer
	got := make([]can.Frame, 0, len(want))

	// Feed in irregular small chunks to stress partial-line buffering.
	chunkSizes := []int{1, 2, 3, 4, 5, 7, 11}
	cs := 0
	for pos := 0; pos < len(stream); {
		n := chunkSizes[cs%len(chunkSizes)]
		cs++
		if pos+n > len(stream) {
			n = len(stream) - pos
		}
		buf.Write(stream[pos : pos+n])
		pos += n

		if err := codec.DecodeStream(&buf, func(fr can.Frame) {
			got = append(got, fr)
		}); err != nil {
			t.Fatalf("DecodeStream error: %v", err)
		}
	}

	if len(got) != len(want) {
		t.Fatalf("decoded %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].CANID != want[i].CANID ||
			got[i].Len != want[i].Len ||
			string(got[i].Data[:got[i].Len]) != string(want[i].Data[:want[i].Len]) {
			t.Fatalf("frame %d mismatch\n got  id=0x%X len=%d data=% X\n want id=0x%X len=%d data=% X",
				i,
				got[i].CANID, got[i].Len, got[i].Data[:got[i].Len],
				want[i].CANID, want[i].Len, want[i].Data[:want[i].Len])
		}
	}
}

func TestCodec_EncodeExtended(t *testing.T) {
	codec := Codec{}
	fr := extFrame(0x0000AA20, 0x01, 0x00, 0x00, 0x00, 0x8E, 0x05, 0x00, 0xC0)
	got := string(codec.Encode(fr))
	want := "T0000AA208010000008E0500C0\r"
	if got != want {
		t.Fatalf("encode mismatch:\n got  %q\n want %q", got, want)
	}
}

func TestCodec_StandardFrame(t *testing.T) {
	codec := Codec{}
	var fr can.Frame
	fr.CANID = 0x123
	fr.Len = 2
	fr.Data[0], fr.Data[1] = 0xAB, 0xCD
	wire := codec.Encode(fr)
	if string(wire) != "t1232ABCD\r" {
		t.Fatalf("unexpected standard encoding %q", wire)
	}
	var buf bytes.Buffer
	buf.Write(wire)
	var got []can.Frame
	if err := codec.DecodeStream(&buf, func(f can.Frame) { got = append(got, f) }); err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if len(got) != 1 || got[0].CANID != 0x123 || got[0].Len != 2 {
		t.Fatalf("standard frame round trip failed: %+v", got)
	}
}
