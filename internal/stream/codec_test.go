package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/kstaniek/uavcan-gateway/internal/can"
)

func mkFrame(id uint32, data ...byte) can.Frame {
	var f can.Frame
	f.CANID = id
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	return f
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := &Codec{}
	want := []can.Frame{
		mkFrame(can.CAN_EFF_FLAG|0x0000AA20, 0x01, 0x00, 0x00, 0x00, 0x8E, 0x05, 0x00, 0xC0),
		mkFrame(can.CAN_EFF_FLAG | 0x1FFFFFFF),
		mkFrame(0x123, 0xDE, 0xAD),
	}
	wire := codec.Encode(want)

	var got []can.Frame
	n, err := codec.DecodeN(bytes.NewReader(wire), 0, func(f can.Frame) { got = append(got, f) })
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected clean EOF, got %v", err)
	}
	if n != len(want) || len(got) != len(want) {
		t.Fatalf("decoded %d frames, want %d", n, len(want))
	}
	for i := range want {
		if got[i].CANID != want[i].CANID || got[i].Len != want[i].Len ||
			!bytes.Equal(got[i].Data[:got[i].Len], want[i].Data[:want[i].Len]) {
			t.Fatalf("frame %d mismatch: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestCodec_EncodeToMatchesEncode(t *testing.T) {
	codec := &Codec{}
	frames := []can.Frame{
		mkFrame(can.CAN_EFF_FLAG|1, 0xAA),
		mkFrame(can.CAN_EFF_FLAG|2, 0xBB, 0xCC),
	}
	direct := codec.Encode(frames)
	var buf bytes.Buffer
	n, err := codec.EncodeTo(&buf, frames)
	if err != nil {
		t.Fatalf("EncodeTo: %v", err)
	}
	if n != len(direct) || !bytes.Equal(buf.Bytes(), direct) {
		t.Fatalf("EncodeTo produced different bytes:\n %X\n %X", buf.Bytes(), direct)
	}
}

func TestCodec_DecodeErrors(t *testing.T) {
	codec := &Codec{}

	// Length byte above the classic CAN payload capacity.
	bad := []byte{0x80, 0x00, 0x00, 0x01, 9}
	if _, err := codec.Decode(bytes.NewReader(bad)); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}

	// Header promises 4 payload bytes, stream ends after 2.
	trunc := []byte{0x80, 0x00, 0x00, 0x01, 4, 0xDE, 0xAD}
	if _, err := codec.Decode(bytes.NewReader(trunc)); !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("expected ErrTruncatedFrame, got %v", err)
	}

	// Clean EOF at a frame boundary.
	if _, err := codec.Decode(bytes.NewReader(nil)); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestDecodeN_StopsAtMax(t *testing.T) {
	codec := &Codec{}
	frames := []can.Frame{
		mkFrame(can.CAN_EFF_FLAG|1, 1),
		mkFrame(can.CAN_EFF_FLAG|2, 2),
		mkFrame(can.CAN_EFF_FLAG|3, 3),
	}
	r := bytes.NewReader(codec.Encode(frames))
	var got int
	n, err := codec.DecodeN(r, 2, func(can.Frame) { got++ })
	if err != nil {
		t.Fatalf("DecodeN: %v", err)
	}
	if n != 2 || got != 2 {
		t.Fatalf("expected 2 decoded, got n=%d cb=%d", n, got)
	}
	// The third frame must still be decodable from the same reader.
	if _, err := codec.Decode(r); err != nil {
		t.Fatalf("remaining frame not decodable: %v", err)
	}
}

func BenchmarkCodec_Encode64(b *testing.B) {
	codec := &Codec{}
	frames := make([]can.Frame, 64)
	for i := range frames {
		frames[i] = mkFrame(can.CAN_EFF_FLAG|uint32(i), 1, 2, 3, 4, 5, 6, 7, 8)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = codec.Encode(frames)
	}
}

func BenchmarkCodec_DecodeN64(b *testing.B) {
	codec := &Codec{}
	frames := make([]can.Frame, 64)
	for i := range frames {
		frames[i] = mkFrame(can.CAN_EFF_FLAG|uint32(i), 1, 2, 3, 4, 5, 6, 7, 8)
	}
	wire := codec.Encode(frames)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r := bytes.NewReader(wire)
		if _, err := codec.DecodeN(r, 0, func(can.Frame) {}); !errors.Is(err, io.EOF) {
			b.Fatalf("decode: %v", err)
		}
	}
}
