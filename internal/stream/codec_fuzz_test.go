package stream

import (
	"bytes"
	"testing"

	"github.com/kstaniek/uavcan-gateway/internal/can"
)

// FuzzCodecDecode feeds arbitrary bytes through Decode; it must never
// panic and must never yield a frame longer than the classic CAN
// payload capacity.
func FuzzCodecDecode(f *testing.F) {
	codec := &Codec{}
	f.Add(codec.Encode([]can.Frame{{CANID: can.CAN_EFF_FLAG | 0xAA20, Len: 2, Data: [8]byte{1, 2}}}))
	f.Add([]byte{0x80, 0x00, 0x00, 0x01, 9})
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, data []byte) {
		r := bytes.NewReader(data)
		for {
			fr, err := codec.Decode(r)
			if err != nil {
				return
			}
			if fr.Len > can.MaxDataLen {
				t.Fatalf("decoded frame with len %d", fr.Len)
			}
		}
	})
}

// FuzzCodecRoundTrip checks that every encodable frame survives the
// wire bit-for-bit.
func FuzzCodecRoundTrip(f *testing.F) {
	f.Add(uint32(can.CAN_EFF_FLAG|0x1234), []byte{0xDE, 0xAD, 0xBE, 0xEF})
	f.Add(uint32(0x7FF), []byte{})
	f.Fuzz(func(t *testing.T, id uint32, payload []byte) {
		if len(payload) > can.MaxDataLen {
			payload = payload[:can.MaxDataLen]
		}
		var in can.Frame
		in.CANID = id
		in.Len = uint8(len(payload))
		copy(in.Data[:], payload)

		codec := &Codec{}
		out, err := codec.Decode(bytes.NewReader(codec.Encode([]can.Frame{in})))
		if err != nil {
			t.Fatalf("decode of own encoding failed: %v", err)
		}
		if out.CANID != in.CANID || out.Len != in.Len || !bytes.Equal(out.Data[:out.Len], in.Data[:in.Len]) {
			t.Fatalf("round trip mismatch: in=%+v out=%+v", in, out)
		}
	})
}
