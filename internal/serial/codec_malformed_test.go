package serial

import (
	"bytes"
	"testing"

	"github.com/kstaniek/uavcan-gateway/internal/can"
	"github.com/kstaniek/uavcan-gateway/internal/metrics"
)

// TestDecodeStreamMalformed ensures corrupted SLCAN lines bump the
// malformed counter without stalling the stream.
func TestDecodeStreamMalformed(t *testing.T) {
	var buf bytes.Buffer
	codec := Codec{}
	before := metrics.Snap().Malformed

	// A 'T' line with a non-hex id digit, then a line whose DLC does
	// not match its data length, then a valid frame that must still be
	// decoded after the junk.
	buf.WriteString("T0000G12081122334455667788\r")
	buf.WriteString("T000001234AA\r")
	buf.Write(codec.Encode(extFrame(0x42, 0xAA)))

	var got []can.Frame
	if err := codec.DecodeStream(&buf, func(f can.Frame) { got = append(got, f) }); err != nil {
		t.Fatalf("DecodeStream error: %v", err)
	}
	after := metrics.Snap().Malformed
	if after < before+2 {
		t.Fatalf("expected >=2 malformed increments, before=%d after=%d", before, after)
	}
	if len(got) != 1 || got[0].Arbitration() != 0x42 {
		t.Fatalf("valid frame after junk not decoded: %+v", got)
	}
}

// TestDecodeStreamNoiseWithoutTerminator ensures an unbounded run of
// bytes with no CR is trimmed instead of growing the buffer forever.
func TestDecodeStreamNoiseWithoutTerminator(t *testing.T) {
	var buf bytes.Buffer
	codec := Codec{}
	noise := bytes.Repeat([]byte{0x55}, 4*maxCmdLen)
	buf.Write(noise)
	if err := codec.DecodeStream(&buf, func(can.Frame) { t.Fatal("decoded a frame from noise") }); err != nil {
		t.Fatalf("DecodeStream error: %v", err)
	}
	if buf.Len() > maxCmdLen {
		t.Fatalf("noise not trimmed, %d bytes retained", buf.Len())
	}
}
