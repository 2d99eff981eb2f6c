package uavcan

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitWriterReader_RoundTrip(t *testing.T) {
	bw := NewBitWriter(nil, 0)
	bw.WriteBits(0b101, 3)
	bw.WriteBits(0xABCD, 16)
	bw.WriteBits(1, 1)

	br := NewBitReader(bw.Bytes(), bw.BitsWritten())
	v, ok := br.ReadBits(3)
	require.True(t, ok)
	require.EqualValues(t, 0b101, v)

	v, ok = br.ReadBits(16)
	require.True(t, ok)
	require.EqualValues(t, 0xABCD, v)

	v, ok = br.ReadBits(1)
	require.True(t, ok)
	require.EqualValues(t, 1, v)

	_, ok = br.ReadBits(1)
	require.False(t, ok, "reading past the end must fail")
}

func TestBitWriter_RespectsMaxBits(t *testing.T) {
	bw := NewBitWriter(nil, 4)
	require.True(t, bw.WriteBits(0xF, 4))
	require.False(t, bw.WriteBits(1, 1), "writing past maxBits must fail")
}

func TestIntT_SignExtension(t *testing.T) {
	neg := NewIntT(4, -1) // -1 in 4 bits is 0b1111
	bw := NewBitWriter(nil, 0)
	neg.WriteBits(bw)

	br := NewBitReader(bw.Bytes(), 4)
	var out IntT
	out.Width = 4
	require.True(t, out.ReadBits(br))
	require.EqualValues(t, -1, out.Value)
}

func TestUintT_RoundTrip(t *testing.T) {
	u := NewUintT(9, 300)
	bw := NewBitWriter(nil, 0)
	u.WriteBits(bw)

	br := NewBitReader(bw.Bytes(), 9)
	var out UintT
	out.Width = 9
	require.True(t, out.ReadBits(br))
	require.EqualValues(t, 300, out.Value)
}

func TestFloat32T_PreservesRawBits(t *testing.T) {
	f := Float32FromValue(3.14159)
	bw := NewBitWriter(nil, 0)
	f.WriteBits(bw)

	br := NewBitReader(bw.Bytes(), 32)
	var out Float32T
	require.True(t, out.ReadBits(br))
	require.Equal(t, f.Bits, out.Bits)
	require.InDelta(t, float32(3.14159), out.Value(), 1e-6)
}

func TestFloat32T_NaNBitsSurviveRoundTrip(t *testing.T) {
	// A NaN payload (not the canonical quiet NaN) must not be altered.
	nanBits := uint32(0x7fc00001)
	f := Float32T{Bits: nanBits}
	bw := NewBitWriter(nil, 0)
	f.WriteBits(bw)

	br := NewBitReader(bw.Bytes(), 32)
	var out Float32T
	require.True(t, out.ReadBits(br))
	require.Equal(t, nanBits, out.Bits)
}

func TestFloat32FromFloat16_KnownValues(t *testing.T) {
	cases := []struct {
		bits uint16
		want float32
	}{
		{0x0000, 0},
		{0x3C00, 1},
		{0xC000, -2},
		{0x3555, 0.333251953125},        // closest half to 1/3
		{0x0400, 6.103515625e-05},       // smallest normal, 2^-14
		{0x0200, 3.0517578125e-05},      // subnormal, 2^-15
		{0x0001, 5.960464477539063e-08}, // smallest subnormal, 2^-24
		{0x7BFF, 65504},                 // largest finite half
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Float32FromFloat16(tc.bits), "bits 0x%04X", tc.bits)
	}

	require.True(t, math.IsInf(float64(Float32FromFloat16(0x7C00)), 1))
	require.True(t, math.IsInf(float64(Float32FromFloat16(0xFC00)), -1))
	nan := Float32FromFloat16(0x7E00)
	require.True(t, nan != nan)
}

func TestVoidT_WritesZeroBits(t *testing.T) {
	bw := NewBitWriter(nil, 0)
	v := VoidT{Width: 5}
	require.True(t, v.WriteBits(bw))
	require.EqualValues(t, 0, bw.Bytes()[0]&0x1f)
}
