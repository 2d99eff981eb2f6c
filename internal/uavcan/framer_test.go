package uavcan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// rawBytesStruct wraps a fixed byte slice as a Struct of u8 fields, so
// tests can build multi-frame bodies of arbitrary length without a
// dedicated message type.
type rawBytesStruct struct {
	fields []UintT
}

func newRawBytesStruct(data []byte) *rawBytesStruct {
	s := &rawBytesStruct{fields: make([]UintT, len(data))}
	for i, b := range data {
		s.fields[i] = NewUintT(8, uint64(b))
	}
	return s
}

func (s *rawBytesStruct) FieldCount() int { return len(s.fields) }
func (s *rawBytesStruct) FieldAt(i int) Field {
	return Scalar(&s.fields[i])
}

func (s *rawBytesStruct) bytes() []byte {
	out := make([]byte, len(s.fields))
	for i, f := range s.fields {
		out[i] = byte(f.Value)
	}
	return out
}

func nodeStatusScenario1() *NodeStatus {
	return &NodeStatus{
		UptimeSec:                1,
		Health:                   2,
		Mode:                     3,
		SubMode:                  4,
		VendorSpecificStatusCode: 5,
	}
}

func TestFramer_Scenario1_NodeStatusSingleFrame(t *testing.T) {
	id := MessageID(0, 341, 32)
	fr := NewFramer(id, NewTransferID(0), nodeStatusScenario1(), MaxDataLength)

	frame, ok := fr.NextFrame()
	require.True(t, ok)
	require.False(t, fr.hasCRC)

	_, ok = fr.NextFrame()
	require.False(t, ok, "single-frame transfer must produce exactly one frame")

	require.EqualValues(t, 8, frame.Len)
	require.Equal(t,
		[]byte{0x01, 0x00, 0x00, 0x00, 0x8E, 0x05, 0x00, 0xC0},
		frame.Data[:frame.Len],
	)
}

func scenario2Body() []byte {
	b := make([]byte, 16)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestFramer_Scenario2_MultiFrameTailBytes(t *testing.T) {
	id := MessageID(0, 341, 32)
	body := newRawBytesStruct(scenario2Body())
	fr := NewFramer(id, NewTransferID(3), body, MaxDataLength)

	var frames []Frame
	for {
		f, ok := fr.NextFrame()
		if !ok {
			break
		}
		frames = append(frames, f)
	}

	require.Len(t, frames, 3)
	require.EqualValues(t, 0x83, frames[0].Tail().Byte())
	require.EqualValues(t, 0x23, frames[1].Tail().Byte())
	require.EqualValues(t, 0x43, frames[2].Tail().Byte())

	crc := TransportCRC(scenario2Body())
	require.EqualValues(t, byte(crc), frames[0].Data[0])
	require.EqualValues(t, byte(crc>>8), frames[0].Data[1])
}

func TestFramer_SingleFrameBoundary_NoCRCAtExactlyPMinus1(t *testing.T) {
	// A body of exactly MaxDataLength-1 bytes must stay single-frame.
	data := make([]byte, MaxDataLength-1)
	fr := NewFramer(MessageID(0, 1, 1), NewTransferID(0), newRawBytesStruct(data), MaxDataLength)
	f, ok := fr.NextFrame()
	require.True(t, ok)
	require.True(t, f.Tail().StartOfTransfer())
	require.True(t, f.Tail().EndOfTransfer())
	_, ok = fr.NextFrame()
	require.False(t, ok)
}

func TestFramer_ToggleAlternates(t *testing.T) {
	body := newRawBytesStruct(make([]byte, 40))
	fr := NewFramer(MessageID(0, 1, 1), NewTransferID(0), body, MaxDataLength)
	var toggles []bool
	for {
		f, ok := fr.NextFrame()
		if !ok {
			break
		}
		toggles = append(toggles, f.Tail().Toggle())
	}
	require.True(t, len(toggles) > 2)
	for i, tg := range toggles {
		require.Equal(t, i%2 == 1, tg, "toggle must alternate starting at 0")
	}
}
