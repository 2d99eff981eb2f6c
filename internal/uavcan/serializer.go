package uavcan

// Progress reports how far a streaming (de)serialization cursor got on
// one call.
type Progress int

const (
	// ProgressFinished: every primitive of the struct was consumed.
	ProgressFinished Progress = iota
	// ProgressBufferFull: the output buffer filled mid-struct; call
	// Serialize again with a fresh buffer to continue.
	ProgressBufferFull
	// ProgressNeedMore: the input buffer ran out mid-struct; call
	// Deserialize again with the next bytes to continue.
	ProgressNeedMore
	// ProgressBitError: a just-read length prefix names an element count
	// outside its array's declared bound. Terminal; the cursor will not
	// advance past the offending field.
	ProgressBitError
)

// Serializer streams a struct's primitives into caller-supplied byte
// buffers, LSB-first within each field and byte-LSB-first across the
// stream. It resumes across calls: when a buffer fills mid-primitive
// the cursor records (field index, element index, intra-primitive bit
// offset) and the next call continues from exactly that bit.
//
// The caller sizes each buffer to the payload room of the frame being
// filled (frame capacity minus the tail byte, minus two more for the
// CRC on a multi-frame first frame), so serialization stops cleanly at
// that bit boundary.
type Serializer struct {
	view  StructView
	field int
	elem  int
	bit   int // bits of the current primitive already emitted
}

// NewSerializer positions a cursor at the first primitive of s.
func NewSerializer(s Struct) *Serializer {
	return &Serializer{view: NewStructView(s)}
}

// Serialize writes primitive bits into out starting at bit 0 of byte 0,
// returning the number of bits written and whether the struct is done
// or the buffer filled first. out is zeroed as it is written.
func (z *Serializer) Serialize(out []byte) (int, Progress) {
	bw := NewBitWriter(out[:0], len(out)*8)
	for z.field < z.view.PrimitiveFieldCount() {
		f := z.view.PrimitiveField(z.field)
		for z.elem < f.Len() {
			p := f.Element(z.elem)
			width := p.BitWidth()

			var scratch BitWriter
			p.WriteBits(&scratch)
			br := NewBitReader(scratch.Bytes(), width)
			br.ReadBits(z.bit) // skip what earlier calls already emitted

			remaining := width - z.bit
			if room := bw.Remaining(); room < remaining {
				if room > 0 {
					v, _ := br.ReadBits(room)
					bw.WriteBits(v, room)
					z.bit += room
				}
				return bw.BitsWritten(), ProgressBufferFull
			}
			v, _ := br.ReadBits(remaining)
			bw.WriteBits(v, remaining)
			z.bit = 0
			z.elem++
			// Re-fetch: a variable array's Len can depend on state a
			// caller mutated between calls.
			f = z.view.PrimitiveField(z.field)
			if lv, ok := f.(lengthValidator); ok && !lv.LengthValid() {
				return bw.BitsWritten(), ProgressBitError
			}
		}
		z.field++
		z.elem = 0
	}
	return bw.BitsWritten(), ProgressFinished
}

// Deserializer is the read-side counterpart of Serializer: it consumes
// caller-supplied byte buffers and populates the struct's primitives in
// declaration order, carrying partial-primitive bits across buffer
// boundaries.
type Deserializer struct {
	view    StructView
	field   int
	elem    int
	bit     int    // bits of the current primitive accumulated so far
	pending uint64 // those bits, LSB-first
	failed  bool
}

// NewDeserializer positions a cursor at the first primitive of s.
func NewDeserializer(s Struct) *Deserializer {
	return &Deserializer{view: NewStructView(s)}
}

// Deserialize reads primitive bits from in starting at bit 0 of byte 0.
// It returns the number of bits consumed and Finished, NeedMore when in
// ran out mid-struct, or BitError when a length prefix decoded to a
// value its array cannot hold (terminal).
func (z *Deserializer) Deserialize(in []byte) (int, Progress) {
	if z.failed {
		return 0, ProgressBitError
	}
	br := NewBitReader(in, 0)
	for z.field < z.view.PrimitiveFieldCount() {
		f := z.view.PrimitiveField(z.field)
		for z.elem < f.Len() {
			p := f.Element(z.elem)
			width := p.BitWidth()

			need := width - z.bit
			if avail := br.Remaining(); avail < need {
				if avail > 0 {
					v, _ := br.ReadBits(avail)
					z.pending |= v << uint(z.bit)
					z.bit += avail
				}
				return br.BitsRead(), ProgressNeedMore
			}
			v, _ := br.ReadBits(need)
			z.pending |= v << uint(z.bit)

			var scratch [8]byte
			for i := range scratch {
				scratch[i] = byte(z.pending >> uint(8*i))
			}
			p.ReadBits(NewBitReader(scratch[:], width))
			z.pending = 0
			z.bit = 0
			z.elem++
			// Re-fetch so a just-written length prefix is honored for the
			// element reads that follow it, and reject one that names a
			// count outside the array's bound before any element is
			// visited.
			f = z.view.PrimitiveField(z.field)
			if lv, ok := f.(lengthValidator); ok && !lv.LengthValid() {
				z.failed = true
				return br.BitsRead(), ProgressBitError
			}
		}
		z.field++
		z.elem = 0
	}
	return br.BitsRead(), ProgressFinished
}
