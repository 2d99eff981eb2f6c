package uavcan

// Field is a logical attribute of a message: a primitive, a fixed-size
// array of primitives, or a variable-size array whose 0th primitive is
// a mutable length prefix. Element(j) is the identity for scalar
// fields (j must be 0) and the j-th array member otherwise.
type Field interface {
	// Len reports how many primitives this field currently expands to.
	// For a variable-length array this depends on the runtime value of
	// the length primitive (Element(0)) and must be re-read after it
	// is written.
	Len() int
	// Element returns the j-th primitive backing this field.
	Element(j int) PrimitiveType
}

// scalarField adapts a single PrimitiveType into a Field of length 1.
type scalarField struct{ p PrimitiveType }

func Scalar(p PrimitiveType) Field { return scalarField{p: p} }

func (f scalarField) Len() int { return 1 }

func (f scalarField) Element(j int) PrimitiveType {
	if j != 0 {
		panic("uavcan: scalar field index out of range")
	}
	return f.p
}

// FixedArray is a fixed-size array field: N primitives, none of which
// is a length prefix.
type FixedArray struct{ Elements []PrimitiveType }

func (f FixedArray) Len() int { return len(f.Elements) }

func (f FixedArray) Element(j int) PrimitiveType { return f.Elements[j] }

// VariableArray is a variable-size array field (≤N elements) whose 0th
// primitive is an explicit length prefix of width ceil(log2(N+1)). The
// array elements beyond the current length are not transmitted: Len()
// reflects 1 (the length prefix) plus however many elements the
// length prefix currently names.
type VariableArray struct {
	LengthWidth int
	length      *UintT
	Elements    []PrimitiveType
	maxN        int
}

// NewVariableArray constructs a variable-length array field capable of
// holding up to maxN elements, with elements sourced from backing
// (backing may be longer than the current logical length; only the
// first N() elements are exposed/transmitted).
func NewVariableArray(maxN int, backing []PrimitiveType) *VariableArray {
	return &VariableArray{
		LengthWidth: ceilLog2(maxN + 1),
		length:      &UintT{Width: ceilLog2(maxN + 1)},
		Elements:    backing,
		maxN:        maxN,
	}
}

// N returns the current element count (the value of the length prefix).
func (f *VariableArray) N() int { return int(f.length.Value) }

// SetN sets the element count directly (used by the sending side).
func (f *VariableArray) SetN(n int) { f.length.Value = uint64(n) }

// LengthValid reports whether the current length prefix names a count
// within [0, maxN]. LengthWidth is only an upper bound on maxN (it is
// exactly maxN when maxN+1 is a power of two, wider otherwise), so a
// wire-supplied length can decode to a value the array was never sized
// to hold — this must be checked before Len()/Element() are trusted.
func (f *VariableArray) LengthValid() bool {
	n := f.N()
	return n >= 0 && n <= f.maxN
}

func (f *VariableArray) Len() int {
	if !f.LengthValid() {
		// Only the length primitive itself was safe to visit; stop the
		// element walk here instead of reporting a bogus count that
		// would drive an out-of-range Element() call.
		return 1
	}
	return 1 + f.N()
}

func (f *VariableArray) Element(j int) PrimitiveType {
	if j == 0 {
		return f.length
	}
	if j-1 < 0 || j-1 >= len(f.Elements) {
		panic("uavcan: variable array element index out of range")
	}
	return f.Elements[j-1]
}

// Serialize flattens s into its canonical wire bytes (LSB-first bit
// packing, trailing partial byte zero-padded).
func Serialize(s Struct) []byte {
	buf := make([]byte, (NewStructView(s).BitLength()+7)/8)
	NewSerializer(s).Serialize(buf)
	return buf
}

// Deserialize populates s's primitives (in declaration order) from
// data. A variable array's length primitive, once read, is honored by
// the element reads that follow it in the same pass. Reports false if
// data ran out before every primitive the struct requires was read, or
// if a length prefix decoded to a value its array cannot hold.
func Deserialize(s Struct, data []byte) bool {
	_, p := NewDeserializer(s).Deserialize(data)
	return p == ProgressFinished
}

func ceilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	bits := 0
	v := n - 1
	for v > 0 {
		bits++
		v >>= 1
	}
	return bits
}

// Struct is an ordered list of fields; structs can nest, and the
// flattened view concatenates all primitives in declaration order.
type Struct interface {
	// FieldCount is the number of top-level fields (not primitives).
	FieldCount() int
	// FieldAt returns the i-th top-level field.
	FieldAt(i int) Field
}

// StructView exposes the flattened primitive sequence of a Struct,
// re-querying FieldAt/Element on every access instead of caching, so
// writes to a variable-length array's length primitive are observed
// before later primitives in the same field are visited — this is
// what lets deserialization set the array length and then walk
// exactly that many elements.
type StructView struct{ s Struct }

func NewStructView(s Struct) StructView { return StructView{s: s} }

// PrimitiveFieldCount is a pure function of the struct's static shape:
// it does not depend on any runtime length field, because Field.Len()
// for a scalar/fixed array is constant, and (per the grammar) a struct
// declares at most the fields it was constructed with — a variable
// array always contributes its length primitive even before any
// element is set.
//
// Contract: callers that need the *current* number of primitives
// (which does vary with array lengths) must use PrimitiveCount instead.
func (v StructView) PrimitiveFieldCount() int { return v.s.FieldCount() }

// PrimitiveField returns the i-th top-level field, freshly fetched from
// the underlying Struct. The handle reads and writes the struct's own
// storage (fields hold pointer-backed primitives), so there is no
// separate mutable accessor.
func (v StructView) PrimitiveField(i int) Field { return v.s.FieldAt(i) }

// BitLength sums the bit widths of every primitive the struct currently
// expands to. A completed transfer's body always carries exactly this
// many bits before byte padding.
func (v StructView) BitLength() int {
	n := 0
	for i := 0; i < v.s.FieldCount(); i++ {
		f := v.s.FieldAt(i)
		for j := 0; j < f.Len(); j++ {
			n += f.Element(j).BitWidth()
		}
	}
	return n
}

// PrimitiveCount walks the current field set and sums each field's
// current Len(), which for variable arrays depends on their length
// primitive's current value.
func (v StructView) PrimitiveCount() int {
	n := 0
	for i := 0; i < v.s.FieldCount(); i++ {
		n += v.s.FieldAt(i).Len()
	}
	return n
}

// lengthValidator is implemented by fields (VariableArray) whose Len()
// depends on a length prefix read mid-walk and therefore needs
// validating against its declared bound before it is trusted.
type lengthValidator interface {
	LengthValid() bool
}

// VisitPrimitives calls fn once per primitive in declaration order,
// re-fetching each field from the underlying Struct so a length
// primitive written during this same walk (field i, element 0) is
// honored when the walk reaches the remaining elements of field i.
// fn returning false stops the walk early and VisitPrimitives reports
// false. It also reports false, without visiting any further
// primitives of that field, if a just-read length prefix names a count
// outside the field's declared bound — this is what keeps a
// corrupted/malicious wire length from driving an out-of-range
// Element() call.
func (v StructView) VisitPrimitives(fn func(p PrimitiveType) bool) bool {
	for i := 0; i < v.s.FieldCount(); i++ {
		f := v.s.FieldAt(i)
		for j := 0; j < f.Len(); j++ {
			if !fn(f.Element(j)) {
				return false
			}
			// Re-fetch in case j==0 just populated a length prefix
			// that changes f.Len() for subsequent iterations.
			f = v.s.FieldAt(i)
			if lv, ok := f.(lengthValidator); ok && !lv.LengthValid() {
				return false
			}
		}
	}
	return true
}
