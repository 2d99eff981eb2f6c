package uavcan

// Framer produces a lazy sequence of transport frames from a single
// transfer. It is a one-shot iterator: once NextFrame reports no more
// frames, the Framer is inert.
type Framer struct {
	id         FrameID
	transferID TransferID
	maxPayload int // P: total frame capacity including the tail byte

	chunks [][]byte // precomputed per-frame body slices (no copy of the source buffer)
	crc    [2]byte
	hasCRC bool
	toggle bool
	index  int
}

// NewFramer serializes body (via its Struct view) and prepares to emit
// frames for the given header id and transfer id. maxPayload is the
// frame capacity P (8 for classic CAN 2.0B).
func NewFramer(id FrameID, transferID TransferID, body Struct, maxPayload int) *Framer {
	bodyBytes := Serialize(body)
	bodyLen := len(bodyBytes)

	f := &Framer{id: id, transferID: transferID, maxPayload: maxPayload}

	payloadCap := maxPayload - 1 // minus tail byte
	if bodyLen <= payloadCap {
		f.chunks = [][]byte{bodyBytes}
		return f
	}

	f.hasCRC = true
	crc := TransportCRC(bodyBytes)
	f.crc[0] = byte(crc)
	f.crc[1] = byte(crc >> 8)

	firstCap := payloadCap - 2 // first frame reserves 2 bytes for CRC
	if firstCap < 0 {
		firstCap = 0
	}
	rest := bodyBytes
	first := rest
	if len(first) > firstCap {
		first = first[:firstCap]
	}
	rest = rest[len(first):]
	f.chunks = append(f.chunks, first)
	for len(rest) > 0 {
		n := payloadCap
		if n > len(rest) {
			n = len(rest)
		}
		f.chunks = append(f.chunks, rest[:n])
		rest = rest[n:]
	}
	return f
}

// Done reports whether every frame has already been produced.
func (f *Framer) Done() bool { return f.index >= len(f.chunks) }

// NextFrame returns the next frame of the transfer, or ok=false once
// the transfer is exhausted.
func (f *Framer) NextFrame() (frame Frame, ok bool) {
	if f.Done() {
		return Frame{}, false
	}
	chunk := f.chunks[f.index]
	isFirst := f.index == 0
	isLast := f.index == len(f.chunks)-1
	sot := isFirst
	eot := isLast

	var out Frame
	out.ID = f.id
	n := 0
	if isFirst && f.hasCRC {
		out.Data[0] = f.crc[0]
		out.Data[1] = f.crc[1]
		n = 2
	}
	copy(out.Data[n:], chunk)
	n += len(chunk)
	out.Data[n] = NewTailByte(sot, eot, f.toggle, f.transferID).Byte()
	n++
	out.Len = uint8(n)

	f.toggle = !f.toggle
	f.index++
	return out, true
}
