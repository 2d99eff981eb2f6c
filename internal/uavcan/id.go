package uavcan

// FrameID is the 29-bit arbitration identifier of a transport frame.
// Numerically smaller values win bus arbitration (higher priority).
type FrameID uint32

const frameIDMask = 0x1FFFFFFF

// NewFrameID masks value down to 29 bits.
func NewFrameID(value uint32) FrameID { return FrameID(value & frameIDMask) }

// IsService reports whether bit 7 (the service discriminator) is set.
func (id FrameID) IsService() bool { return uint32(id)&(1<<7) != 0 }

// Priority extracts bits 28..26.
func (id FrameID) Priority() uint8 { return uint8((uint32(id) >> 26) & 0x7) }

// MessageID encodes a Message Frame ID:
//
//	[28..26: priority(3)] [23..8: data_type_id(16)] [7: service=0] [6..0: source_node(7)]
func MessageID(priority uint8, dataTypeID uint16, sourceNode uint8) FrameID {
	v := (uint32(priority&0x7) << 26) | (uint32(dataTypeID) << 8) | uint32(sourceNode&0x7f)
	return NewFrameID(v)
}

// DecodeMessageID extracts the fields of a Message Frame ID. Callers
// should check IsService() first.
func DecodeMessageID(id FrameID) (priority uint8, dataTypeID uint16, sourceNode uint8) {
	v := uint32(id)
	priority = uint8((v >> 26) & 0x7)
	dataTypeID = uint16((v >> 8) & 0xFFFF)
	sourceNode = uint8(v & 0x7f)
	return
}

// AnonymousID encodes an Anonymous Frame ID (source node unknown,
// limited to short message types):
//
//	[28..26: priority(3)] [23..10: discriminator(14)] [9..8: type_id_low(2)] [7: service=0] [6..0: 0]
func AnonymousID(priority uint8, discriminator uint16, typeIDLow uint8) FrameID {
	v := (uint32(priority&0x7) << 26) | (uint32(discriminator&0x3FFF) << 10) | (uint32(typeIDLow&0x3) << 8)
	return NewFrameID(v)
}

// DecodeAnonymousID extracts the fields of an Anonymous Frame ID.
func DecodeAnonymousID(id FrameID) (priority uint8, discriminator uint16, typeIDLow uint8) {
	v := uint32(id)
	priority = uint8((v >> 26) & 0x7)
	discriminator = uint16((v >> 10) & 0x3FFF)
	typeIDLow = uint8((v >> 8) & 0x3)
	return
}

// ServiceID encodes a Service Frame ID:
//
//	[28..26: priority(3)] [23..16: data_type_id(8)] [15: request/!response(1)]
//	[14..8: destination_node(7)] [7: service=1] [6..0: source_node(7)]
func ServiceID(priority uint8, dataTypeID uint8, isRequest bool, destNode, sourceNode uint8) FrameID {
	var reqBit uint32
	if isRequest {
		reqBit = 1
	}
	v := (uint32(priority&0x7) << 26) |
		(uint32(dataTypeID) << 16) |
		(reqBit << 15) |
		(uint32(destNode&0x7f) << 8) |
		(1 << 7) |
		uint32(sourceNode&0x7f)
	return NewFrameID(v)
}

// DecodeServiceID extracts the fields of a Service Frame ID.
func DecodeServiceID(id FrameID) (priority uint8, dataTypeID uint8, isRequest bool, destNode, sourceNode uint8) {
	v := uint32(id)
	priority = uint8((v >> 26) & 0x7)
	dataTypeID = uint8((v >> 16) & 0xFF)
	isRequest = (v>>15)&1 != 0
	destNode = uint8((v >> 8) & 0x7f)
	sourceNode = uint8(v & 0x7f)
	return
}

// Priority wraps a FrameID so that ordering (Less) reflects
// bus-arbitration priority rather than raw numeric id order: a frame
// with a lower numeric id has a HIGHER priority, so Priority(a).Less(b)
// is true when a wins arbitration over b.
type Priority FrameID

// Less reports whether p wins arbitration over other (p has the
// numerically smaller FrameID).
func (p Priority) Less(other Priority) bool { return uint32(p) < uint32(other) }

// TransferID is the 5-bit counter distinguishing consecutive transfers
// on the same (source, type) pair.
type TransferID uint8

const transferIDMask = 0x1F

// NewTransferID masks value down to 5 bits.
func NewTransferID(value uint8) TransferID { return TransferID(value & transferIDMask) }

// Next returns the next transfer id in the mod-32 sequence.
func (t TransferID) Next() TransferID { return TransferID((uint8(t) + 1) & transferIDMask) }

// FullTransferID uniquely names an in-flight transfer within the
// session manager: the frame id (sans transfer id bits, which live in
// the tail byte, not the frame id itself) plus the transfer id.
type FullTransferID struct {
	FrameID    FrameID
	TransferID TransferID
}

// TailByte is the last byte of a frame's payload:
// [SOT:1][EOT:1][Toggle:1][TransferID:5] (MSB to LSB).
//
// The correct position of the toggle bit is bit 5. (An earlier,
// now-superseded implementation of this gateway read bit 6 for
// toggle, which collided with EOT; that bug is not reproduced here.)
type TailByte uint8

// NewTailByte packs the four tail-byte fields.
func NewTailByte(sot, eot, toggle bool, tid TransferID) TailByte {
	var v uint8
	if sot {
		v |= 1 << 7
	}
	if eot {
		v |= 1 << 6
	}
	if toggle {
		v |= 1 << 5
	}
	v |= uint8(tid) & transferIDMask
	return TailByte(v)
}

func (t TailByte) StartOfTransfer() bool { return uint8(t)&(1<<7) != 0 }
func (t TailByte) EndOfTransfer() bool   { return uint8(t)&(1<<6) != 0 }
func (t TailByte) Toggle() bool          { return uint8(t)&(1<<5) != 0 }
func (t TailByte) TransferID() TransferID {
	return TransferID(uint8(t) & transferIDMask)
}

func (t TailByte) Byte() byte { return byte(t) }
