package uavcan

// NodeStatus is the periodic liveness/health broadcast every UAVCAN
// node publishes: uptime_sec as a u32, a packed health/mode/sub_mode
// byte, then a u16 vendor-specific status code.
type NodeStatus struct {
	UptimeSec                uint32
	Health                   uint8 // 2 bits
	Mode                     uint8 // 3 bits
	SubMode                  uint8 // 3 bits
	VendorSpecificStatusCode uint16
}

// NodeStatusDataTypeID is the message data type id NodeStatus is
// broadcast under.
const NodeStatusDataTypeID uint16 = 341

const (
	NodeHealthOK       = 0
	NodeHealthWarning  = 1
	NodeHealthError    = 2
	NodeHealthCritical = 3
)

const (
	NodeModeOperational    = 0
	NodeModeInitialization = 1
	NodeModeMaintenance    = 2
	NodeModeSoftwareUpdate = 3
	NodeModeOffline        = 7
)

func (s *NodeStatus) FieldCount() int { return 5 }

func (s *NodeStatus) FieldAt(i int) Field {
	switch i {
	case 0:
		return scalarUint32{&s.UptimeSec}
	case 1:
		return scalarUint8{&s.Health, 2}
	case 2:
		return scalarUint8{&s.Mode, 3}
	case 3:
		return scalarUint8{&s.SubMode, 3}
	case 4:
		return scalarUint16{&s.VendorSpecificStatusCode}
	default:
		panic("uavcan: NodeStatus field index out of range")
	}
}

// scalarUint32/scalarUint16/scalarUint8 adapt a plain Go field pointer
// into a Field/PrimitiveType pair without the caller needing to hold a
// parallel UintT copy in sync — the PrimitiveType reads/writes the
// field directly.
type scalarUint32 struct{ v *uint32 }

func (f scalarUint32) Len() int                    { return 1 }
func (f scalarUint32) Element(j int) PrimitiveType { return f }
func (f scalarUint32) BitWidth() int               { return 32 }
func (f scalarUint32) WriteBits(w *BitWriter) bool {
	return w.WriteBits(uint64(*f.v), 32)
}
func (f scalarUint32) ReadBits(r *BitReader) bool {
	v, ok := r.ReadBits(32)
	if !ok {
		return false
	}
	*f.v = uint32(v)
	return true
}

type scalarUint16 struct{ v *uint16 }

func (f scalarUint16) Len() int                    { return 1 }
func (f scalarUint16) Element(j int) PrimitiveType { return f }
func (f scalarUint16) BitWidth() int               { return 16 }
func (f scalarUint16) WriteBits(w *BitWriter) bool {
	return w.WriteBits(uint64(*f.v), 16)
}
func (f scalarUint16) ReadBits(r *BitReader) bool {
	v, ok := r.ReadBits(16)
	if !ok {
		return false
	}
	*f.v = uint16(v)
	return true
}

type scalarUint8 struct {
	v     *uint8
	width int
}

func (f scalarUint8) Len() int                    { return 1 }
func (f scalarUint8) Element(j int) PrimitiveType { return f }
func (f scalarUint8) BitWidth() int               { return f.width }
func (f scalarUint8) WriteBits(w *BitWriter) bool {
	return w.WriteBits(uint64(*f.v), f.width)
}
func (f scalarUint8) ReadBits(r *BitReader) bool {
	v, ok := r.ReadBits(f.width)
	if !ok {
		return false
	}
	*f.v = uint8(v)
	return true
}
