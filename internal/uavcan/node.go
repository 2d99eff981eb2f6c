package uavcan

import (
	"errors"
	"sync"

	"github.com/kstaniek/uavcan-gateway/internal/can"
	"github.com/kstaniek/uavcan-gateway/internal/metrics"
	"github.com/kstaniek/uavcan-gateway/internal/serial"
	"github.com/kstaniek/uavcan-gateway/internal/socketcan"
)

// MaxDataLength is the classic-CAN transport's per-frame capacity,
// matching MaxFrameDataLength; it is the P used throughout framer.go
// and deframer.go.
const MaxDataLength = MaxFrameDataLength

// TransferInterface is the contract a Node uses to move frames across
// an actual bus. A BackendTransferInterface implementation adapts this
// to the gateway's existing serial/SocketCAN TX writers.
type TransferInterface interface {
	Transmit(f Frame) error
}

// ReceivedTransfer is handed to a Subscription when a transfer for its
// data type id completes.
type ReceivedTransfer struct {
	SourceNode uint8
	TransferID TransferID
	Body       []byte
}

// Subscription receives completed transfers for one data type id.
type Subscription func(ReceivedTransfer)

// Node is the facade tying together outbound framing, inbound
// deframing/session management, and per-type dispatch. It holds no
// internal goroutine or timer: RxProcessFrame must be driven by the
// caller's own read loop (in the gateway, the hub-tap goroutine in
// cmd/uavcan-server, which converts frames with DecodeInbound), keeping
// the engine itself single-threaded and cooperative.
type Node struct {
	mu     sync.RWMutex
	nodeID *uint8 // nil means anonymous
	xcvr   TransferInterface

	transferIDs map[uint16]TransferID // next transfer id per outbound data type id

	sessions *SessionManager
	subs     map[uint16][]Subscription

	onError func(err error)
}

// NodeOption configures a Node at construction time.
type NodeOption func(*Node)

// WithSessionCapacity bounds the number of concurrently in-flight
// inbound transfers (default 32).
func WithSessionCapacity(n int) NodeOption {
	return func(node *Node) { node.sessions = NewSessionManager(n) }
}

// WithOnError registers a callback invoked whenever RxProcessFrame
// encounters a toggle or CRC error, or completes a message transfer
// whose data type id has no subscriber (ErrUnknownTypeID).
func WithOnError(fn func(err error)) NodeOption {
	return func(node *Node) { node.onError = fn }
}

// NewNode constructs a Node bound to xcvr for outbound transmission.
// nodeID is nil for an anonymous node, which may only send short
// anonymous message broadcasts.
func NewNode(nodeID *uint8, xcvr TransferInterface, opts ...NodeOption) *Node {
	n := &Node{
		nodeID:      nodeID,
		xcvr:        xcvr,
		transferIDs: make(map[uint16]TransferID),
		sessions:    NewSessionManager(32),
		subs:        make(map[uint16][]Subscription),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NodeID returns the assigned node id, or ok=false if anonymous. Node
// id 0 is reserved for anonymous frames and counts as unassigned.
func (n *Node) NodeID() (id uint8, ok bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.nodeID == nil || *n.nodeID == 0 {
		return 0, false
	}
	return *n.nodeID, true
}

// Subscribe registers fn to be invoked for every completed transfer
// whose frame id carries dataTypeID.
func (n *Node) Subscribe(dataTypeID uint16, fn Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs[dataTypeID] = append(n.subs[dataTypeID], fn)
}

// nextTransferID returns and advances the per-data-type-id transfer id
// counter used for outbound broadcasts.
func (n *Node) nextTransferID(dataTypeID uint16) TransferID {
	n.mu.Lock()
	defer n.mu.Unlock()
	tid := n.transferIDs[dataTypeID]
	n.transferIDs[dataTypeID] = tid.Next()
	return tid
}

// Broadcast serializes body and transmits it as a Message Frame with
// the given priority and data type id, splitting into multiple
// transport frames and adding the transport CRC automatically when the
// payload exceeds a single frame's capacity.
func (n *Node) Broadcast(priority uint8, dataTypeID uint16, body Struct) error {
	nodeID, ok := n.NodeID()
	if !ok {
		return ErrAnonymousRequired
	}
	id := MessageID(priority, dataTypeID, nodeID)
	tid := n.nextTransferID(dataTypeID)
	return n.send(id, tid, body)
}

// BroadcastAnonymous transmits body as an Anonymous Frame; legal for
// nodes without an assigned NodeID and for any node that wants to
// advertise before address claim completes. Anonymous transfers are
// restricted to a single frame by the protocol (no inbound NodeID to
// correlate a multi-frame CRC restart against), so BroadcastAnonymous
// returns ErrAnonymousPayloadTooLarge if body does not fit one frame.
func (n *Node) BroadcastAnonymous(priority uint8, discriminator uint16, typeIDLow uint8, body Struct) error {
	id := AnonymousID(priority, discriminator, typeIDLow)
	tid := n.nextTransferID(uint16(typeIDLow))
	payload := Serialize(body)
	if len(payload) > MaxDataLength-1 {
		return ErrAnonymousPayloadTooLarge
	}
	return n.send(id, tid, body)
}

func (n *Node) send(id FrameID, tid TransferID, body Struct) error {
	fr := NewFramer(id, tid, body, MaxDataLength)
	for {
		frame, ok := fr.NextFrame()
		if !ok {
			return nil
		}
		if err := n.xcvr.Transmit(frame); err != nil {
			return err
		}
	}
}

// RxProcessFrame feeds one inbound transport frame through the session
// manager; on completion of a message transfer it hands the raw body
// bytes, in a ReceivedTransfer, to every Subscription registered for
// the frame's data type id (subscribers decode them with Deserialize).
// Toggle/CRC errors are reported through the onError hook (if
// configured) rather than returned, since a single malformed transfer
// must not stop the caller's read loop.
func (n *Node) RxProcessFrame(f Frame) {
	completed, ok, err := n.sessions.Ingest(f)
	if err != nil {
		if n.onError != nil {
			n.onError(err)
		}
		return
	}
	if !ok {
		return
	}
	if f.ID.IsService() {
		// Service transfer dispatch is left to a higher-level client;
		// the core engine only guarantees correct reassembly.
		return
	}
	_, dataTypeID, sourceNode := DecodeMessageID(f.ID)
	n.mu.RLock()
	subs := append([]Subscription(nil), n.subs[dataTypeID]...)
	n.mu.RUnlock()
	if len(subs) == 0 {
		metrics.IncUavcanTransferError(ErrorMetricLabel(ErrUnknownTypeID))
		if n.onError != nil {
			n.onError(ErrUnknownTypeID)
		}
		return
	}
	rt := ReceivedTransfer{SourceNode: sourceNode, TransferID: completed.ID.TransferID, Body: completed.Body}
	for _, sub := range subs {
		sub(rt)
	}
}

// BackendTransferInterface adapts the gateway's existing backend send
// functions (the func(can.Frame) error returned by initSerialBackend /
// initSocketCANBackend, themselves backed by a PriorityTx funnel
// goroutine) to TransferInterface, so a Node can transmit over
// whichever backend main.go selected. Of the backend packages it uses
// only their ErrTxOverflow sentinels, which Transmit maps to
// ErrBufferExhausted.
type BackendTransferInterface struct {
	send func(can.Frame) error
}

// NewBackendTransferInterface wraps a backend's send function.
func NewBackendTransferInterface(send func(can.Frame) error) *BackendTransferInterface {
	return &BackendTransferInterface{send: send}
}

func (b *BackendTransferInterface) Transmit(f Frame) error {
	if b.send == nil {
		return errors.New("uavcan: backend transfer interface has no transmitter")
	}
	err := b.send(f.ToCANFrame())
	if errors.Is(err, serial.ErrTxOverflow) || errors.Is(err, socketcan.ErrTxOverflow) {
		return ErrBufferExhausted
	}
	return err
}

// DecodeInbound converts a raw CAN frame from a backend's RX path
// into a uavcan Frame ready for RxProcessFrame. Frames without the
// extended-id flag set, RTR/error frames, and frames with no payload
// byte to hold a tail byte are not uavcan traffic and are reported back
// as ok=false.
func DecodeInbound(cf can.Frame) (Frame, bool) {
	if cf.CANID&can.CAN_EFF_FLAG == 0 {
		return Frame{}, false
	}
	if cf.Len == 0 || cf.Len > MaxFrameDataLength {
		return Frame{}, false
	}
	if cf.CANID&(can.CAN_RTR_FLAG|can.CAN_ERR_FLAG) != 0 {
		return Frame{}, false
	}
	return FrameFromCANFrame(cf), true
}
