package hub

import (
	"sync"

	"github.com/kstaniek/uavcan-gateway/internal/can"
	"github.com/kstaniek/uavcan-gateway/internal/logging"
	"github.com/kstaniek/uavcan-gateway/internal/metrics"
)

// BackpressurePolicy decides what happens when a client's buffer is full.
type BackpressurePolicy int

const (
	// PolicyDrop silently drops the frame for that client.
	PolicyDrop BackpressurePolicy = iota
	// PolicyKick disconnects the client; a stalled observer that loses
	// arbitrary frames would see corrupted transfer reassembly anyway.
	PolicyKick
)

// Filter is an id/mask acceptance filter in SocketCAN convention: a
// frame passes when frame_id & Mask == ID & Mask. The zero value
// matches everything. Observers interested in one UAVCAN message type
// set Mask to cover the data_type_id bits of the frame identifier.
type Filter struct {
	ID   uint32
	Mask uint32
}

// Match reports whether a raw CANID (flags included) passes the filter.
func (f Filter) Match(canid uint32) bool { return canid&f.Mask == f.ID&f.Mask }

// Client is one fan-out target: a buffered frame channel plus a close
// signal. Accept restricts what Broadcast delivers to it.
type Client struct {
	Out       chan can.Frame
	Closed    chan struct{}
	Accept    Filter
	closeOnce sync.Once
}

// NewClient allocates a client with the given buffer and filter.
func NewClient(buf int, accept Filter) *Client {
	return &Client{
		Out:    make(chan can.Frame, buf),
		Closed: make(chan struct{}),
		Accept: accept,
	}
}

// Close signals the client is closed (idempotent).
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.Closed)
	})
}

// Hub fans every bus frame out to its registered clients: TCP observer
// connections and the gateway's own UAVCAN node tap. It never blocks on
// a slow client; the per-client policy decides between dropping frames
// and kicking the client.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	OutBufSize int
	Policy     BackpressurePolicy
}

// New creates a Hub with default settings.
func New() *Hub { return &Hub{clients: make(map[*Client]struct{})} }

// Add registers a client with the hub.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	prev := len(h.clients)
	h.clients[c] = struct{}{}
	cur := len(h.clients)
	h.mu.Unlock()
	if prev == 0 && cur == 1 {
		logging.L().Info("clients_first_connected")
	}
}

// Remove unregisters a client and updates metrics; safe to call multiple times.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	if existed {
		delete(h.clients, c)
	}
	cur := len(h.clients)
	h.mu.Unlock()
	select {
	case <-c.Closed:
	default:
		c.Close()
	}
	metrics.SetHubClients(cur)
	if existed && cur == 0 {
		logging.L().Info("clients_last_disconnected")
	}
}

// Broadcast delivers a frame to every client whose filter accepts it,
// honoring the backpressure policy.
func (h *Hub) Broadcast(fr can.Frame) {
	clients := h.Snapshot()
	metrics.SetBroadcastFanout(len(clients))
	metrics.SetHubClients(len(clients))
	// queue depth sampling
	if len(clients) > 0 {
		max := 0
		sum := 0
		for _, c := range clients {
			l := len(c.Out)
			if l > max {
				max = l
			}
			sum += l
		}
		metrics.SetQueueDepth(max, sum/len(clients))
	}
	for _, c := range clients {
		if !c.Accept.Match(fr.CANID) {
			continue
		}
		select {
		case c.Out <- fr:
		default:
			if h.Policy == PolicyKick {
				metrics.IncHubKick()
				c.Close() // signal writer to exit; server will Remove on disconnect
			} else {
				metrics.IncHubDrop()
			}
		}
	}
}

// Snapshot returns a slice copy of current clients (read-only use).
func (h *Hub) Snapshot() []*Client {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	return clients
}

// Count returns the number of active clients.
func (h *Hub) Count() int { h.mu.RLock(); n := len(h.clients); h.mu.RUnlock(); return n }
