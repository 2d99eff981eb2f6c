package uavcan

import (
	"sync"

	"github.com/kstaniek/uavcan-gateway/internal/metrics"
)

// CompletedTransfer is a fully reassembled transfer handed back by the
// SessionManager once its final frame arrives.
type CompletedTransfer struct {
	ID   FullTransferID
	Body []byte
}

// SessionManager correlates inbound frames by FullTransferID, running
// each transfer's bytes through its own Deframer, and evicts the
// oldest in-flight transfer (FIFO) when a new transfer would exceed
// the table's fixed capacity, so memory stays bounded no matter how
// many senders stall mid-transfer.
type SessionManager struct {
	mu       sync.Mutex
	capacity int
	order    []FullTransferID // FIFO order of first-seen transfers, oldest first
	sessions map[FullTransferID]*Deframer

	evictions int
}

// NewSessionManager returns a SessionManager holding at most capacity
// concurrent in-flight transfers.
func NewSessionManager(capacity int) *SessionManager {
	if capacity < 1 {
		capacity = 1
	}
	return &SessionManager{
		capacity: capacity,
		sessions: make(map[FullTransferID]*Deframer, capacity),
	}
}

// Evictions reports how many in-flight transfers have been dropped to
// make room for a new one.
func (m *SessionManager) Evictions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictions
}

// Len reports the number of transfers currently in flight.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Ingest feeds one frame into its transfer's Deframer, creating a new
// session if this is the first frame seen for its FullTransferID. It
// returns a CompletedTransfer and ok=true once the transfer's final
// frame lands; any toggle or CRC error surfaces here and also retires
// the session (a fresh SOT restarts it, as handled inside Deframer).
func (m *SessionManager) Ingest(f Frame) (CompletedTransfer, bool, error) {
	id := f.FullTransferID()

	if f.Tail().StartOfTransfer() && f.Tail().EndOfTransfer() {
		return m.ingestSingleFrame(id, f)
	}

	m.mu.Lock()
	d, ok := m.sessions[id]
	if !ok {
		if !f.Tail().StartOfTransfer() {
			// A continuation frame with no matching session (stale,
			// belongs to an evicted or already-completed transfer, or a
			// frame we genuinely never saw the start of): ignore
			// without creating a session for it.
			m.mu.Unlock()
			return CompletedTransfer{}, false, nil
		}
		if len(m.sessions) >= m.capacity {
			m.evictOldestLocked()
		}
		d = NewDeframer()
		m.sessions[id] = d
		m.order = append(m.order, id)
	}
	m.mu.Unlock()

	body, done, err := d.Ingest(f)
	if err != nil {
		m.retire(id)
		metrics.IncUavcanTransferError(ErrorMetricLabel(err))
		metrics.SetUavcanSessionsActive(m.Len())
		return CompletedTransfer{}, false, err
	}
	if !done {
		return CompletedTransfer{}, false, nil
	}
	m.retire(id)
	metrics.IncUavcanTransferComplete()
	metrics.SetUavcanSessionsActive(m.Len())
	return CompletedTransfer{ID: id, Body: body}, true, nil
}

// ingestSingleFrame handles the SOT∧EOT case directly: a single-frame
// transfer carries no CRC and completes on its own frame, so it never
// takes a slot in the session table — no capacity check, no eviction of
// an unrelated in-flight transfer. Its only table access is retiring an
// in-flight session with the same FullTransferID.
func (m *SessionManager) ingestSingleFrame(id FullTransferID, f Frame) (CompletedTransfer, bool, error) {
	// A stray single-frame transfer reusing an id already tracked as
	// in-flight (e.g. a restarted transfer) supersedes it.
	m.retire(id)

	d := NewDeframer()
	body, done, err := d.Ingest(f)
	if err != nil {
		metrics.IncUavcanTransferError(ErrorMetricLabel(err))
		metrics.SetUavcanSessionsActive(m.Len())
		return CompletedTransfer{}, false, err
	}
	if !done {
		// Unreachable for a well-formed SOT∧EOT frame, but keep the
		// contract symmetric with the multi-frame path.
		return CompletedTransfer{}, false, nil
	}
	metrics.IncUavcanTransferComplete()
	metrics.SetUavcanSessionsActive(m.Len())
	return CompletedTransfer{ID: id, Body: body}, true, nil
}

// evictOldestLocked drops the longest-resident in-flight transfer.
// Callers must hold m.mu.
func (m *SessionManager) evictOldestLocked() {
	for len(m.order) > 0 {
		victim := m.order[0]
		m.order = m.order[1:]
		if _, ok := m.sessions[victim]; ok {
			delete(m.sessions, victim)
			m.evictions++
			metrics.IncUavcanSessionEviction()
			return
		}
	}
}

// retire removes a completed or errored transfer's session.
func (m *SessionManager) retire(id FullTransferID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}
