package transport

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/uavcan-gateway/internal/can"
)

// PriorityTx funnels all backend writes through a single goroutine
// (fan-in) draining a bounded queue in CAN arbitration order: the frame
// with the numerically lowest identifier is always written next, and
// frames carrying the same identifier keep their enqueue order. UAVCAN
// splits one transfer across frames with one identifier, so equal-id
// FIFO is what keeps a multi-frame transfer's frames in sequence while
// still letting a higher-priority transfer overtake it in the queue,
// the same way the bus itself would arbitrate.
//
// Enqueue is non-blocking: when the queue is full, SendFrame invokes
// the configured OnDrop hook and returns its error (usually an overflow
// sentinel). This keeps producers from blocking behind a slow or wedged
// device.
//
// Life-cycle:
//
//	tx := NewPriorityTx(ctx, cap, sendFn, hooks)
//	tx.SendFrame(frame)
//	tx.Close()
//
// After Close, SendFrame returns ErrTxClosed and frames still queued
// are discarded; a gateway shutting down has nowhere to send them.
//
// Hooks let each backend keep distinct metrics / logging without
// duplicating the goroutine + queue plumbing.
type PriorityTx struct {
	mu     sync.Mutex
	q      txQueue
	seq    uint64
	limit  int
	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	send   func(can.Frame) error
	hooks  Hooks
	closed atomic.Bool
}

// Hooks customize PriorityTx behavior.
type Hooks struct {
	// OnError is called when send returns a non-nil error (frame not sent).
	OnError func(error)
	// OnAfter is called only after a successful send.
	OnAfter func()
	// OnDrop is called when the queue is full; its returned error is
	// returned from SendFrame. If nil, the overflow is silent
	// (best-effort fire-and-forget).
	OnDrop func() error
}

// ErrTxClosed is returned by SendFrame after Close.
var ErrTxClosed = errors.New("priority tx closed")

// NewPriorityTx constructs a PriorityTx holding at most limit queued frames.
func NewPriorityTx(parent context.Context, limit int, send func(can.Frame) error, hooks Hooks) *PriorityTx {
	if limit < 1 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(parent)
	t := &PriorityTx{
		limit:  limit,
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		send:   send,
		hooks:  hooks,
	}
	t.wg.Add(1)
	go t.loop()
	return t
}

func (t *PriorityTx) loop() {
	defer t.wg.Done()
	for {
		fr, ok := t.pop()
		if !ok {
			select {
			case <-t.wake:
				continue
			case <-t.ctx.Done():
				return
			}
		}
		if err := t.send(fr); err != nil {
			if t.hooks.OnError != nil {
				t.hooks.OnError(err)
			}
			continue
		}
		if t.hooks.OnAfter != nil {
			t.hooks.OnAfter()
		}
	}
}

// pop removes the queue head (lowest arbitration id, oldest within an
// id), or reports ok=false when the queue is empty.
func (t *PriorityTx) pop() (can.Frame, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.q.Len() == 0 {
		return can.Frame{}, false
	}
	it := heap.Pop(&t.q).(txItem)
	return it.fr, true
}

// SendFrame queues a frame for asynchronous transmission or returns the
// drop error if the queue is full.
func (t *PriorityTx) SendFrame(fr can.Frame) error {
	if t.closed.Load() {
		return ErrTxClosed
	}
	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		return ErrTxClosed
	}
	if t.q.Len() >= t.limit {
		t.mu.Unlock()
		if t.hooks.OnDrop != nil {
			return t.hooks.OnDrop()
		}
		return nil
	}
	t.seq++
	heap.Push(&t.q, txItem{fr: fr, key: fr.Arbitration(), seq: t.seq})
	t.mu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the worker and waits for it to exit. Queued frames that
// were not yet written are discarded.
func (t *PriorityTx) Close() {
	if t.closed.Swap(true) {
		return
	}
	t.cancel()
	t.wg.Wait()
}

// QueueLen reports the number of frames currently queued (diagnostics).
func (t *PriorityTx) QueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.q.Len()
}

type txItem struct {
	fr  can.Frame
	key uint32 // arbitration id: lower wins, like the bus
	seq uint64 // enqueue order: FIFO within an id
}

type txQueue []txItem

func (q txQueue) Len() int { return len(q) }

func (q txQueue) Less(i, j int) bool {
	if q[i].key != q[j].key {
		return q[i].key < q[j].key
	}
	return q[i].seq < q[j].seq
}

func (q txQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *txQueue) Push(x any) { *q = append(*q, x.(txItem)) }

func (q *txQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
