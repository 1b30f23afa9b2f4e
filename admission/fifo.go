package admission

import (
	"context"
	"sync"

	"github.com/shadowmesh/admitcore/packet"
)

// boundedFIFO is the admission queue's sole synchronization primitive: a
// fixed-capacity FIFO of packets supporting non-blocking enqueue, blocking
// dequeue with cancellation, and removal by reference (needed for the
// timer-cancellation race: remove from queue and act only if removed).
type boundedFIFO struct {
	mu       sync.Mutex
	buf      []*packet.Packet
	capacity int
	signal   chan struct{}
}

func newBoundedFIFO(capacity int) *boundedFIFO {
	return &boundedFIFO{
		buf:      make([]*packet.Packet, 0, capacity),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

func (q *boundedFIFO) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryEnqueue appends p if the queue has room. Non-blocking.
func (q *boundedFIFO) TryEnqueue(p *packet.Packet) bool {
	q.mu.Lock()

	if len(q.buf) >= q.capacity {
		q.mu.Unlock()
		return false
	}

	q.buf = append(q.buf, p)
	q.mu.Unlock()
	q.notify()

	return true
}

// Dequeue blocks until a packet is available or ctx is done, preserving
// FIFO order with respect to successful enqueue.
func (q *boundedFIFO) Dequeue(ctx context.Context) (*packet.Packet, bool) {
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			p := q.buf[0]
			q.buf = q.buf[1:]
			q.mu.Unlock()

			return p, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.signal:
		}
	}
}

// Remove deletes p from the queue if it is still present, reporting
// whether it found (and removed) it. This is the half of the
// timer-cancellation race the timeout handler runs: exactly one of Remove
// (from the timer) and Dequeue (from accept) will observe p.
func (q *boundedFIFO) Remove(p *packet.Packet) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.buf {
		if item == p {
			q.buf = append(q.buf[:i], q.buf[i+1:]...)
			return true
		}
	}

	return false
}

// DrainNonBlocking empties the queue and returns everything it held, in
// FIFO order.
func (q *boundedFIFO) DrainNonBlocking() []*packet.Packet {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.buf
	q.buf = nil

	return out
}

func (q *boundedFIFO) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.buf)
}
