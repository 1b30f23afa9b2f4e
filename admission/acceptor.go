package admission

import (
	"context"
	"errors"
	"time"

	"github.com/shadowmesh/admitcore/events"
	"github.com/shadowmesh/admitcore/packet"
)

// ErrAcceptorAlreadyTaken is returned by Queue.Acceptor when a handle was
// already issued. The admission queue has exactly one logical consumer; a
// second caller asking for a handle is a programming error, not a runtime
// condition to degrade gracefully from.
var ErrAcceptorAlreadyTaken = errors.New("admission: acceptor already taken")

// Acceptor is the single-consumer handle for draining admitted
// connections off a Queue. Obtain one with Queue.Acceptor; there is never
// more than one live at a time.
type Acceptor struct {
	q *Queue
}

// Acceptor issues the queue's one consumer handle. Calling it twice
// returns ErrAcceptorAlreadyTaken.
func (q *Queue) Acceptor() (*Acceptor, error) {
	q.acceptorMu.Lock()
	defer q.acceptorMu.Unlock()

	if q.acceptorTaken {
		return nil, ErrAcceptorAlreadyTaken
	}

	q.acceptorTaken = true

	return &Acceptor{q: q}, nil
}

// Accept is the queue's consumer algorithm. It blocks until a SYN is
// admitted, the queue is shut down, or ctx is done; timeoutMs <= 0
// means block without an accept-side deadline (the per-packet timeout
// still applies to each queued entry independently).
func (a *Acceptor) Accept(ctx context.Context, timeoutMs int64) (Connection, bool) {
	waitCtx := ctx
	if timeoutMs > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	for {
		p, ok := a.q.fifo.Dequeue(waitCtx)
		if !ok {
			return nil, false
		}

		if p.IsPoison() {
			a.q.drainRemaining()
			return nil, false
		}

		a.q.cancelTimer(p)

		if !p.Flags.Has(packet.FlagSYN) {
			a.q.redispatchOrDrop(p)
			continue
		}

		if conn, admitted := a.q.acceptSyn(waitCtx, p); admitted {
			return conn, true
		}
	}
}

// acceptSyn decides the fate of a dequeued SYN: drop without a sender,
// drop as a duplicate of an already-admitted connection from the same
// remote identity, or offer it to the connection manager.
func (q *Queue) acceptSyn(ctx context.Context, syn *packet.Packet) (Connection, bool) {
	if syn.OptionalFrom == nil {
		q.metrics.DropsNoFrom.Add(1)
		q.emit(events.NewEventDropped(streamID(syn), syn.SendStreamID, events.DropReasonNoFrom))

		return nil, false
	}

	if _, identity, ok := q.cm.GetConnectionByOutboundID(syn.ReceiveStreamID); ok {
		if identity != nil && identity.Equal(syn.OptionalFrom) {
			q.metrics.DropsDuplicateSyn.Add(1)
			q.emit(events.NewEventDropped(streamID(syn), syn.SendStreamID, events.DropReasonDuplicateSyn))

			return nil, false
		}
	}

	conn, admitted := q.cm.ReceiveConnection(ctx, syn)
	if !admitted {
		return nil, false
	}

	q.metrics.Accepts.Add(1)
	q.emit(events.NewEventSynAdmitted(streamID(syn), syn.SendStreamID))

	return conn, true
}

// drainRemaining empties the queue on shutdown: every still-pending SYN
// gets an RST, every still-pending non-SYN is re-dispatched if possible or
// dropped. Per-packet timers are cancelled so they don't also act on
// packets this drain already handled.
func (q *Queue) drainRemaining() {
	for _, p := range q.fifo.DrainNonBlocking() {
		q.cancelTimer(p)

		if p.IsPoison() {
			continue
		}

		q.actOnExpired(p)
	}
}
