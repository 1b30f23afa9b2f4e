// Package admission implements the bounded inbound-connection admission
// queue: a bounded FIFO of pending SYN-bearing packets with a per-entry
// deadline, a single blocking consumer, duplicate SYN suppression, and RST
// emission on reject or timeout.
package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shadowmesh/admitcore/clock"
	"github.com/shadowmesh/admitcore/events"
	"github.com/shadowmesh/admitcore/packet"
)

// DefaultQueueSize and DefaultAcceptTimeoutMs are the queue's default
// tuneables.
const (
	DefaultQueueSize      = 64
	DefaultAcceptTimeoutMs = 3000
)

// Queue is the admission queue. The zero value is not usable; construct
// with New.
type Queue struct {
	fifo            *boundedFIFO
	acceptTimeoutMs int64
	clk             clock.Service
	cm              ConnectionManager
	codec           PacketCodec
	logger          zerolog.Logger
	metrics         *Metrics
	stream          events.EventStream
	hasStream       bool

	stateMu sync.Mutex
	active  bool

	timersMu sync.Mutex
	timers   map[*packet.Packet]clock.Handle

	acceptorMu    sync.Mutex
	acceptorTaken bool
}

// Option configures a Queue at construction.
type Option func(*Queue)

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(q *Queue) { q.fifo = newBoundedFIFO(n) }
}

// WithAcceptTimeoutMs overrides DefaultAcceptTimeoutMs.
func WithAcceptTimeoutMs(ms int64) Option {
	return func(q *Queue) { q.acceptTimeoutMs = ms }
}

// WithLogger binds a logger; component="admission" is added automatically.
func WithLogger(logger zerolog.Logger) Option {
	return func(q *Queue) { q.logger = logger.With().Str("component", "admission").Logger() }
}

// WithEventStream wires the queue to an event stream so observers (stats
// exporters, tests) can see admission lifecycle events as they happen.
func WithEventStream(stream events.EventStream) Option {
	return func(q *Queue) {
		q.stream = stream
		q.hasStream = true
	}
}

func (q *Queue) emit(evt events.Event) {
	if !q.hasStream {
		return
	}

	q.stream.Send(context.Background(), evt)
}

func streamID(p *packet.Packet) string {
	return fmt.Sprintf("%d:%d", p.SendStreamID, p.ReceiveStreamID)
}

// New builds a Queue. It starts inactive; call SetActive(true) before
// feeding it packets.
func New(clk clock.Service, cm ConnectionManager, codec PacketCodec, opts ...Option) *Queue {
	q := &Queue{
		fifo:            newBoundedFIFO(DefaultQueueSize),
		acceptTimeoutMs: DefaultAcceptTimeoutMs,
		clk:             clk,
		cm:              cm,
		codec:           codec,
		logger:          zerolog.Nop(),
		metrics:         &Metrics{},
		timers:          make(map[*packet.Packet]clock.Handle),
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Metrics exposes the queue's counters.
func (q *Queue) Metrics() Snapshot {
	return q.metrics.snapshot(q.fifo.Len())
}

// IsActive reports the current lifecycle flag.
func (q *Queue) IsActive() bool {
	q.stateMu.Lock()
	defer q.stateMu.Unlock()

	return q.active
}

// SetActive toggles the queue's lifecycle. Turning it off drains whatever
// is currently queued with the same RST/redispatch
// rule a timeout uses, then enqueues a poison sentinel (blocking until
// space is available) so a consumer already parked in Accept wakes and
// observes termination rather than blocking forever. A second,
// consumer-side drain on receipt of the poison (see drainRemaining)
// catches anything a racing producer slipped in between this drain and
// the flag flip taking effect everywhere.
func (q *Queue) SetActive(on bool) {
	q.stateMu.Lock()
	q.active = on
	q.stateMu.Unlock()

	if !on {
		q.drainRemaining()
		q.enqueuePoisonBlocking()
	}
}

// enqueuePoisonBlocking offers the poison sentinel until it is accepted.
// The admission queue has no other blocking producer, so this is the one
// deliberate producer-side backpressure point.
func (q *Queue) enqueuePoisonBlocking() {
	p := packet.NewPoison()

	for !q.fifo.TryEnqueue(p) {
		time.Sleep(time.Millisecond)
	}
}

// ReceiveNewSyn is the producer entry point. Non-blocking; safe to call
// concurrently from any number of producer goroutines.
func (q *Queue) ReceiveNewSyn(p *packet.Packet) {
	if !q.IsActive() {
		q.metrics.DropsInactive.Add(1)
		q.emit(events.NewEventDropped(streamID(p), p.SendStreamID, events.DropReasonInactive))

		if p.Flags.Has(packet.FlagSYN) {
			q.sendReset(p)
		} else {
			p.ReleasePayload()
		}

		return
	}

	if !q.fifo.TryEnqueue(p) {
		q.metrics.DropsFull.Add(1)
		q.emit(events.NewEventDropped(streamID(p), p.SendStreamID, events.DropReasonFull))

		if p.Flags.Has(packet.FlagSYN) {
			q.sendReset(p)
		} else {
			p.ReleasePayload()
		}

		return
	}

	q.emit(events.NewEventSynQueued(streamID(p), p.SendStreamID))
	q.armTimeout(p)
}

// armTimeout schedules the one-shot deadline for a freshly enqueued
// packet.
func (q *Queue) armTimeout(p *packet.Packet) {
	handle := q.clk.Schedule(q.acceptTimeoutMs, func() { q.onTimeout(p) })

	q.timersMu.Lock()
	q.timers[p] = handle
	q.timersMu.Unlock()
}

// cancelTimer disarms p's deadline, e.g. because accept() consumed it
// before the timer fired.
func (q *Queue) cancelTimer(p *packet.Packet) {
	q.timersMu.Lock()
	handle, ok := q.timers[p]
	delete(q.timers, p)
	q.timersMu.Unlock()

	if ok {
		handle.Cancel()
	}
}

// onTimeout is the timer's fire handler. It removes the packet from the
// queue and acts only if the removal actually found it there: the
// canonical "remove and act only if removed" pattern, which closes the
// window a flag checked before removal would leave open for accept() to
// win the race invisibly.
func (q *Queue) onTimeout(p *packet.Packet) {
	q.timersMu.Lock()
	delete(q.timers, p)
	q.timersMu.Unlock()

	if !q.fifo.Remove(p) {
		// Already dequeued by accept(); accept() owns it now.
		return
	}

	q.metrics.Timeouts.Add(1)
	q.emit(events.NewEventDropped(streamID(p), p.SendStreamID, events.DropReasonTimeout))
	q.actOnExpired(p)
}

// actOnExpired implements the SYN/non-SYN branch shared by timeout and
// shutdown-drain handling.
func (q *Queue) actOnExpired(p *packet.Packet) {
	if p.Flags.Has(packet.FlagSYN) {
		q.sendReset(p)
		return
	}

	q.redispatchOrDrop(p)
}

// redispatchOrDrop is the non-SYN branch of timeout handling: attempt to
// re-dispatch to its connection if one now exists, else release its
// payload and drop.
func (q *Queue) redispatchOrDrop(p *packet.Packet) {
	conn, _, ok := q.cm.GetConnectionByOutboundID(p.ReceiveStreamID)
	if ok {
		if recv, ok := conn.(PacketReceiver); ok {
			recv.ReceivePacket(p)
			return
		}
	}

	p.ReleasePayload()
}
