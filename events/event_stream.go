package events

import (
	"context"
	"math/rand"
	"runtime"
	"sync/atomic"

	"github.com/OneOfOne/xxhash"
)

// EventStream routes events to a fixed set of worker goroutines, hashing
// by stream id so every event belonging to the same logical connection
// lands on the same observer instance and is seen in order.
type EventStream struct {
	ctx       context.Context
	ctxCancel context.CancelFunc
	chans     []chan Event
	dropped   *atomic.Uint64
}

// NewEventStream builds a stream with runtime.NumCPU() workers. Each
// worker gets its own observer from the factory, or its own fan-out
// observer over every factory if multiple factories are given. An empty
// slice falls back to NoopObserver.
func NewEventStream(observerFactories []ObserverFactory) EventStream {
	if len(observerFactories) == 0 {
		observerFactories = append(observerFactories, NewNoopObserver)
	}

	ctx, cancel := context.WithCancel(context.Background())
	workers := runtime.NumCPU()

	stream := EventStream{
		ctx:       ctx,
		ctxCancel: cancel,
		chans:     make([]chan Event, workers),
		dropped:   &atomic.Uint64{},
	}

	for i := 0; i < workers; i++ {
		stream.chans[i] = make(chan Event, 64)

		if len(observerFactories) == 1 {
			go eventStreamProcessor(ctx, stream.chans[i], observerFactories[0]())
		} else {
			go eventStreamProcessor(ctx, stream.chans[i], newMultiObserver(observerFactories))
		}
	}

	return stream
}

// Send delivers evt to the observer bound to its stream id. Delivery is
// blocking: admission/DDF events are low frequency relative to a relay's
// traffic events, so there is no drop-on-overflow path here.
func (e EventStream) Send(ctx context.Context, evt Event) {
	var chanNo uint32

	if streamID := evt.StreamID(); streamID != "" {
		chanNo = xxhash.ChecksumString32(streamID)
	} else {
		chanNo = rand.Uint32()
	}

	ch := e.chans[int(chanNo)%len(e.chans)]

	select {
	case <-ctx.Done():
	case <-e.ctx.Done():
	case ch <- evt:
	}
}

// Dropped returns the number of events dropped since the stream started.
// Always zero today; kept for parity with exporters that poll it.
func (e EventStream) Dropped() uint64 {
	return e.dropped.Load()
}

// Shutdown stops every worker goroutine.
func (e EventStream) Shutdown() {
	e.ctxCancel()
}

func eventStreamProcessor(ctx context.Context, eventChan <-chan Event, observer Observer) {
	defer observer.Shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-eventChan:
			switch typed := evt.(type) {
			case EventSynQueued:
				observer.EventSynQueued(typed)
			case EventSynAdmitted:
				observer.EventSynAdmitted(typed)
			case EventDropped:
				observer.EventDropped(typed)
			case EventRSTSent:
				observer.EventRSTSent(typed)
			case EventDDFDuplicate:
				observer.EventDDFDuplicate(typed)
			case EventDDFRotate:
				observer.EventDDFRotate(typed)
			}
		}
	}
}
