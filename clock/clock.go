// Package clock provides the narrow timer/clock collaborator shared by the
// admission queue and the decaying duplicate filter.
//
// The source this module is modeled on reaches for a process-global timer.
// Here the timer is always an explicitly injected collaborator: production
// code gets Real, tests get a Virtual clock so "advance simulated time by
// N ms" scenarios run without a wall-clock sleep.
package clock

import (
	"sync"
	"time"
)

// Handle identifies a scheduled one-shot event. Cancel is best-effort: an
// event that already fired, or is firing concurrently, is unaffected.
type Handle interface {
	Cancel()
}

// Service is the timer/clock collaborator.
type Service interface {
	// NowMs returns a monotonic millisecond clock.
	NowMs() int64
	// Schedule arms a one-shot event firing handler after delayMs. handler
	// must not block: it runs on the service's internal worker.
	Schedule(delayMs int64, handler func()) Handle
}

// Real is a Service backed by the wall clock and Go's runtime timers, the
// default collaborator for production use.
type Real struct{}

// NewReal returns the production clock.Service.
func NewReal() Real { return Real{} }

// realEpoch anchors Real.NowMs: wall-clock milliseconds at process start
// plus the monotonic time elapsed since, so the value never steps
// backwards when the wall clock is adjusted.
var realEpoch = time.Now()

func (Real) NowMs() int64 {
	return realEpoch.UnixMilli() + time.Since(realEpoch).Milliseconds()
}

func (Real) Schedule(delayMs int64, handler func()) Handle {
	if delayMs < 0 {
		delayMs = 0
	}

	t := time.AfterFunc(time.Duration(delayMs)*time.Millisecond, handler)

	return realHandle{t}
}

type realHandle struct{ t *time.Timer }

func (h realHandle) Cancel() { h.t.Stop() }

// Virtual is a Service whose notion of "now" only advances when the test
// calls Advance. Scheduled events fire synchronously, in deadline order,
// from within Advance: there is no background goroutine, which is what
// makes timer-driven scenarios deterministic under test.
type Virtual struct {
	mu      sync.Mutex
	nowMs   int64
	pending []*virtualEvent
	seq     uint64
}

type virtualEvent struct {
	deadline int64
	seq      uint64
	handler  func()
	fired    bool
	canceled bool
}

func (e *virtualEvent) Cancel() {
	e.canceled = true
}

// NewVirtual returns a Virtual clock starting at t=0ms.
func NewVirtual() *Virtual {
	return &Virtual{}
}

func (v *Virtual) NowMs() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.nowMs
}

func (v *Virtual) Schedule(delayMs int64, handler func()) Handle {
	if delayMs < 0 {
		delayMs = 0
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.seq++
	ev := &virtualEvent{
		deadline: v.nowMs + delayMs,
		seq:      v.seq,
		handler:  handler,
	}
	v.pending = append(v.pending, ev)

	return ev
}

// Advance moves the virtual clock forward by deltaMs, firing every pending
// event whose deadline falls within the new "now", in deadline order (ties
// broken by schedule order).
func (v *Virtual) Advance(deltaMs int64) {
	v.mu.Lock()
	v.nowMs += deltaMs
	now := v.nowMs

	var due []*virtualEvent

	remaining := v.pending[:0]

	for _, ev := range v.pending {
		if ev.canceled || ev.fired {
			continue
		}

		if ev.deadline <= now {
			due = append(due, ev)
		} else {
			remaining = append(remaining, ev)
		}
	}

	v.pending = remaining
	v.mu.Unlock()

	sortEvents(due)

	for _, ev := range due {
		if ev.canceled {
			continue
		}

		ev.fired = true
		ev.handler()
	}
}

func sortEvents(evs []*virtualEvent) {
	for i := 1; i < len(evs); i++ {
		for j := i; j > 0 && less(evs[j], evs[j-1]); j-- {
			evs[j], evs[j-1] = evs[j-1], evs[j]
		}
	}
}

func less(a, b *virtualEvent) bool {
	if a.deadline != b.deadline {
		return a.deadline < b.deadline
	}

	return a.seq < b.seq
}
