// Package events defines the admission/duplicate-filter lifecycle events
// and the fan-out stream that routes them to observers (stats exporters,
// loggers, tests). The shape is deliberately small: a tagged event type
// plus a handful of constructors, routed by stream id the same way a
// relay would route per-connection traffic events.
package events

import "time"

// Event is implemented by every event this package defines.
type Event interface {
	StreamID() string
	Timestamp() time.Time
}

type eventBase struct {
	streamID  string
	timestamp time.Time
}

func (e eventBase) StreamID() string      { return e.streamID }
func (e eventBase) Timestamp() time.Time { return e.timestamp }

func newBase(streamID string) eventBase {
	return eventBase{streamID: streamID, timestamp: time.Now()}
}

// EventSynQueued is emitted when a SYN is accepted into the admission
// queue's buffer.
type EventSynQueued struct {
	eventBase

	SendStreamID uint32
}

// EventSynAdmitted is emitted when a queued SYN is handed to the
// connection manager and admitted.
type EventSynAdmitted struct {
	eventBase

	SendStreamID uint32
}

// EventDropped is emitted for every packet the admission queue discards
// without admitting a connection. Reason identifies why.
type EventDropped struct {
	eventBase

	SendStreamID uint32
	Reason       DropReason
}

// DropReason enumerates the admission queue's drop causes, mirroring the
// counters in admission.Metrics.
type DropReason string

const (
	DropReasonFull         DropReason = "full"
	DropReasonInactive     DropReason = "inactive"
	DropReasonNoFrom       DropReason = "no_from"
	DropReasonDuplicateSyn DropReason = "duplicate_syn"
	DropReasonBadSignature DropReason = "bad_signature"
	DropReasonTimeout      DropReason = "timeout"
)

// EventRSTSent is emitted whenever the admission queue constructs and
// enqueues an RST.
type EventRSTSent struct {
	eventBase

	SendStreamID uint32
}

// EventDDFDuplicate is emitted when the decaying duplicate filter
// reports an entry as already known.
type EventDDFDuplicate struct {
	eventBase
}

// EventDDFRotate is emitted on every duplicate filter generation
// rotation, carrying the stats of the window that just closed.
type EventDDFRotate struct {
	eventBase

	DuplicatesInWindow uint64
	InsertedInWindow   uint64
}

// NewEventSynQueued builds an EventSynQueued.
func NewEventSynQueued(streamID string, sendStreamID uint32) EventSynQueued {
	return EventSynQueued{eventBase: newBase(streamID), SendStreamID: sendStreamID}
}

// NewEventSynAdmitted builds an EventSynAdmitted.
func NewEventSynAdmitted(streamID string, sendStreamID uint32) EventSynAdmitted {
	return EventSynAdmitted{eventBase: newBase(streamID), SendStreamID: sendStreamID}
}

// NewEventDropped builds an EventDropped.
func NewEventDropped(streamID string, sendStreamID uint32, reason DropReason) EventDropped {
	return EventDropped{eventBase: newBase(streamID), SendStreamID: sendStreamID, Reason: reason}
}

// NewEventRSTSent builds an EventRSTSent.
func NewEventRSTSent(streamID string, sendStreamID uint32) EventRSTSent {
	return EventRSTSent{eventBase: newBase(streamID), SendStreamID: sendStreamID}
}

// NewEventDDFDuplicate builds an EventDDFDuplicate.
func NewEventDDFDuplicate() EventDDFDuplicate {
	return EventDDFDuplicate{eventBase: newBase("")}
}

// NewEventDDFRotate builds an EventDDFRotate.
func NewEventDDFRotate(duplicates, inserted uint64) EventDDFRotate {
	return EventDDFRotate{
		eventBase:          newBase(""),
		DuplicatesInWindow: duplicates,
		InsertedInWindow:   inserted,
	}
}
