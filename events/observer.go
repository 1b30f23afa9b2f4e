package events

// Observer receives every event the stream routes to it. Implementations
// that only care about a subset of events embed NoopObserver and override
// what they need.
type Observer interface {
	EventSynQueued(EventSynQueued)
	EventSynAdmitted(EventSynAdmitted)
	EventDropped(EventDropped)
	EventRSTSent(EventRSTSent)
	EventDDFDuplicate(EventDDFDuplicate)
	EventDDFRotate(EventDDFRotate)
	Shutdown()
}

// ObserverFactory builds a fresh Observer for one of the stream's
// internal worker goroutines. Stateful observers (e.g. the Prometheus
// processor) must not be shared across workers, hence a factory instead
// of a value.
type ObserverFactory func() Observer

// NoopObserver discards every event. It is the default when no
// observers are configured, and a convenient embed for observers that
// only care about one or two event types.
type NoopObserver struct{}

func (NoopObserver) EventSynQueued(EventSynQueued)     {}
func (NoopObserver) EventSynAdmitted(EventSynAdmitted) {}
func (NoopObserver) EventDropped(EventDropped)         {}
func (NoopObserver) EventRSTSent(EventRSTSent)         {}
func (NoopObserver) EventDDFDuplicate(EventDDFDuplicate) {}
func (NoopObserver) EventDDFRotate(EventDDFRotate)       {}
func (NoopObserver) Shutdown()                           {}

// NewNoopObserver satisfies ObserverFactory.
func NewNoopObserver() Observer {
	return NoopObserver{}
}

type multiObserver struct {
	observers []Observer
}

func newMultiObserver(factories []ObserverFactory) multiObserver {
	observers := make([]Observer, len(factories))
	for i, f := range factories {
		observers[i] = f()
	}

	return multiObserver{observers: observers}
}

func (m multiObserver) EventSynQueued(evt EventSynQueued) {
	for _, o := range m.observers {
		o.EventSynQueued(evt)
	}
}

func (m multiObserver) EventSynAdmitted(evt EventSynAdmitted) {
	for _, o := range m.observers {
		o.EventSynAdmitted(evt)
	}
}

func (m multiObserver) EventDropped(evt EventDropped) {
	for _, o := range m.observers {
		o.EventDropped(evt)
	}
}

func (m multiObserver) EventRSTSent(evt EventRSTSent) {
	for _, o := range m.observers {
		o.EventRSTSent(evt)
	}
}

func (m multiObserver) EventDDFDuplicate(evt EventDDFDuplicate) {
	for _, o := range m.observers {
		o.EventDDFDuplicate(evt)
	}
}

func (m multiObserver) EventDDFRotate(evt EventDDFRotate) {
	for _, o := range m.observers {
		o.EventDDFRotate(evt)
	}
}

func (m multiObserver) Shutdown() {
	for _, o := range m.observers {
		o.Shutdown()
	}
}
