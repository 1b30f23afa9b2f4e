package stats

import (
	"github.com/smira/go-statsd"

	"github.com/shadowmesh/admitcore/events"
)

type statsdProcessor struct {
	factory *StatsDFactory
}

func (s statsdProcessor) EventSynQueued(events.EventSynQueued) {
	s.factory.client.Incr(MetricSynQueued, 1)
}

func (s statsdProcessor) EventSynAdmitted(events.EventSynAdmitted) {
	s.factory.client.Incr(MetricSynAdmitted, 1)
}

func (s statsdProcessor) EventDropped(evt events.EventDropped) {
	s.factory.client.Incr(
		MetricDropped,
		1,
		statsd.StringTag("reason", string(evt.Reason)),
	)
}

func (s statsdProcessor) EventRSTSent(events.EventRSTSent) {
	s.factory.client.Incr(MetricRSTSent, 1)
}

func (s statsdProcessor) EventDDFDuplicate(events.EventDDFDuplicate) {
	s.factory.client.Incr(MetricDDFDuplicate, 1)
}

func (s statsdProcessor) EventDDFRotate(evt events.EventDDFRotate) {
	s.factory.client.Gauge(MetricDDFWindowSize, int64(evt.InsertedInWindow))
	s.factory.client.Gauge(MetricDDFWindowDup, int64(evt.DuplicatesInWindow))
}

func (s statsdProcessor) Shutdown() {}

// StatsDFactory is the StatsD counterpart to PrometheusFactory: an
// events.ObserverFactory producer that forwards counters over UDP
// instead of serving a scrape endpoint. Useful for deployments that
// already run a statsd-compatible aggregator (datadog-agent, Telegraf).
type StatsDFactory struct {
	client *statsd.Client
	prefix string
}

// NewStatsD dials addr (host:port) and returns a ready factory. The
// client batches and ships UDP packets on its own goroutine; Close
// flushes and stops it.
func NewStatsD(addr, prefix string) *StatsDFactory {
	client := statsd.NewClient(addr, statsd.MetricPrefix(prefix+"."))

	return &StatsDFactory{client: client, prefix: prefix}
}

// Make builds a fresh observer bound to this factory's client.
func (f *StatsDFactory) Make() events.Observer {
	return statsdProcessor{factory: f}
}

// Close flushes pending metrics and closes the UDP socket.
func (f *StatsDFactory) Close() error {
	return f.client.Close()
}
