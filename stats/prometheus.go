// Package stats exposes admission-queue and duplicate-filter counters to
// Prometheus and StatsD, the two exporters the retrieved proxy stack
// ships. Both subscribe to the events package's observer interface
// rather than polling admission.Metrics directly, so every exporter sees
// the same event sequence an operator's dashboards care about.
package stats

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shadowmesh/admitcore/events"
)

// Tag values used as label values across the vectored metrics below.
const (
	TagReasonFull         = "full"
	TagReasonInactive      = "inactive"
	TagReasonNoFrom        = "no_from"
	TagReasonDuplicateSyn  = "duplicate_syn"
	TagReasonBadSignature  = "bad_signature"
	TagReasonTimeout       = "timeout"
)

// Metric names, kept stable so dashboards built against one exporter
// transfer to the other.
const (
	MetricSynQueued    = "syn_queued_total"
	MetricSynAdmitted  = "syn_admitted_total"
	MetricDropped      = "dropped_total"
	MetricRSTSent      = "rst_sent_total"
	MetricDDFDuplicate = "ddf_duplicate_total"
	MetricDDFWindowSize = "ddf_window_inserted"
	MetricDDFWindowDup  = "ddf_window_duplicates"
)

type prometheusProcessor struct {
	factory *PrometheusFactory
}

func (p prometheusProcessor) EventSynQueued(events.EventSynQueued) {
	p.factory.metricSynQueued.Inc()
}

func (p prometheusProcessor) EventSynAdmitted(events.EventSynAdmitted) {
	p.factory.metricSynAdmitted.Inc()
}

func (p prometheusProcessor) EventDropped(evt events.EventDropped) {
	p.factory.metricDropped.WithLabelValues(string(evt.Reason)).Inc()
}

func (p prometheusProcessor) EventRSTSent(events.EventRSTSent) {
	p.factory.metricRSTSent.Inc()
}

func (p prometheusProcessor) EventDDFDuplicate(events.EventDDFDuplicate) {
	p.factory.metricDDFDuplicate.Inc()
}

func (p prometheusProcessor) EventDDFRotate(evt events.EventDDFRotate) {
	p.factory.metricDDFWindowSize.Set(float64(evt.InsertedInWindow))
	p.factory.metricDDFWindowDup.Set(float64(evt.DuplicatesInWindow))
}

func (p prometheusProcessor) Shutdown() {}

// PrometheusFactory is an events.ObserverFactory producer bound to a
// registry it also serves over HTTP.
type PrometheusFactory struct {
	httpServer *http.Server

	metricSynQueued     prometheus.Counter
	metricSynAdmitted   prometheus.Counter
	metricDropped       *prometheus.CounterVec
	metricRSTSent       prometheus.Counter
	metricDDFDuplicate  prometheus.Counter
	metricDDFWindowSize prometheus.Gauge
	metricDDFWindowDup  prometheus.Gauge
	metricBuildInfo     *prometheus.GaugeVec
}

// NewPrometheus builds a factory with its own pedantic registry, serving
// a Prometheus/OpenMetrics scrape endpoint at httpPath.
func NewPrometheus(metricPrefix, httpPath, version string) *PrometheusFactory {
	registry := prometheus.NewPedanticRegistry()
	httpHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
	mux := http.NewServeMux()
	mux.Handle(httpPath, httpHandler)

	factory := &PrometheusFactory{
		httpServer: &http.Server{Handler: mux},

		metricSynQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricSynQueued,
			Help:      "Number of SYNs accepted into the admission queue.",
		}),
		metricSynAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricSynAdmitted,
			Help:      "Number of SYNs that resulted in an admitted connection.",
		}),
		metricDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricDropped,
			Help:      "Number of packets dropped by the admission queue, by reason.",
		}, []string{"reason"}),
		metricRSTSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricRSTSent,
			Help:      "Number of RST packets emitted by the admission queue.",
		}),
		metricDDFDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricDDFDuplicate,
			Help:      "Number of entries the duplicate filter reported as already known.",
		}),
		metricDDFWindowSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricPrefix,
			Name:      MetricDDFWindowSize,
			Help:      "Entries inserted into the duplicate filter's most recently closed window.",
		}),
		metricDDFWindowDup: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricPrefix,
			Name:      MetricDDFWindowDup,
			Help:      "Duplicates observed in the duplicate filter's most recently closed window.",
		}),
		metricBuildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricPrefix,
			Name:      "build_info",
			Help:      "Build information about admitcore.",
		}, []string{"version"}),
	}

	registry.MustRegister(
		factory.metricSynQueued,
		factory.metricSynAdmitted,
		factory.metricDropped,
		factory.metricRSTSent,
		factory.metricDDFDuplicate,
		factory.metricDDFWindowSize,
		factory.metricDDFWindowDup,
		factory.metricBuildInfo,
	)
	factory.metricBuildInfo.WithLabelValues(version).Set(1)

	return factory
}

// Make builds a fresh observer bound to this factory's metrics.
func (p *PrometheusFactory) Make() events.Observer {
	return prometheusProcessor{factory: p}
}

// Serve starts the scrape HTTP server on listener; blocks until Close.
func (p *PrometheusFactory) Serve(listener net.Listener) error {
	return p.httpServer.Serve(listener)
}

// Close stops the HTTP server, which also closes the listener passed to
// Serve.
func (p *PrometheusFactory) Close() error {
	return p.httpServer.Shutdown(context.Background())
}
