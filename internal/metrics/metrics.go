// Package metrics exposes poll and delivery counters to prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "toonbot"

// Delivery results.
const (
	ResultSent   = "sent"
	ResultEdited = "edited"
	ResultFailed = "failed"
)

// Collector is a prometheus.Collector for the pollers and the dispatcher.
type Collector struct {
	ticks          *prometheus.CounterVec
	tickDuration   *prometheus.HistogramVec
	upstreamErrors *prometheus.CounterVec
	events         *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	tracked        *prometheus.GaugeVec
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "ticks_total",
				Help:      "The number of completed poll ticks.",
			}, []string{"poller"},
		),
		tickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "tick_duration_seconds",
				Help:      "The time taken by one poll tick.",
				Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120},
			}, []string{"poller"},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "upstream_errors_total",
				Help:      "The number of failed upstream fetches.",
			}, []string{"poller"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_total",
				Help:      "The number of events derived from snapshot diffs.",
			}, []string{"kind"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "deliveries_total",
				Help:      "The number of per-channel deliveries by result.",
			}, []string{"result"},
		),
		tracked: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "tracked_entities",
				Help:      "The number of entities returned by the source on the last tick.",
			}, []string{"poller"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.ticks.Describe(ch)
	c.tickDuration.Describe(ch)
	c.upstreamErrors.Describe(ch)
	c.events.Describe(ch)
	c.deliveries.Describe(ch)
	c.tracked.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.ticks.Collect(ch)
	c.tickDuration.Collect(ch)
	c.upstreamErrors.Collect(ch)
	c.events.Collect(ch)
	c.deliveries.Collect(ch)
	c.tracked.Collect(ch)
}

// TickCompleted records a finished tick of poller.
func (c *Collector) TickCompleted(poller string, took time.Duration) {
	c.ticks.WithLabelValues(poller).Inc()
	c.tickDuration.WithLabelValues(poller).Observe(took.Seconds())
}

// UpstreamError records a failed fetch of poller.
func (c *Collector) UpstreamError(poller string) {
	c.upstreamErrors.WithLabelValues(poller).Inc()
}

// Tracked sets the number of entities of poller.
func (c *Collector) Tracked(poller string, n int) {
	c.tracked.WithLabelValues(poller).Set(float64(n))
}

// EventEmitted records an event of the given kind.
func (c *Collector) EventEmitted(kind string) {
	c.events.WithLabelValues(kind).Inc()
}

// Delivery records the result of one delivery.
func (c *Collector) Delivery(result string) {
	c.deliveries.WithLabelValues(result).Inc()
}

// Handler returns an HTTP handler serving the metrics of c.
func Handler(c *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
