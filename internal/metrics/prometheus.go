package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Instruments holds the live Prometheus counters of one process. Every
// method is safe on a nil receiver so callers can run without them.
type Instruments struct {
	registry *prometheus.Registry

	Answers         *prometheus.CounterVec   // labels: method, success
	AnswerLatency   *prometheus.HistogramVec // labels: method
	CacheLookups    *prometheus.CounterVec   // labels: result
	ExecutorRetries *prometheus.CounterVec   // labels: intent
	BusPublished    *prometheus.CounterVec   // labels: topic
	BusErrors       *prometheus.CounterVec   // labels: topic
	FeedbackEvents  *prometheus.CounterVec   // labels: topic
	HTTPRequests    *prometheus.CounterVec   // labels: method, path, status
	HTTPDuration    *prometheus.HistogramVec // labels: method, path
	HTTPInFlight    prometheus.Gauge
}

// NewInstruments creates instruments on a private registry that also
// carries the Go runtime and process collectors.
func NewInstruments() *Instruments {
	i := &Instruments{
		registry: prometheus.NewRegistry(),
		Answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quickquery_answers_total",
			Help: "Answers produced, by method and outcome",
		}, []string{"method", "success"}),
		AnswerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quickquery_answer_latency_ms",
			Help:    "Answer processing time in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2000, 5000, 10000},
		}, []string{"method"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quickquery_cache_lookups_total",
			Help: "Similarity cache lookups, by result",
		}, []string{"result"}),
		ExecutorRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quickquery_executor_retries_total",
			Help: "Data query retries, by intent",
		}, []string{"intent"}),
		BusPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quickquery_bus_events_published_total",
			Help: "Telemetry events published, by topic",
		}, []string{"topic"}),
		BusErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quickquery_bus_errors_total",
			Help: "Telemetry publish failures, by topic",
		}, []string{"topic"}),
		FeedbackEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quickquery_feedback_events_consumed_total",
			Help: "Feedback events received from the bus, by topic",
		}, []string{"topic"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quickquery_http_requests_total",
			Help: "HTTP requests, by method, path and status",
		}, []string{"method", "path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quickquery_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quickquery_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		}),
	}

	i.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		i.Answers, i.AnswerLatency, i.CacheLookups, i.ExecutorRetries,
		i.BusPublished, i.BusErrors, i.FeedbackEvents, i.HTTPRequests, i.HTTPDuration, i.HTTPInFlight,
	)
	return i
}

// Registry returns the registry backing the instruments.
func (i *Instruments) Registry() *prometheus.Registry {
	if i == nil {
		return nil
	}
	return i.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (i *Instruments) Handler() http.Handler {
	if i == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(i.registry, promhttp.HandlerOpts{})
}

// ObserveAnswer counts one recorded answer.
func (i *Instruments) ObserveAnswer(rec MetricRecord) {
	if i == nil {
		return
	}
	i.Answers.WithLabelValues(string(rec.Method), strconv.FormatBool(rec.Success)).Inc()
	i.AnswerLatency.WithLabelValues(string(rec.Method)).Observe(rec.ProcessingTimeMs)
}

// ObserveCacheLookup counts a cache hit or miss.
func (i *Instruments) ObserveCacheLookup(hit bool) {
	if i == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	i.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveRetry counts one executor retry.
func (i *Instruments) ObserveRetry(intent string) {
	if i == nil {
		return
	}
	i.ExecutorRetries.WithLabelValues(intent).Inc()
}

// ObservePublish counts a bus publish and its failure, if any.
func (i *Instruments) ObservePublish(topic string, err error) {
	if i == nil {
		return
	}
	if err != nil {
		i.BusErrors.WithLabelValues(topic).Inc()
		return
	}
	i.BusPublished.WithLabelValues(topic).Inc()
}

// ObserveFeedback counts one feedback event received from the bus.
func (i *Instruments) ObserveFeedback(topic string) {
	if i == nil {
		return
	}
	i.FeedbackEvents.WithLabelValues(topic).Inc()
}

// ObserveHTTP records one served request.
func (i *Instruments) ObserveHTTP(method, path string, status int, d time.Duration) {
	if i == nil {
		return
	}
	path = normalizePath(path)
	i.HTTPRequests.WithLabelValues(method, path, statusCode(status)).Inc()
	i.HTTPDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
