package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry              *prometheus.Registry
	httpRequests          *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	reconcilePassesTotal  prometheus.Counter
	reconcilePassDuration prometheus.Histogram
	reconcileSuppressed   prometheus.Counter
	layersTracked         prometheus.Gauge
	classifications       *prometheus.CounterVec
	mutationsTotal        *prometheus.CounterVec
	adapterFailures       *prometheus.CounterVec
}

// New creates a fresh Metrics registry with HTTP and reconciliation metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "layerctl",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by the layer control API",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "layerctl",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by the layer control API",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	reconcilePassesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "layerctl",
		Name:      "reconcile_passes_total",
		Help:      "Total number of reconciliation passes executed",
	})

	reconcilePassDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "layerctl",
		Name:      "reconcile_pass_duration_seconds",
		Help:      "Duration of a reconciliation pass from snapshot to convergence",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})

	reconcileSuppressed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "layerctl",
		Name:      "reconcile_suppressed_total",
		Help:      "Reconciliation requests deferred because a user mutation held the guard",
	})

	layersTracked := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "layerctl",
		Name:      "layers_tracked",
		Help:      "Number of layers currently tracked by the state store",
	})

	classifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "layerctl",
		Name:      "classification_decisions_total",
		Help:      "Classification verdicts by resulting group",
	}, []string{"group"})

	mutationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "layerctl",
		Name:      "mutations_total",
		Help:      "User-initiated layer mutations by delivery path",
	}, []string{"op", "path"})

	adapterFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "layerctl",
		Name:      "adapter_failures_total",
		Help:      "Custom layer adapter calls that errored or panicked",
	}, []string{"type"})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		reconcilePassesTotal,
		reconcilePassDuration,
		reconcileSuppressed,
		layersTracked,
		classifications,
		mutationsTotal,
		adapterFailures,
	)

	return &Metrics{
		registry:              registry,
		httpRequests:          httpRequests,
		httpRequestDuration:   httpRequestDuration,
		reconcilePassesTotal:  reconcilePassesTotal,
		reconcilePassDuration: reconcilePassDuration,
		reconcileSuppressed:   reconcileSuppressed,
		layersTracked:         layersTracked,
		classifications:       classifications,
		mutationsTotal:        mutationsTotal,
		adapterFailures:       adapterFailures,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncReconcilePass increments the reconciliation pass counter.
func (m *Metrics) IncReconcilePass() {
	if m == nil {
		return
	}
	m.reconcilePassesTotal.Inc()
}

// ObserveReconcileDuration observes one pass duration.
func (m *Metrics) ObserveReconcileDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.reconcilePassDuration.Observe(duration.Seconds())
}

// IncReconcileSuppressed counts a pass deferred by the mutation guard.
func (m *Metrics) IncReconcileSuppressed() {
	if m == nil {
		return
	}
	m.reconcileSuppressed.Inc()
}

// SetLayersTracked publishes the current tracked layer count.
func (m *Metrics) SetLayersTracked(n int) {
	if m == nil {
		return
	}
	m.layersTracked.Set(float64(n))
}

// IncClassification counts one classification verdict.
func (m *Metrics) IncClassification(group string) {
	if m == nil {
		return
	}
	m.classifications.With(prometheus.Labels{"group": group}).Inc()
}

// IncMutation counts a user mutation by op ("visibility"/"opacity") and
// delivery path ("adapter"/"native").
func (m *Metrics) IncMutation(op, path string) {
	if m == nil {
		return
	}
	m.mutationsTotal.With(prometheus.Labels{"op": op, "path": path}).Inc()
}

// IncAdapterFailure counts a failed adapter call.
func (m *Metrics) IncAdapterFailure(typeTag string) {
	if m == nil {
		return
	}
	m.adapterFailures.With(prometheus.Labels{"type": typeTag}).Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
