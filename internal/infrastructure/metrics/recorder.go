// Package metrics exposes workflow engine counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/excise-workflow/internal/application/port"
)

// Config holds metrics settings
type Config struct {
	Namespace string
	// Registry defaults to a fresh registry with Go and process collectors
	Registry *prometheus.Registry
}

// Recorder implements port.OperationObserver
type Recorder struct {
	registry *prometheus.Registry

	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	transitions *prometheus.CounterVec
}

// NewRecorder registers the engine metrics
func NewRecorder(cfg Config) *Recorder {
	ns := cfg.Namespace
	if ns == "" {
		ns = "excise"
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "workflow",
			Name:      "operations_total",
			Help:      "Workflow operations by outcome",
		}, []string{"operation", "outcome"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "workflow",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in a workflow operation including its database transaction",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Committed stage changes",
		}, []string{"workflow", "from", "to"}),
	}
}

// ObserveOperation implements port.OperationObserver
func (r *Recorder) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	r.operations.WithLabelValues(operation, outcome).Inc()
	r.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveTransition implements port.OperationObserver
func (r *Recorder) ObserveTransition(workflowName, fromStage, toStage string) {
	r.transitions.WithLabelValues(workflowName, fromStage, toStage).Inc()
}

// Registry returns the registry the recorder writes to
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

var _ port.OperationObserver = (*Recorder)(nil)
