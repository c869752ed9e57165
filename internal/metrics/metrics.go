// Package metrics registers the prometheus/client_golang collectors the
// Request Facade exposes at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry groups the counters and gauges the engine and sink delivery
// queue report against. New registers them against the supplied
// registerer. Every method is safe on a nil *Registry, which records
// nothing; that is what the engine and queue hold until SetMetrics.
type Registry struct {
	Transitions      *prometheus.CounterVec
	AdmissionDenials *prometheus.CounterVec
	EventBusDepth    *prometheus.GaugeVec
	SinkDeliveries   *prometheus.CounterVec
	SinksDegraded    prometheus.Gauge
}

// New creates and registers the Smokestack collectors against reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smokestack",
			Name:      "transitions_total",
			Help:      "Operation status transitions, by resulting status.",
		}, []string{"to"}),
		AdmissionDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smokestack",
			Name:      "admission_denials_total",
			Help:      "Admission Controller rejections, by error kind.",
		}, []string{"kind"}),
		EventBusDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "smokestack",
			Name:      "eventbus_stream_depth",
			Help:      "Buffered events per live watch stream.",
		}, []string{"user"}),
		SinkDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smokestack",
			Name:      "sink_deliveries_total",
			Help:      "System Sink delivery attempts, by sink id and result.",
		}, []string{"sink", "result"}),
		SinksDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "smokestack",
			Name:      "sinks_degraded",
			Help:      "Number of System Sinks currently marked degraded.",
		}),
	}
	reg.MustRegister(r.Transitions, r.AdmissionDenials, r.EventBusDepth, r.SinkDeliveries, r.SinksDegraded)
	return r
}

// ObserveTransition records a completed transition to status.
func (r *Registry) ObserveTransition(to string) {
	if r == nil {
		return
	}
	r.Transitions.WithLabelValues(to).Inc()
}

// ObserveDenial records an admission rejection of the given kind.
func (r *Registry) ObserveDenial(kind string) {
	if r == nil {
		return
	}
	r.AdmissionDenials.WithLabelValues(kind).Inc()
}

// SetSinksDegraded records the current number of degraded sinks.
func (r *Registry) SetSinksDegraded(n int) {
	if r == nil {
		return
	}
	r.SinksDegraded.Set(float64(n))
}

// ObserveSinkDelivery records a delivery attempt's outcome for sinkID.
func (r *Registry) ObserveSinkDelivery(sinkID string, ok bool) {
	if r == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	r.SinkDeliveries.WithLabelValues(sinkID, result).Inc()
}
