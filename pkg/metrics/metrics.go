// Package metrics exposes prometheus collectors fed by view events.
package metrics

import (
	"time"

	"github.com/chazu/patchbay/pkg/graph"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every patchbay collector on a private prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	Nodes            prometheus.Gauge
	Connections      prometheus.Gauge
	ConnectsTotal    prometheus.Counter
	DisconnectsTotal prometheus.Counter
	PayloadsTotal    *prometheus.CounterVec
	PayloadBytes     prometheus.Counter
	FileOpsTotal     *prometheus.CounterVec
	EvalDuration     prometheus.Histogram
}

// NewRegistry creates the collectors under namespace.
func NewRegistry(namespace string) *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Registry{
		registry: reg,
		Nodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes",
			Help:      "Number of nodes in observed views",
		}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of indexed connections in observed views",
		}),
		ConnectsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Connections established",
		}),
		DisconnectsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Connections torn down",
		}),
		PayloadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_total",
			Help:      "Payload deliveries by direction",
		}, []string{"direction"}),
		PayloadBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_total",
			Help:      "Bytes written to sources",
		}),
		FileOpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_operations_total",
			Help:      "Patch file saves and loads by result",
		}, []string{"op", "result"}),
		EvalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "eval_duration_seconds",
			Help:      "Patch script evaluation time",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Observe keeps the collectors in step with v until the subscription is
// cancelled. Nodes and links already present are counted immediately.
func (r *Registry) Observe(v *graph.View) graph.Subscription {
	r.Nodes.Add(float64(v.Len()))
	r.Connections.Add(float64(len(v.Connections())))
	return v.Subscribe(func(ev graph.ViewEvent) {
		switch ev.Kind {
		case graph.ViewNodeAdded:
			r.Nodes.Inc()
		case graph.ViewNodeRemoved:
			r.Nodes.Dec()
		case graph.ViewConnectionAdded:
			r.Connections.Inc()
			r.ConnectsTotal.Inc()
		case graph.ViewConnectionRemoved:
			r.Connections.Dec()
			r.DisconnectsTotal.Inc()
		case graph.ViewNodeEvent:
			if ev.Event.Kind != graph.NodeSocketEvent {
				return
			}
			switch se := ev.Event.Socket; se.Kind {
			case graph.EventOutgoing:
				r.PayloadsTotal.WithLabelValues("outgoing").Inc()
				r.PayloadBytes.Add(float64(len(se.Payload)))
			case graph.EventIncoming:
				r.PayloadsTotal.WithLabelValues("incoming").Inc()
			}
		}
	})
}

// RecordFileOp counts a save or load.
func (r *Registry) RecordFileOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.FileOpsTotal.WithLabelValues(op, result).Inc()
}

// RecordEval records how long an evaluation took.
func (r *Registry) RecordEval(d time.Duration) {
	r.EvalDuration.Observe(d.Seconds())
}
