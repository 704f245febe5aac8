package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/receipts/internal/llm"
	"github.com/roach88/receipts/internal/model"
)

// Metrics collects per-process run statistics in a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runs              *prometheus.CounterVec
	events            prometheus.Gauge
	workstreams       prometheus.Gauge
	completeness      *prometheus.GaugeVec
	duration          prometheus.Histogram
	completions       *prometheus.CounterVec
	completionLatency prometheus.Histogram
}

// NewMetrics creates and registers the run collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipts",
			Name:      "runs_total",
			Help:      "Runs attempted, by result.",
		}, []string{"result"}),
		events: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "receipts",
			Name:      "run_events",
			Help:      "Events in the last successful run.",
		}),
		workstreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "receipts",
			Name:      "run_workstreams",
			Help:      "Workstreams in the last successful run.",
		}),
		completeness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "receipts",
			Name:      "run_completeness",
			Help:      "1 for the coverage verdict of the last successful run, 0 otherwise.",
		}, []string{"verdict"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "receipts",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a run.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipts",
			Name:      "completion_requests_total",
			Help:      "Text completion requests issued by clustering, by result.",
		}, []string{"result"}),
		completionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "receipts",
			Name:      "completion_duration_seconds",
			Help:      "Latency of text completion requests.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
	m.registry.MustRegister(
		m.runs, m.events, m.workstreams, m.completeness,
		m.duration, m.completions, m.completionLatency,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every collected metric to path in the text
// exposition format, for a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// InstrumentCompleter wraps c so each request is counted and timed.
func (m *Metrics) InstrumentCompleter(c llm.Completer) llm.Completer {
	if m == nil {
		return c
	}
	return llm.CompleterFunc(func(ctx context.Context, system, user string) (string, error) {
		start := time.Now()
		out, err := c.Complete(ctx, system, user)
		m.completionLatency.Observe(time.Since(start).Seconds())
		m.completions.WithLabelValues(resultLabel(err)).Inc()
		return out, err
	})
}

func (m *Metrics) observeRun(res *Result, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(resultLabel(err)).Inc()
	m.duration.Observe(elapsed.Seconds())
	if err != nil || res == nil {
		return
	}
	m.events.Set(float64(res.Events))
	m.workstreams.Set(float64(res.Workstreams))
	for _, c := range []model.Completeness{
		model.CompletenessComplete, model.CompletenessPartial, model.CompletenessUnknown,
	} {
		v := 0.0
		if c == res.Completeness {
			v = 1
		}
		m.completeness.WithLabelValues(string(c)).Set(v)
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
