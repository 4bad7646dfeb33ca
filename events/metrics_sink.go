package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink counts events in Prometheus.
type MetricsSink struct {
	events *prometheus.CounterVec
	errors *prometheus.CounterVec
}

// NewMetricsSink creates the collectors and registers them with reg.
func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	s := &MetricsSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokenserver",
			Name:      "events_total",
			Help:      "Token pipeline events by name, category and grant type.",
		}, []string{"event", "category", "grant_type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokenserver",
			Name:      "token_errors_total",
			Help:      "Token endpoint protocol errors by error code.",
		}, []string{"error"}),
	}
	for _, c := range []prometheus.Collector{s.events, s.errors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MetricsSink) Raise(_ context.Context, e Event) {
	s.events.WithLabelValues(string(e.Name), string(e.Category), e.GrantType).Inc()
	if e.Error != "" {
		s.errors.WithLabelValues(e.Error).Inc()
	}
}
