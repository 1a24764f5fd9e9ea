package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/catalog-linker/internal/linker"
)

// PrometheusSink counts audit events per source tag.
type PrometheusSink struct {
	events *prometheus.CounterVec
	errors *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linker_audit_events_total",
			Help: "Audit events recorded, labeled by source tag.",
		}, []string{"source_tag"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linker_audit_error_events_total",
			Help: "Audit events that carry an error payload, labeled by source tag.",
		}, []string{"source_tag"}),
	}
	for _, collector := range []prometheus.Collector{s.events, s.errors} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register audit collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the counters from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []linker.AuditEvent) error {
	for _, evt := range batch {
		s.events.WithLabelValues(evt.SourceTag).Inc()
		if evt.ErrorJSON != "" {
			s.errors.WithLabelValues(evt.SourceTag).Inc()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
