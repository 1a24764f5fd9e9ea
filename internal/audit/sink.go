package audit

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JakeFAU/catalog-linker/internal/linker"
)

// Sink consumes batches of audit events. Implementations must honor ctx
// deadlines and tolerate repeated calls.
type Sink interface {
	Consume(ctx context.Context, batch []linker.AuditEvent) error
	Close(ctx context.Context) error
}

// Source tags identify where an audit event was raised.
const (
	TagSweepNoMatch        = "reconciler.sweep.no_match"
	TagSweepAlreadyLinked  = "reconciler.sweep.already_linked"
	TagSweepFailed         = "reconciler.sweep.candidate_failed"
	TagSweepPageFailed     = "reconciler.sweep.page_failed"
	TagSearchNoMatch       = "reconciler.search.no_match"
	TagSearchAlreadyLinked = "reconciler.search.already_linked"
	TagSearchFailed        = "reconciler.search.failed"
	TagSearchNoKeyword     = "reconciler.search.no_keyword"
	TagSearchEmptyPage     = "reconciler.search.empty_page"
)

// Validate performs coarse validation on an event.
func Validate(evt linker.AuditEvent) error {
	if evt.SourceTag == "" {
		return errors.New("source tag is required")
	}
	if evt.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}

var (
	droppedOnce  sync.Once
	droppedTotal prometheus.Counter
)

func observeDrop() {
	droppedOnce.Do(func() {
		droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "linker_audit_events_dropped_total",
			Help: "Audit events dropped because the hub buffer was full.",
		})
	})
	droppedTotal.Inc()
}
