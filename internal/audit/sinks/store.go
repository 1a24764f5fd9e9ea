package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-linker/internal/linker"
)

// Repository persists audit events.
type Repository interface {
	InsertAuditEvents(ctx context.Context, events []linker.AuditEvent) error
}

// StoreSink writes audit batches to a Repository.
type StoreSink struct {
	repo   Repository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo Repository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards the batch to the repository.
func (s *StoreSink) Consume(ctx context.Context, batch []linker.AuditEvent) error {
	if s == nil || s.repo == nil || len(batch) == 0 {
		return nil
	}
	if err := s.repo.InsertAuditEvents(ctx, batch); err != nil {
		return fmt.Errorf("insert audit events: %w", err)
	}
	s.logger.Debug("persisted audit events", zap.Int("count", len(batch)))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
