package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/catalog-linker/internal/linker"
)

// InsertAuditEvents appends events to the crawl log table.
func (s *Store) InsertAuditEvents(ctx context.Context, events []linker.AuditEvent) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	logged_at,
	trace_path,
	notes,
	request_object,
	error_message,
	snapshot_uri
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, s.tables.Audit)

	for _, evt := range events {
		args := []any{
			nullable(evt.RunID),
			evt.TS,
			evt.SourceTag,
			nullable(evt.Note),
			nullable(evt.SubjectJSON),
			nullable(evt.ErrorJSON),
			nullable(evt.SnapshotURI),
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
