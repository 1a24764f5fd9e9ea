package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/catalog-linker/internal/linker"
)

// ExistsByPath reports whether any link already points at remotePath.
func (s *Store) ExistsByPath(ctx context.Context, remotePath string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE anime_path = $1)`, s.tables.Links)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, remotePath).Scan(&exists); err != nil {
		return false, fmt.Errorf("check link path: %w", err)
	}
	return exists, nil
}

// Save inserts link and returns it with the generated id and timestamp.
func (s *Store) Save(ctx context.Context, link linker.ExternalLink) (linker.ExternalLink, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (
	anime_id,
	anime_path,
	site,
	type,
	language,
	matching_score,
	is_matching,
	meta_info
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
RETURNING id, created_at`, s.tables.Links)

	var metadata *string
	if link.MetadataJSON != "" {
		metadata = &link.MetadataJSON
	}
	args := []any{
		link.CanonicalID,
		link.RemotePath,
		link.SiteName,
		string(link.LinkType),
		link.Language,
		link.MatchScore,
		link.IsMatching,
		metadata,
	}
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&link.ID, &link.CreatedAt); err != nil {
		return linker.ExternalLink{}, fmt.Errorf("insert external link: %w", err)
	}
	return link, nil
}
