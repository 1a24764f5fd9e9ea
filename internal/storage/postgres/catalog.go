package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/catalog-linker/internal/linker"
)

// FuzzySearchByTitle ranks catalog entries by pg_trgm similarity against any
// of their titles.
func (s *Store) FuzzySearchByTitle(ctx context.Context, title string) ([]linker.ScoredCandidate, error) {
	query := fmt.Sprintf(`
SELECT id, title, max_score FROM (
	SELECT
		id,
		COALESCE(title_english, title_romaji, title_native, '') AS title,
		GREATEST(
			similarity(COALESCE(title_english, ''), $1),
			similarity(COALESCE(title_romaji, ''), $1),
			similarity(COALESCE(title_native, ''), $1)
		) AS max_score
	FROM %s
	WHERE title_english %% $1 OR title_romaji %% $1 OR title_native %% $1
) ranked
ORDER BY max_score DESC, id
LIMIT $2`, s.tables.Catalog)

	rows, err := s.pool.Query(ctx, query, title, s.candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("fuzzy search catalog: %w", err)
	}
	defer rows.Close()

	var out []linker.ScoredCandidate
	for rows.Next() {
		var c linker.ScoredCandidate
		if err := rows.Scan(&c.CanonicalID, &c.Title, &c.Score); err != nil {
			return nil, fmt.Errorf("scan catalog candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog candidates: %w", err)
	}
	return out, nil
}

// FindByID loads one entry together with the sites it is linked from.
func (s *Store) FindByID(ctx context.Context, id int) (linker.CanonicalEntry, bool, error) {
	query := s.entrySelect() + `
WHERE a.id = $1
GROUP BY a.id`
	entry, err := scanEntry(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return linker.CanonicalEntry{}, false, nil
	}
	if err != nil {
		return linker.CanonicalEntry{}, false, fmt.Errorf("find catalog entry %d: %w", id, err)
	}
	return entry, true, nil
}

// PageCanonicalEntries returns one page of the catalog ordered by id. Pages
// are 1-based.
func (s *Store) PageCanonicalEntries(ctx context.Context, page, size int) (linker.CanonicalPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 1
	}
	query := s.entrySelect() + `
GROUP BY a.id
ORDER BY a.id
LIMIT $1 OFFSET $2`
	rows, err := s.pool.Query(ctx, query, size+1, (page-1)*size)
	if err != nil {
		return linker.CanonicalPage{}, fmt.Errorf("page catalog: %w", err)
	}
	defer rows.Close()

	var items []linker.CanonicalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return linker.CanonicalPage{}, fmt.Errorf("scan catalog entry: %w", err)
		}
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return linker.CanonicalPage{}, fmt.Errorf("iterate catalog page: %w", err)
	}
	result := linker.CanonicalPage{Items: items}
	if len(items) > size {
		result.Items = items[:size]
		result.HasNextPage = true
	}
	return result, nil
}

func (s *Store) entrySelect() string {
	return fmt.Sprintf(`
SELECT
	a.id,
	COALESCE(a.title_english, ''),
	COALESCE(a.title_romaji, ''),
	COALESCE(a.title_native, ''),
	COALESCE(array_agg(l.site) FILTER (WHERE l.site IS NOT NULL), '{}') AS link_sites
FROM %s a
LEFT JOIN %s l ON l.anime_id = a.id`, s.tables.Catalog, s.tables.Links)
}

func scanEntry(row pgx.Row) (linker.CanonicalEntry, error) {
	var entry linker.CanonicalEntry
	err := row.Scan(
		&entry.ID,
		&entry.Titles.English,
		&entry.Titles.Romaji,
		&entry.Titles.Native,
		&entry.LinkSites,
	)
	return entry, err
}
