package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-linker/internal/linker"
	"github.com/JakeFAU/catalog-linker/internal/match"
)

// minFuzzyScore mirrors the default pg_trgm similarity cut-off.
const minFuzzyScore = 0.3

// CatalogStore is an in-memory catalog and link repository for dry runs and tests.
type CatalogStore struct {
	mu      sync.RWMutex
	entries []linker.CanonicalEntry
	links   []linker.ExternalLink
	nextID  int64
	limit   int
	now     func() time.Time
}

// NewCatalogStore seeds a store with entries. limit caps fuzzy search results.
func NewCatalogStore(entries []linker.CanonicalEntry, limit int) *CatalogStore {
	if limit <= 0 {
		limit = 10
	}
	s := &CatalogStore{limit: limit, now: func() time.Time { return time.Now().UTC() }}
	for _, e := range entries {
		s.put(e)
	}
	return s
}

// LoadCatalogJSON reads a JSON array of canonical entries.
func LoadCatalogJSON(r io.Reader) ([]linker.CanonicalEntry, error) {
	var entries []linker.CanonicalEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode catalog seed: %w", err)
	}
	return entries, nil
}

// Put inserts or replaces an entry.
func (s *CatalogStore) Put(entry linker.CanonicalEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(entry)
}

func (s *CatalogStore) put(entry linker.CanonicalEntry) {
	entry.LinkSites = append([]string(nil), entry.LinkSites...)
	i, found := slices.BinarySearchFunc(s.entries, entry.ID, func(e linker.CanonicalEntry, id int) int {
		return e.ID - id
	})
	if found {
		s.entries[i] = entry
		return
	}
	s.entries = slices.Insert(s.entries, i, entry)
}

// FuzzySearchByTitle scores every entry by its best matching title.
func (s *CatalogStore) FuzzySearchByTitle(ctx context.Context, title string) ([]linker.ScoredCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fuzzy search: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []linker.ScoredCandidate
	for _, e := range s.entries {
		best := 0.0
		for _, t := range []string{e.Titles.English, e.Titles.Romaji, e.Titles.Native} {
			best = max(best, match.Similarity(title, t))
		}
		if best < minFuzzyScore {
			continue
		}
		out = append(out, linker.ScoredCandidate{CanonicalID: e.ID, Title: displayTitle(e), Score: best})
	}
	match.SortByScore(out)
	if len(out) > s.limit {
		out = out[:s.limit]
	}
	return out, nil
}

// FindByID returns a copy of the entry.
func (s *CatalogStore) FindByID(_ context.Context, id int) (linker.CanonicalEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, found := s.index(id)
	if !found {
		return linker.CanonicalEntry{}, false, nil
	}
	entry := s.entries[i]
	entry.LinkSites = append([]string(nil), entry.LinkSites...)
	return entry, true, nil
}

// PageCanonicalEntries returns a 1-based page ordered by id.
func (s *CatalogStore) PageCanonicalEntries(_ context.Context, page, size int) (linker.CanonicalPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 1
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := (page - 1) * size
	if start >= len(s.entries) {
		return linker.CanonicalPage{}, nil
	}
	end := min(start+size, len(s.entries))
	items := make([]linker.CanonicalEntry, 0, end-start)
	for _, e := range s.entries[start:end] {
		e.LinkSites = append([]string(nil), e.LinkSites...)
		items = append(items, e)
	}
	return linker.CanonicalPage{Items: items, HasNextPage: end < len(s.entries)}, nil
}

// ExistsByPath reports whether a link already points at remotePath.
func (s *CatalogStore) ExistsByPath(_ context.Context, remotePath string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.links {
		if l.RemotePath == remotePath {
			return true, nil
		}
	}
	return false, nil
}

// Save records link and marks its entry as linked from the site.
func (s *CatalogStore) Save(_ context.Context, link linker.ExternalLink) (linker.ExternalLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, found := s.index(link.CanonicalID)
	if !found {
		return linker.ExternalLink{}, fmt.Errorf("save link: %w", linker.ErrEntryNotFound)
	}
	s.nextID++
	link.ID = s.nextID
	link.CreatedAt = s.now()
	s.links = append(s.links, link)
	if !s.entries[i].LinkedFrom(link.SiteName) {
		s.entries[i].LinkSites = append(s.entries[i].LinkSites, link.SiteName)
	}
	return link, nil
}

// Links returns a snapshot of saved links.
func (s *CatalogStore) Links() []linker.ExternalLink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]linker.ExternalLink(nil), s.links...)
}

func (s *CatalogStore) index(id int) (int, bool) {
	return slices.BinarySearchFunc(s.entries, id, func(e linker.CanonicalEntry, id int) int {
		return e.ID - id
	})
}

func displayTitle(e linker.CanonicalEntry) string {
	switch {
	case e.Titles.English != "":
		return e.Titles.English
	case e.Titles.Romaji != "":
		return e.Titles.Romaji
	default:
		return e.Titles.Native
	}
}
