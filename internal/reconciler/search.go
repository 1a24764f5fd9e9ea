package reconciler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-linker/internal/audit"
	"github.com/JakeFAU/catalog-linker/internal/linker"
	"github.com/JakeFAU/catalog-linker/internal/paginate"
)

type entrySubject struct {
	CanonicalID int           `json:"canonical_id"`
	Titles      linker.Titles `json:"titles"`
	Keyword     string        `json:"keyword,omitempty"`
}

func subjectOf(entry linker.CanonicalEntry) entrySubject {
	return entrySubject{CanonicalID: entry.ID, Titles: entry.Titles, Keyword: entry.Keyword()}
}

// search is a cursor over the local catalog. Per-entry faults are audited and
// the cursor always advances.
func (s *Service) search(ctx context.Context, startPage int, report *RunReport, logger *zap.Logger) error {
	if startPage < 1 {
		startPage = 1
	}
	visited := 0
	for page := startPage; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.cfg.SearchMaxPages > 0 && visited >= s.cfg.SearchMaxPages {
			logger.Info("search page limit reached", zap.Int("page", page), zap.Int("max_pages", s.cfg.SearchMaxPages))
			return nil
		}
		visited++
		local, err := s.catalog.PageCanonicalEntries(ctx, page, s.cfg.SearchPageSize)
		if err != nil {
			if cancelled(ctx, err) {
				return ctx.Err()
			}
			return fmt.Errorf("page local catalog at %d: %w", page, err)
		}
		report.Pages.Add(1)
		if len(local.Items) == 0 {
			s.record(ctx, audit.TagSearchEmptyPage, fmt.Sprintf("local page %d is empty", page), map[string]int{"page": page}, nil, "")
			report.observe(linker.OutcomeAudited)
		}
		for _, entry := range local.Items {
			entryLogger := logger.With(zap.Int("page", page), zap.Int("canonical_id", entry.ID))
			outcome, err := s.searchEntry(ctx, entry, entryLogger)
			if err != nil {
				if cancelled(ctx, err) {
					return ctx.Err()
				}
				report.observe(linker.OutcomeFailed)
				entryLogger.Debug("search failed", zap.Error(err))
				s.record(ctx, audit.TagSearchFailed, fmt.Sprintf("search for canonical entry %d failed", entry.ID), subjectOf(entry), err, "")
				continue
			}
			report.observe(outcome)
		}
		if !local.HasNextPage {
			return nil
		}
	}
}

// searchEntry looks entry up on the remote site and links the best result.
func (s *Service) searchEntry(ctx context.Context, entry linker.CanonicalEntry, logger *zap.Logger) (linker.Outcome, error) {
	keyword := entry.Keyword()
	if keyword == "" {
		s.record(ctx, audit.TagSearchNoKeyword, fmt.Sprintf("canonical entry %d has no searchable title", entry.ID), subjectOf(entry), nil, "")
		return linker.OutcomeAudited, nil
	}
	stubs, err := s.searchRemote(ctx, keyword)
	if err != nil {
		return "", err
	}
	candidates := make([]linker.ScoredCandidate, len(stubs))
	for i, stub := range stubs {
		candidates[i] = linker.ScoredCandidate{CanonicalID: i, Title: stub.Title}
	}
	result, ok := s.engine.Select(s.engine.Rank(keyword, candidates))
	if !ok {
		s.record(ctx, audit.TagSearchNoMatch, fmt.Sprintf("no remote match for %q among %d results", keyword, len(stubs)), subjectOf(entry), linker.ErrNoMatch, "")
		return linker.OutcomeAudited, nil
	}
	stub := stubs[result.CanonicalID]
	exists, err := s.links.ExistsByPath(ctx, stub.RemotePath)
	if err != nil {
		return "", fmt.Errorf("check link %s: %w", stub.RemotePath, err)
	}
	if exists {
		logger.Debug("candidate skipped", zap.String("remote_path", stub.RemotePath), zap.Error(linker.ErrDuplicateLink))
		return linker.OutcomeSkipped, nil
	}
	detail := linker.CandidateDetail{PrimaryTitle: stub.Title, RemotePath: stub.RemotePath}
	return s.persist(ctx, entry, result, detail, audit.TagSearchAlreadyLinked, logger)
}

// searchRemote collects results from every page of a remote search.
func (s *Service) searchRemote(ctx context.Context, keyword string) ([]linker.CandidateStub, error) {
	listing := paginate.Listing{
		Kind: "search",
		URL: func(page int) string {
			return s.extractor.SearchURL(keyword, page)
		},
	}
	var stubs []linker.CandidateStub
	for page, err := range s.walker.Pages(ctx, listing) {
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", keyword, err)
		}
		stubs = append(stubs, s.extractor.SearchStubs(page.Doc)...)
	}
	return stubs, nil
}
