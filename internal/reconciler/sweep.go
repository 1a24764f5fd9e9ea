package reconciler

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-linker/internal/audit"
	"github.com/JakeFAU/catalog-linker/internal/batch"
	"github.com/JakeFAU/catalog-linker/internal/linker"
	"github.com/JakeFAU/catalog-linker/internal/match"
	"github.com/JakeFAU/catalog-linker/internal/paginate"
)

type pageSubject struct {
	Section string `json:"section"`
	Page    int    `json:"page"`
	URL     string `json:"url,omitempty"`
}

func (s *Service) sweep(ctx context.Context, report *RunReport, logger *zap.Logger) error {
	for _, target := range s.cfg.Sections {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.sweepSection(ctx, target, report, logger.With(zap.String("section", target.SectionKey)))
	}
	return ctx.Err()
}

// sweepSection walks one library section. A page failure ends the section.
func (s *Service) sweepSection(ctx context.Context, target linker.CrawlTarget, report *RunReport, logger *zap.Logger) {
	listing := paginate.Listing{
		Kind: "library",
		URL: func(page int) string {
			return s.extractor.LibraryURL(target.SectionKey, page)
		},
		FirstPage: target.StartPage,
		LastPage:  target.PageCount,
	}
	for page, err := range s.walker.Pages(ctx, listing) {
		if err != nil {
			if cancelled(ctx, err) {
				return
			}
			logger.Warn("section aborted", zap.Int("page", page.Number), zap.Error(err))
			s.record(ctx, audit.TagSweepPageFailed,
				fmt.Sprintf("listing page %d of section %s failed", page.Number, target.SectionKey),
				pageSubject{Section: target.SectionKey, Page: page.Number, URL: page.URL}, err, "")
			return
		}
		report.Pages.Add(1)
		stubs := s.extractor.ListingStubs(page.Doc)
		logger.Debug("listing page", zap.Int("page", page.Number), zap.Int("candidates", len(stubs)))
		outcomes := batch.Settle(ctx, stubs, s.cfg.ClusterSize, func(ctx context.Context, stub linker.CandidateStub) error {
			outcome, err := s.sweepCandidate(ctx, stub, logger)
			if err != nil {
				return err
			}
			report.observe(outcome)
			return nil
		})
		for _, o := range outcomes {
			if o.Err == nil || cancelled(ctx, o.Err) {
				continue
			}
			report.observe(linker.OutcomeFailed)
			logger.Debug("candidate failed", zap.String("remote_path", o.Item.RemotePath), zap.Error(o.Err))
			s.record(ctx, audit.TagSweepFailed, fmt.Sprintf("candidate %s failed", o.Item.RemotePath), o.Item, o.Err, "")
		}
	}
}

// sweepCandidate reconciles one listing entry. Returned errors are faults;
// unmatched candidates are audited here and reported as such.
func (s *Service) sweepCandidate(ctx context.Context, stub linker.CandidateStub, logger *zap.Logger) (linker.Outcome, error) {
	exists, err := s.links.ExistsByPath(ctx, stub.RemotePath)
	if err != nil {
		return "", fmt.Errorf("check link %s: %w", stub.RemotePath, err)
	}
	if exists {
		logger.Debug("candidate skipped", zap.String("remote_path", stub.RemotePath), zap.Error(linker.ErrDuplicateLink))
		return linker.OutcomeSkipped, nil
	}
	doc, err := s.provider.Load(ctx, s.extractor.URL(stub.RemotePath))
	if err != nil {
		return "", fmt.Errorf("load detail %s: %w", stub.RemotePath, err)
	}
	detail := s.extractor.Detail(doc, stub.RemotePath)
	scored, err := s.lookup(ctx, detail)
	if err != nil {
		return "", err
	}
	result, ok := s.engine.Select(scored)
	if !ok {
		s.auditDetail(ctx, audit.TagSweepNoMatch, "no canonical match", detail, doc, linker.ErrNoMatch, logger)
		return linker.OutcomeAudited, nil
	}
	entry, found, err := s.catalog.FindByID(ctx, result.CanonicalID)
	if err != nil {
		return "", fmt.Errorf("find canonical entry %d: %w", result.CanonicalID, err)
	}
	if !found {
		s.auditDetail(ctx, audit.TagSweepNoMatch, fmt.Sprintf("canonical entry %d not found", result.CanonicalID), detail, doc, linker.ErrEntryNotFound, logger)
		return linker.OutcomeAudited, nil
	}
	if entry.LinkedFrom(s.cfg.SiteName) {
		s.auditDetail(ctx, audit.TagSweepAlreadyLinked,
			fmt.Sprintf("canonical entry %d already linked from %s", entry.ID, s.cfg.SiteName),
			detail, doc, linker.ErrAlreadyLinked, logger)
		return linker.OutcomeAudited, nil
	}
	return s.persist(ctx, entry, result, detail, audit.TagSweepAlreadyLinked, logger)
}

// lookup fuzzy searches every title of detail and merges the results.
func (s *Service) lookup(ctx context.Context, detail linker.CandidateDetail) ([]linker.ScoredCandidate, error) {
	titles := detail.SearchTitles()
	lists := make([][]linker.ScoredCandidate, 0, len(titles))
	for _, title := range titles {
		found, err := s.catalog.FuzzySearchByTitle(ctx, title)
		if err != nil {
			return nil, fmt.Errorf("fuzzy search %q: %w", title, err)
		}
		lists = append(lists, found)
	}
	return match.Merge(lists...), nil
}

func (s *Service) auditDetail(ctx context.Context, tag, note string, detail linker.CandidateDetail, doc *goquery.Document, cause error, logger *zap.Logger) {
	s.record(ctx, tag, note, detail, cause, s.snapshot(ctx, detail.RemotePath, doc, logger))
}
