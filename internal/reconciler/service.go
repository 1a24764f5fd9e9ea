// Package reconciler links entries of a remote streaming catalog to entries of
// the local canonical catalog. Two strategies are offered: a sweep over the
// remote library index and a search stream driven by the local catalog.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-linker/internal/extract"
	"github.com/JakeFAU/catalog-linker/internal/linker"
	"github.com/JakeFAU/catalog-linker/internal/logging"
	"github.com/JakeFAU/catalog-linker/internal/match"
	"github.com/JakeFAU/catalog-linker/internal/metrics"
	"github.com/JakeFAU/catalog-linker/internal/paginate"
)

// Site defaults for AnimeVSub.
const (
	DefaultSiteName = "AnimeVSub"
	DefaultLanguage = "Vietnamese"

	// EventLinkCreated is the notification type published for saved links.
	EventLinkCreated = "link.created"

	snapshotContentType = "text/html; charset=utf-8"
)

// Config is fixed for the lifetime of a Service.
type Config struct {
	SiteName    string
	LinkType    linker.LinkType
	Language    string
	ClusterSize int
	Sections    []linker.CrawlTarget
	// SearchPageSize is the number of local entries fetched per search step.
	SearchPageSize int
	// SearchMaxPages caps local pages visited per search run. Zero is unlimited.
	SearchMaxPages int
	NotifyTopic    string
	SnapshotPrefix string
}

// Deps are the collaborators of a Service. Publisher and Snapshots are optional.
type Deps struct {
	Provider  linker.DocumentProvider
	Catalog   linker.CatalogRepository
	Links     linker.LinkRepository
	Audit     linker.AuditSink
	Engine    *match.Engine
	Walker    *paginate.Walker
	Extractor *extract.Extractor
	Publisher linker.Publisher
	Snapshots linker.BlobStore
	Hasher    linker.Hasher
	Clock     linker.Clock
	Logger    *zap.Logger
}

// Service runs reconciliation strategies.
type Service struct {
	cfg       Config
	provider  linker.DocumentProvider
	catalog   linker.CatalogRepository
	links     linker.LinkRepository
	audit     linker.AuditSink
	engine    *match.Engine
	walker    *paginate.Walker
	extractor *extract.Extractor
	publisher linker.Publisher
	snapshots linker.BlobStore
	hasher    linker.Hasher
	clock     linker.Clock
	logger    *zap.Logger
}

// New validates deps and fills config defaults.
func New(cfg Config, deps Deps) (*Service, error) {
	switch {
	case deps.Provider == nil:
		return nil, errors.New("reconciler: document provider is required")
	case deps.Catalog == nil:
		return nil, errors.New("reconciler: catalog repository is required")
	case deps.Links == nil:
		return nil, errors.New("reconciler: link repository is required")
	case deps.Audit == nil:
		return nil, errors.New("reconciler: audit sink is required")
	case deps.Walker == nil:
		return nil, errors.New("reconciler: walker is required")
	case deps.Extractor == nil:
		return nil, errors.New("reconciler: extractor is required")
	case deps.Clock == nil:
		return nil, errors.New("reconciler: clock is required")
	case deps.Snapshots != nil && deps.Hasher == nil:
		return nil, errors.New("reconciler: snapshots need a hasher")
	}
	if cfg.SiteName == "" {
		cfg.SiteName = DefaultSiteName
	}
	if cfg.LinkType == "" {
		cfg.LinkType = linker.LinkTypeStreaming
	}
	if !cfg.LinkType.Valid() {
		return nil, fmt.Errorf("reconciler: unknown link type %q", cfg.LinkType)
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.SearchPageSize <= 0 {
		cfg.SearchPageSize = 1
	}
	if cfg.Sections == nil {
		cfg.Sections = linker.DefaultCrawlTargets()
	}
	cfg.Sections = append([]linker.CrawlTarget(nil), cfg.Sections...)
	engine := deps.Engine
	if engine == nil {
		engine = match.NewEngine(match.DefaultThreshold, 0)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:       cfg,
		provider:  deps.Provider,
		catalog:   deps.Catalog,
		links:     deps.Links,
		audit:     deps.Audit,
		engine:    engine,
		walker:    deps.Walker,
		extractor: deps.Extractor,
		publisher: deps.Publisher,
		snapshots: deps.Snapshots,
		hasher:    deps.Hasher,
		clock:     deps.Clock,
		logger:    logger.Named("reconciler"),
	}, nil
}

// RunReport counts candidate outcomes for one run.
type RunReport struct {
	Strategy   linker.Strategy
	Pages      atomic.Int64
	Skipped    atomic.Int64
	Reconciled atomic.Int64
	Audited    atomic.Int64
	Failed     atomic.Int64
}

func (r *RunReport) observe(outcome linker.Outcome) {
	switch outcome {
	case linker.OutcomeSkipped:
		r.Skipped.Add(1)
	case linker.OutcomeReconciled:
		r.Reconciled.Add(1)
	case linker.OutcomeAudited:
		r.Audited.Add(1)
	case linker.OutcomeFailed:
		r.Failed.Add(1)
	}
	metrics.ObserveCandidate(string(r.Strategy), string(outcome))
}

func (r *RunReport) fields() []zap.Field {
	return []zap.Field{
		zap.Int64("pages", r.Pages.Load()),
		zap.Int64("skipped", r.Skipped.Load()),
		zap.Int64("reconciled", r.Reconciled.Load()),
		zap.Int64("audited", r.Audited.Load()),
		zap.Int64("failed", r.Failed.Load()),
	}
}

// RunCatalogSweep walks every configured library section and reconciles each
// listed title. Per-candidate and per-section failures are audited; only
// cancellation is returned.
func (s *Service) RunCatalogSweep(ctx context.Context) error {
	_, err := s.run(ctx, linker.StrategySweep, s.sweep)
	return err
}

// RunSearchStream walks the local catalog from startPage and searches the
// remote site for each entry. It returns on cancellation or when the local
// catalog cannot be paged.
func (s *Service) RunSearchStream(ctx context.Context, startPage int) error {
	_, err := s.run(ctx, linker.StrategySearch, func(ctx context.Context, report *RunReport, logger *zap.Logger) error {
		return s.search(ctx, startPage, report, logger)
	})
	return err
}

type runFunc func(ctx context.Context, report *RunReport, logger *zap.Logger) error

func (s *Service) run(ctx context.Context, strategy linker.Strategy, fn runFunc) (*RunReport, error) {
	report := &RunReport{Strategy: strategy}
	logger := logging.ForRun(s.logger, linker.RunIDFrom(ctx), string(strategy))
	logger.Info("run started")
	metrics.RunStarted()
	start := time.Now()
	err := fn(ctx, report, logger)
	metrics.RunFinished(string(strategy), err, time.Since(start))
	fields := append(report.fields(), zap.Duration("duration", time.Since(start)))
	if err != nil {
		logger.Warn("run stopped", append(fields, zap.Error(err))...)
		return report, err
	}
	logger.Info("run finished", fields...)
	return report, nil
}

// persist saves a link for entry unless the entry already carries one from
// this site, in which case an audit event is raised with tag.
func (s *Service) persist(ctx context.Context, entry linker.CanonicalEntry, result linker.MatchResult, detail linker.CandidateDetail, tag string, logger *zap.Logger) (linker.Outcome, error) {
	if entry.LinkedFrom(s.cfg.SiteName) {
		s.record(ctx, tag, fmt.Sprintf("canonical entry %d already linked from %s", entry.ID, s.cfg.SiteName), detail, linker.ErrAlreadyLinked, "")
		return linker.OutcomeAudited, nil
	}
	metadata, err := json.Marshal(detail)
	if err != nil {
		return "", fmt.Errorf("encode metadata for %s: %w", detail.RemotePath, err)
	}
	saved, err := s.links.Save(ctx, linker.ExternalLink{
		CanonicalID:  entry.ID,
		RemotePath:   detail.RemotePath,
		SiteName:     s.cfg.SiteName,
		LinkType:     s.cfg.LinkType,
		Language:     s.cfg.Language,
		MatchScore:   result.Score,
		IsMatching:   !result.Ambiguous,
		MetadataJSON: string(metadata),
	})
	if err != nil {
		return "", fmt.Errorf("save link %s: %w", detail.RemotePath, err)
	}
	metrics.ObserveMatchScore(saved.MatchScore)
	logger.Debug("link saved",
		zap.Int("canonical_id", saved.CanonicalID),
		zap.String("remote_path", saved.RemotePath),
		zap.Float64("score", saved.MatchScore),
		zap.Bool("ambiguous", result.Ambiguous),
	)
	s.notify(ctx, saved, logger)
	return linker.OutcomeReconciled, nil
}

// LinkCreated is the notification payload published for every saved link.
type LinkCreated struct {
	Event       string    `json:"event"`
	LinkID      int64     `json:"link_id"`
	CanonicalID int       `json:"canonical_id"`
	RemotePath  string    `json:"remote_path"`
	Site        string    `json:"site"`
	Score       float64   `json:"score"`
	IsMatching  bool      `json:"is_matching"`
	RunID       string    `json:"run_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func (s *Service) notify(ctx context.Context, link linker.ExternalLink, logger *zap.Logger) {
	if s.publisher == nil || s.cfg.NotifyTopic == "" {
		return
	}
	_, err := s.publisher.Publish(ctx, s.cfg.NotifyTopic, LinkCreated{
		Event:       EventLinkCreated,
		LinkID:      link.ID,
		CanonicalID: link.CanonicalID,
		RemotePath:  link.RemotePath,
		Site:        link.SiteName,
		Score:       link.MatchScore,
		IsMatching:  link.IsMatching,
		RunID:       linker.RunIDFrom(ctx),
		Timestamp:   s.clock.Now(),
	})
	metrics.ObservePublish(err)
	if err != nil {
		logger.Warn("link notification failed", zap.String("remote_path", link.RemotePath), zap.Error(err))
	}
}

// record raises one audit event. subject is encoded as JSON.
func (s *Service) record(ctx context.Context, tag, note string, subject any, cause error, snapshotURI string) {
	evt := linker.AuditEvent{
		RunID:       linker.RunIDFrom(ctx),
		TS:          s.clock.Now(),
		SourceTag:   tag,
		Note:        note,
		SnapshotURI: snapshotURI,
	}
	if subject != nil {
		if raw, err := json.Marshal(subject); err == nil {
			evt.SubjectJSON = string(raw)
		}
	}
	if cause != nil {
		if raw, err := json.Marshal(map[string]string{"error": cause.Error()}); err == nil {
			evt.ErrorJSON = string(raw)
		}
	}
	s.audit.Record(evt)
}

// snapshot archives the detail page and returns its URI, or "" when
// snapshots are disabled or the write fails.
func (s *Service) snapshot(ctx context.Context, remotePath string, doc *goquery.Document, logger *zap.Logger) string {
	if s.snapshots == nil || doc == nil {
		return ""
	}
	html, err := doc.Html()
	if err != nil {
		logger.Warn("render snapshot failed", zap.String("remote_path", remotePath), zap.Error(err))
		return ""
	}
	key := s.hasher.Key(remotePath)
	runID := linker.RunIDFrom(ctx)
	if runID == "" {
		runID = "adhoc"
	}
	uri, err := s.snapshots.PutObject(ctx, path.Join(s.cfg.SnapshotPrefix, runID, key+".html"), snapshotContentType, strings.NewReader(html))
	if err != nil {
		logger.Warn("store snapshot failed", zap.String("remote_path", remotePath), zap.Error(err))
		return ""
	}
	return uri
}

func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
