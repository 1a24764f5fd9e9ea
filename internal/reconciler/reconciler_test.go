package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/catalog-linker/internal/audit"
	"github.com/JakeFAU/catalog-linker/internal/extract"
	hashsha "github.com/JakeFAU/catalog-linker/internal/hash/sha256"
	"github.com/JakeFAU/catalog-linker/internal/linker"
	"github.com/JakeFAU/catalog-linker/internal/match"
	"github.com/JakeFAU/catalog-linker/internal/paginate"
	pubmem "github.com/JakeFAU/catalog-linker/internal/publisher/memory"
	"github.com/JakeFAU/catalog-linker/internal/storage/memory"
)

const baseURL = "https://animevietsub.fun"

type fakeProvider struct {
	mu    sync.Mutex
	pages map[string]string
	fail  map[string]error
	loads map[string]int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{pages: map[string]string{}, fail: map[string]error{}, loads: map[string]int{}}
}

func (p *fakeProvider) set(url, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages[url] = html
}

func (p *fakeProvider) failWith(url string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail[url] = err
}

func (p *fakeProvider) Load(ctx context.Context, url string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.loads[url]++
	html, ok := p.pages[url]
	failure := p.fail[url]
	p.mu.Unlock()
	if failure != nil {
		return nil, failure
	}
	if !ok {
		return nil, &linker.FetchError{URL: url, StatusCode: 404}
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (p *fakeProvider) loadsOf(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads[url]
}

type fakeClock struct {
	mu     sync.Mutex
	sleeps int
}

func (c *fakeClock) Now() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func (c *fakeClock) Sleep(ctx context.Context, _ time.Duration) error {
	c.mu.Lock()
	c.sleeps++
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}

type recordingAudit struct {
	mu     sync.Mutex
	events []linker.AuditEvent
}

func (a *recordingAudit) Record(evt linker.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, evt)
}

func (a *recordingAudit) Events() []linker.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]linker.AuditEvent(nil), a.events...)
}

func (a *recordingAudit) Tagged(tag string) []linker.AuditEvent {
	var out []linker.AuditEvent
	for _, evt := range a.Events() {
		if evt.SourceTag == tag {
			out = append(out, evt)
		}
	}
	return out
}

// fixedCatalog returns the same scores for every title lookup and defers
// everything else to the memory store.
type fixedCatalog struct {
	*memory.CatalogStore
	scores []linker.ScoredCandidate
}

func (c fixedCatalog) FuzzySearchByTitle(context.Context, string) ([]linker.ScoredCandidate, error) {
	return append([]linker.ScoredCandidate(nil), c.scores...), nil
}

type failingPager struct {
	*memory.CatalogStore
	err error
}

func (c failingPager) PageCanonicalEntries(context.Context, int, int) (linker.CanonicalPage, error) {
	return linker.CanonicalPage{}, c.err
}

type harness struct {
	svc       *Service
	provider  *fakeProvider
	store     *memory.CatalogStore
	audit     *recordingAudit
	clock     *fakeClock
	extractor *extract.Extractor
}

type option func(*Config, *Deps)

func newHarness(t *testing.T, store *memory.CatalogStore, cfg Config, opts ...option) *harness {
	t.Helper()
	ext, err := extract.New(baseURL, extract.DefaultSelectors())
	require.NoError(t, err)
	h := &harness{
		provider:  newFakeProvider(),
		store:     store,
		audit:     &recordingAudit{},
		clock:     &fakeClock{},
		extractor: ext,
	}
	deps := Deps{
		Provider:  h.provider,
		Catalog:   store,
		Links:     store,
		Audit:     h.audit,
		Engine:    match.NewEngine(0.6, 0),
		Walker:    paginate.NewWalker(h.provider, ext, h.clock, 500*time.Millisecond, zap.NewNop()),
		Extractor: ext,
		Clock:     h.clock,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	h.svc, err = New(cfg, deps)
	require.NoError(t, err)
	return h
}

func withCatalog(catalog linker.CatalogRepository) option {
	return func(_ *Config, d *Deps) { d.Catalog = catalog }
}

func listingPage(items ...linker.CandidateStub) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, it := range items {
		fmt.Fprintf(&b, `<li class="mlnew"><a href="%s%s"><h2 class="Title">%s</h2></a></li>`, baseURL, it.RemotePath, it.Title)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

func searchPage(items ...linker.CandidateStub) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, it := range items {
		fmt.Fprintf(&b, `<div class="TPostMv"><a href="%s"><h2 class="Title">%s</h2></a></div>`, it.RemotePath, it.Title)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func detailPage(title, subTitle string) string {
	return fmt.Sprintf(`<html><body><h1 class="Title">%s</h1><h2 class="SubTitle">%s</h2>
<p class="Date AAIco-date_range"><a href="#">2002</a></p>
<span class="Time AAIco-access_time">220/220</span></body></html>`, title, subTitle)
}

func catalogSeed() []linker.CanonicalEntry {
	return []linker.CanonicalEntry{
		{ID: 20, Titles: linker.Titles{English: "Naruto", Romaji: "NARUTO", Native: "ナルト"}},
		{ID: 30, Titles: linker.Titles{English: "Bleach", Native: "ブリーチ"}},
		{ID: 457, Titles: linker.Titles{English: "Mushishi", Native: "蟲師"}},
	}
}

var (
	narutoStub = linker.CandidateStub{Title: "Naruto", RemotePath: "/phim/naruto-a1/"}
	bleachStub = linker.CandidateStub{Title: "Bleach", RemotePath: "/phim/bleach-a2/"}
	mushiStub  = linker.CandidateStub{Title: "Mushishi", RemotePath: "/phim/mushishi-a3/"}
)

func sectionA() []linker.CrawlTarget {
	return []linker.CrawlTarget{{SectionKey: "A", StartPage: 1, PageCount: 1}}
}

func (h *harness) seedSweep(stubs ...linker.CandidateStub) {
	h.provider.set(h.extractor.LibraryURL("A", 1), listingPage(stubs...))
	for _, s := range stubs {
		h.provider.set(h.extractor.URL(s.RemotePath), detailPage(s.Title, ""))
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Deps{})
	require.Error(t, err)

	store := memory.NewCatalogStore(nil, 0)
	h := newHarness(t, store, Config{})
	require.Equal(t, DefaultSiteName, h.svc.cfg.SiteName)
	require.Equal(t, linker.LinkTypeStreaming, h.svc.cfg.LinkType)
	require.Equal(t, DefaultLanguage, h.svc.cfg.Language)
	require.Len(t, h.svc.cfg.Sections, 27)
	require.Equal(t, 1, h.svc.cfg.SearchPageSize)

	_, err = New(Config{LinkType: "BOGUS"}, Deps{
		Provider: h.provider, Catalog: store, Links: store, Audit: h.audit,
		Walker: h.svc.walker, Extractor: h.extractor, Clock: h.clock,
	})
	require.Error(t, err)
}

func TestSweepLinksMatchesAndIsIdempotent(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore(catalogSeed(), 10)
	pub := pubmem.New()
	h := newHarness(t, store, Config{Sections: sectionA(), NotifyTopic: "links"}, func(_ *Config, d *Deps) {
		d.Publisher = pub
	})
	h.seedSweep(narutoStub, bleachStub)
	ctx := linker.WithRunID(context.Background(), "run-1")

	require.NoError(t, h.svc.RunCatalogSweep(ctx))

	links := store.Links()
	require.Len(t, links, 2)
	byPath := map[string]linker.ExternalLink{}
	for _, l := range links {
		byPath[l.RemotePath] = l
	}
	naruto := byPath[narutoStub.RemotePath]
	require.Equal(t, 20, naruto.CanonicalID)
	require.Equal(t, DefaultSiteName, naruto.SiteName)
	require.Equal(t, linker.LinkTypeStreaming, naruto.LinkType)
	require.Equal(t, DefaultLanguage, naruto.Language)
	require.InDelta(t, 1.0, naruto.MatchScore, 1e-9)
	require.True(t, naruto.IsMatching)
	var meta map[string]string
	require.NoError(t, json.Unmarshal([]byte(naruto.MetadataJSON), &meta))
	require.Equal(t, "Naruto", meta["mainTitle"])
	require.Equal(t, "2002", meta["startDate"])
	require.Equal(t, "220/220", meta["episodes"])
	require.Equal(t, narutoStub.RemotePath, meta["animePath"])
	require.Equal(t, 30, byPath[bleachStub.RemotePath].CanonicalID)
	require.Empty(t, h.audit.Events())

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	payload, ok := msgs[0].Payload.(LinkCreated)
	require.True(t, ok)
	require.Equal(t, EventLinkCreated, payload.Event)
	require.Equal(t, "run-1", payload.RunID)
	require.Equal(t, "links", msgs[0].Topic)

	require.NoError(t, h.svc.RunCatalogSweep(ctx))
	require.Len(t, store.Links(), 2)
	require.Empty(t, h.audit.Events())
	require.Equal(t, 1, h.provider.loadsOf(h.extractor.URL(narutoStub.RemotePath)))
	require.Len(t, pub.Messages(), 2)
}

func TestSweepLogsDuplicateSkip(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	store := memory.NewCatalogStore(catalogSeed(), 10)
	h := newHarness(t, store, Config{Sections: sectionA()}, func(_ *Config, d *Deps) {
		d.Logger = zap.New(core)
	})
	h.seedSweep(narutoStub)
	ctx := context.Background()

	require.NoError(t, h.svc.RunCatalogSweep(ctx))
	require.Zero(t, logs.FilterMessage("candidate skipped").Len())

	require.NoError(t, h.svc.RunCatalogSweep(ctx))
	skipped := logs.FilterMessage("candidate skipped").All()
	require.Len(t, skipped, 1)
	fields := skipped[0].ContextMap()
	require.Equal(t, narutoStub.RemotePath, fields["remote_path"])
	require.Equal(t, linker.ErrDuplicateLink.Error(), fields["error"])
}

func TestSweepReportCountsOutcomes(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore(catalogSeed(), 10)
	h := newHarness(t, store, Config{Sections: sectionA()})
	h.seedSweep(narutoStub, bleachStub)
	_, err := store.Save(context.Background(), linker.ExternalLink{CanonicalID: 30, RemotePath: bleachStub.RemotePath, SiteName: DefaultSiteName})
	require.NoError(t, err)

	report, err := h.svc.run(context.Background(), linker.StrategySweep, h.svc.sweep)
	require.NoError(t, err)
	require.Equal(t, int64(1), report.Pages.Load())
	require.Equal(t, int64(1), report.Reconciled.Load())
	require.Equal(t, int64(1), report.Skipped.Load())
	require.Zero(t, report.Audited.Load())
	require.Zero(t, report.Failed.Load())
}

func TestSweepIsolatesFailingCandidate(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore(catalogSeed(), 10)
	h := newHarness(t, store, Config{Sections: sectionA(), ClusterSize: 2})
	h.seedSweep(narutoStub, bleachStub, mushiStub)
	h.provider.failWith(h.extractor.URL(bleachStub.RemotePath), &linker.FetchError{URL: bleachStub.RemotePath, Err: errors.New("connection reset")})

	require.NoError(t, h.svc.RunCatalogSweep(context.Background()))

	links := store.Links()
	require.Len(t, links, 2)
	for _, l := range links {
		require.NotEqual(t, bleachStub.RemotePath, l.RemotePath)
	}
	events := h.audit.Events()
	require.Len(t, events, 1)
	require.Equal(t, audit.TagSweepFailed, events[0].SourceTag)
	require.Contains(t, events[0].SubjectJSON, bleachStub.RemotePath)
	require.Contains(t, events[0].ErrorJSON, "connection reset")
}

func TestSweepTieBreakMarksAmbiguous(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore([]linker.CanonicalEntry{
		{ID: 1, Titles: linker.Titles{English: "Clannad"}},
		{ID: 2, Titles: linker.Titles{English: "Clannad After Story"}},
	}, 10)
	catalog := fixedCatalog{CatalogStore: store, scores: []linker.ScoredCandidate{
		{CanonicalID: 1, Title: "Clannad", Score: 0.89},
		{CanonicalID: 2, Title: "Clannad After Story", Score: 0.91},
	}}
	h := newHarness(t, store, Config{Sections: sectionA()}, withCatalog(catalog))
	h.seedSweep(linker.CandidateStub{Title: "Clannad AS", RemotePath: "/phim/clannad-as-a5/"})

	require.NoError(t, h.svc.RunCatalogSweep(context.Background()))

	links := store.Links()
	require.Len(t, links, 1)
	require.Equal(t, 2, links[0].CanonicalID)
	require.InDelta(t, 0.91, links[0].MatchScore, 1e-12)
	require.False(t, links[0].IsMatching)
}

func TestSweepRejectsBelowThreshold(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore(catalogSeed(), 10)
	catalog := fixedCatalog{CatalogStore: store, scores: []linker.ScoredCandidate{
		{CanonicalID: 20, Title: "Naruto", Score: 0.40},
	}}
	blobs := memory.NewBlobStore()
	h := newHarness(t, store, Config{Sections: sectionA(), SnapshotPrefix: "snapshots"}, withCatalog(catalog), func(_ *Config, d *Deps) {
		d.Snapshots = blobs
		d.Hasher = hashsha.New()
	})
	stub := linker.CandidateStub{Title: "Gintama", RemotePath: "/phim/gintama-a7/"}
	h.seedSweep(stub)
	ctx := linker.WithRunID(context.Background(), "run-7")

	require.NoError(t, h.svc.RunCatalogSweep(ctx))

	require.Empty(t, store.Links())
	events := h.audit.Tagged(audit.TagSweepNoMatch)
	require.Len(t, events, 1)
	require.Equal(t, "run-7", events[0].RunID)
	require.Contains(t, events[0].SubjectJSON, `"mainTitle":"Gintama"`)
	require.Contains(t, events[0].ErrorJSON, linker.ErrNoMatch.Error())
	require.Equal(t, "memory://snapshots/run-7/"+hashsha.New().Key("/phim/gintama-a7")+".html", events[0].SnapshotURI)
	require.Equal(t, 1, blobs.Len())
}

func TestSweepAuditsAlreadyLinkedEntry(t *testing.T) {
	t.Parallel()

	seed := catalogSeed()
	seed[0].LinkSites = []string{DefaultSiteName}
	store := memory.NewCatalogStore(seed, 10)
	h := newHarness(t, store, Config{Sections: sectionA()})
	h.seedSweep(linker.CandidateStub{Title: "Naruto", RemotePath: "/phim/naruto-mirror-a9/"})

	require.NoError(t, h.svc.RunCatalogSweep(context.Background()))

	require.Empty(t, store.Links())
	events := h.audit.Tagged(audit.TagSweepAlreadyLinked)
	require.Len(t, events, 1)
	require.Empty(t, events[0].SnapshotURI)
}

func TestSweepSinglePageNeedsNoDelay(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore(catalogSeed(), 10)
	h := newHarness(t, store, Config{Sections: []linker.CrawlTarget{{SectionKey: "B", StartPage: 1}}})
	listing := strings.Replace(listingPage(bleachStub), "</ul>",
		`</ul><div class="wp-pagenavi"><span class="pages">Trang 1 của 1</span></div>`, 1)
	h.provider.set(h.extractor.LibraryURL("B", 1), listing)
	h.provider.set(h.extractor.URL(bleachStub.RemotePath), detailPage("Bleach", ""))

	require.NoError(t, h.svc.RunCatalogSweep(context.Background()))

	require.Equal(t, 1, h.provider.loadsOf(h.extractor.LibraryURL("B", 1)))
	require.Zero(t, h.provider.loadsOf(h.extractor.LibraryURL("B", 2)))
	require.Zero(t, h.clock.Sleeps())
	require.Len(t, store.Links(), 1)
}

func TestSweepPageFailureAbortsOnlyThatSection(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore(catalogSeed(), 10)
	h := newHarness(t, store, Config{Sections: []linker.CrawlTarget{
		{SectionKey: "A", StartPage: 1, PageCount: 3},
		{SectionKey: "B", StartPage: 1, PageCount: 1},
	}})
	h.provider.set(h.extractor.LibraryURL("A", 1), listingPage(narutoStub))
	h.provider.set(h.extractor.URL(narutoStub.RemotePath), detailPage("Naruto", ""))
	h.provider.failWith(h.extractor.LibraryURL("A", 2), &linker.FetchError{URL: "a2", StatusCode: 503})
	h.provider.set(h.extractor.LibraryURL("B", 1), listingPage(bleachStub))
	h.provider.set(h.extractor.URL(bleachStub.RemotePath), detailPage("Bleach", ""))

	require.NoError(t, h.svc.RunCatalogSweep(context.Background()))

	require.Zero(t, h.provider.loadsOf(h.extractor.LibraryURL("A", 3)))
	require.Len(t, store.Links(), 2)
	events := h.audit.Tagged(audit.TagSweepPageFailed)
	require.Len(t, events, 1)
	require.Contains(t, events[0].SubjectJSON, `"page":2`)
	require.Equal(t, 1, h.clock.Sleeps())
}

func TestSweepReturnsCancellation(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore(catalogSeed(), 10)
	h := newHarness(t, store, Config{Sections: sectionA()})
	h.seedSweep(narutoStub)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.svc.RunCatalogSweep(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, h.audit.Events())
	require.Empty(t, store.Links())
}

func (h *harness) seedSearch(keyword string, results ...linker.CandidateStub) {
	h.provider.set(h.extractor.SearchURL(keyword, 1), searchPage(results...))
}

func TestSearchStreamLinksEntries(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore(catalogSeed(), 10)
	h := newHarness(t, store, Config{})
	h.seedSearch("Naruto", linker.CandidateStub{Title: "Naruto Shippuden", RemotePath: "/phim/shippuden-a4/"}, narutoStub)
	h.seedSearch("Bleach", bleachStub)
	h.seedSearch("Mushishi", mushiStub)

	require.NoError(t, h.svc.RunSearchStream(context.Background(), 1))

	links := store.Links()
	require.Len(t, links, 3)
	require.Equal(t, 20, links[0].CanonicalID)
	require.Equal(t, narutoStub.RemotePath, links[0].RemotePath)
	require.Contains(t, links[0].MetadataJSON, `"mainTitle":"Naruto"`)
	require.Empty(t, h.audit.Events())
	require.Zero(t, h.clock.Sleeps())
}

func TestSearchStreamSkipsAndAudits(t *testing.T) {
	t.Parallel()

	seed := catalogSeed()
	seed[1].LinkSites = []string{DefaultSiteName}
	seed = append(seed, linker.CanonicalEntry{ID: 900, Titles: linker.Titles{Romaji: "Only Romaji"}})
	store := memory.NewCatalogStore(seed, 10)
	_, err := store.Save(context.Background(), linker.ExternalLink{CanonicalID: 457, RemotePath: mushiStub.RemotePath, SiteName: "Other"})
	require.NoError(t, err)
	h := newHarness(t, store, Config{})
	h.seedSearch("Naruto", linker.CandidateStub{Title: "One Piece", RemotePath: "/phim/one-piece-a8/"})
	h.seedSearch("Bleach", linker.CandidateStub{Title: "Bleach", RemotePath: "/phim/bleach-mirror/"})
	h.seedSearch("Mushishi", mushiStub)

	report, err := h.svc.run(context.Background(), linker.StrategySearch, func(ctx context.Context, r *RunReport, l *zap.Logger) error {
		return h.svc.search(ctx, 1, r, l)
	})
	require.NoError(t, err)

	require.Len(t, store.Links(), 1)
	require.Len(t, h.audit.Tagged(audit.TagSearchNoMatch), 1)
	require.Len(t, h.audit.Tagged(audit.TagSearchAlreadyLinked), 1)
	require.Len(t, h.audit.Tagged(audit.TagSearchNoKeyword), 1)
	require.Equal(t, int64(1), report.Skipped.Load())
	require.Equal(t, int64(3), report.Audited.Load())
	require.Equal(t, int64(4), report.Pages.Load())
}

func TestSearchStreamAdvancesPastFailures(t *testing.T) {
	t.Parallel()

	entries := make([]linker.CanonicalEntry, 0, 11)
	for i := 1; i <= 10; i++ {
		entries = append(entries, linker.CanonicalEntry{ID: i, Titles: linker.Titles{English: fmt.Sprintf("Broken %d", i)}})
	}
	entries = append(entries, linker.CanonicalEntry{ID: 11, Titles: linker.Titles{English: "Mushishi"}})
	store := memory.NewCatalogStore(entries, 10)
	h := newHarness(t, store, Config{})
	h.seedSearch("Mushishi", mushiStub)

	require.NoError(t, h.svc.RunSearchStream(context.Background(), 1))

	require.Len(t, h.audit.Tagged(audit.TagSearchFailed), 10)
	links := store.Links()
	require.Len(t, links, 1)
	require.Equal(t, 11, links[0].CanonicalID)
}

func TestSearchStreamFollowsRemotePagination(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore([]linker.CanonicalEntry{{ID: 457, Titles: linker.Titles{English: "Mushishi"}}}, 10)
	h := newHarness(t, store, Config{})
	first := strings.Replace(searchPage(linker.CandidateStub{Title: "Mushoku Tensei", RemotePath: "/phim/mushoku-a1/"}), "</body>",
		`<div class="wp-pagenavi"><span class="pages">Trang 1 của 2</span></div></body>`, 1)
	h.provider.set(h.extractor.SearchURL("Mushishi", 1), first)
	h.provider.set(h.extractor.SearchURL("Mushishi", 2), searchPage(mushiStub))

	require.NoError(t, h.svc.RunSearchStream(context.Background(), 1))

	require.Equal(t, 1, h.clock.Sleeps())
	links := store.Links()
	require.Len(t, links, 1)
	require.Equal(t, mushiStub.RemotePath, links[0].RemotePath)
}

func TestSearchStreamHonorsStartAndMaxPages(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore(catalogSeed(), 10)
	h := newHarness(t, store, Config{SearchMaxPages: 1})
	h.seedSearch("Bleach", bleachStub)
	h.seedSearch("Mushishi", mushiStub)

	require.NoError(t, h.svc.RunSearchStream(context.Background(), 2))

	links := store.Links()
	require.Len(t, links, 1)
	require.Equal(t, 30, links[0].CanonicalID)
	require.Zero(t, h.provider.loadsOf(h.extractor.SearchURL("Naruto", 1)))
	require.Zero(t, h.provider.loadsOf(h.extractor.SearchURL("Mushishi", 1)))
}

func TestSearchStreamAuditsEmptyPage(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore(catalogSeed(), 10)
	h := newHarness(t, store, Config{})

	require.NoError(t, h.svc.RunSearchStream(context.Background(), 9))
	require.Len(t, h.audit.Tagged(audit.TagSearchEmptyPage), 1)
}

func TestSearchStreamReturnsPagingError(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore(catalogSeed(), 10)
	boom := errors.New("catalog offline")
	h := newHarness(t, store, Config{}, withCatalog(failingPager{CatalogStore: store, err: boom}))

	err := h.svc.RunSearchStream(context.Background(), 1)
	require.ErrorIs(t, err, boom)
}

func TestSearchStreamReturnsCancellation(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore(catalogSeed(), 10)
	h := newHarness(t, store, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, h.svc.RunSearchStream(ctx, 1), context.Canceled)
	require.Empty(t, h.audit.Events())
}

func TestPublishFailureDoesNotFailCandidate(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore(catalogSeed(), 10)
	pub := pubmem.New()
	pub.FailWith(errors.New("topic missing"))
	h := newHarness(t, store, Config{Sections: sectionA(), NotifyTopic: "links"}, func(_ *Config, d *Deps) {
		d.Publisher = pub
	})
	h.seedSweep(narutoStub)

	require.NoError(t, h.svc.RunCatalogSweep(context.Background()))
	require.Len(t, store.Links(), 1)
	require.Empty(t, h.audit.Events())
}
