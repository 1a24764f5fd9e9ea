package linker

import "time"

// CrawlTarget is one bucket of the remote catalog index.
type CrawlTarget struct {
	SectionKey string `mapstructure:"key" json:"key"`
	StartPage  int    `mapstructure:"start_page" json:"start_page"`
	// PageCount bounds the walk. Zero means read it from the pagination marker.
	PageCount int `mapstructure:"page_count" json:"page_count"`
}

// DefaultCrawlTargets returns the section table for the AnimeVSub library.
func DefaultCrawlTargets() []CrawlTarget {
	counts := []struct {
		key   string
		pages int
	}{
		{"0-9", 2}, {"A", 8}, {"B", 12}, {"C", 13}, {"D", 9}, {"E", 2},
		{"F", 4}, {"G", 8}, {"H", 13}, {"I", 4}, {"J", 2}, {"K", 13},
		{"L", 5}, {"M", 10}, {"N", 9}, {"O", 6}, {"P", 6}, {"Q", 1},
		{"R", 4}, {"S", 15}, {"T", 20}, {"U", 3}, {"V", 3}, {"W", 2},
		{"X", 1}, {"Y", 4}, {"Z", 1},
	}
	targets := make([]CrawlTarget, 0, len(counts))
	for _, c := range counts {
		targets = append(targets, CrawlTarget{SectionKey: c.key, StartPage: 1, PageCount: c.pages})
	}
	return targets
}

// CandidateStub is a title and path pulled from a listing or search page.
type CandidateStub struct {
	Title      string `json:"title"`
	RemotePath string `json:"remote_path"`
}

// CandidateDetail holds the fields read from a remote detail page. Empty
// strings mean the field was absent.
type CandidateDetail struct {
	PrimaryTitle   string `json:"mainTitle,omitempty"`
	AlternateTitle string `json:"subTitle,omitempty"`
	AirDateText    string `json:"startDate,omitempty"`
	EpisodeText    string `json:"episodes,omitempty"`
	ImageURL       string `json:"img,omitempty"`
	RemotePath     string `json:"animePath"`
}

// SearchTitles returns the non-empty distinct titles to look up, alternate first.
func (d CandidateDetail) SearchTitles() []string {
	out := make([]string, 0, 2)
	if d.AlternateTitle != "" {
		out = append(out, d.AlternateTitle)
	}
	if d.PrimaryTitle != "" && d.PrimaryTitle != d.AlternateTitle {
		out = append(out, d.PrimaryTitle)
	}
	return out
}

// ScoredCandidate is a canonical entry ranked against a search title.
type ScoredCandidate struct {
	CanonicalID int     `json:"canonical_id"`
	Title       string  `json:"title"`
	Score       float64 `json:"score"`
}

// MatchResult is the winner picked by the match engine. Ambiguous is advisory.
type MatchResult struct {
	CanonicalID int     `json:"canonical_id"`
	Score       float64 `json:"score"`
	Ambiguous   bool    `json:"ambiguous"`
}

// Titles groups the localized titles of a canonical entry.
type Titles struct {
	English string `json:"english,omitempty"`
	Romaji  string `json:"romaji,omitempty"`
	Native  string `json:"native,omitempty"`
}

// CanonicalEntry is a catalog record plus the sites it is already linked from.
type CanonicalEntry struct {
	ID        int      `json:"id"`
	Titles    Titles   `json:"titles"`
	LinkSites []string `json:"link_sites,omitempty"`
}

// LinkedFrom reports whether the entry already has a link from site.
func (e CanonicalEntry) LinkedFrom(site string) bool {
	for _, s := range e.LinkSites {
		if s == site {
			return true
		}
	}
	return false
}

// Keyword returns the title used to search remote sites.
func (e CanonicalEntry) Keyword() string {
	if e.Titles.English != "" {
		return e.Titles.English
	}
	return e.Titles.Native
}

// CanonicalPage is one page of the local catalog.
type CanonicalPage struct {
	Items       []CanonicalEntry
	HasNextPage bool
}

// LinkType classifies an ExternalLink.
type LinkType string

// Supported link types.
const (
	LinkTypeStreaming LinkType = "STREAMING"
	LinkTypeInfo      LinkType = "INFO"
	LinkTypeSocial    LinkType = "SOCIAL"
)

// Valid reports whether t is a known link type.
func (t LinkType) Valid() bool {
	switch t {
	case LinkTypeStreaming, LinkTypeInfo, LinkTypeSocial:
		return true
	default:
		return false
	}
}

// ExternalLink is the persisted cross-reference between a canonical entry and
// a page on a remote site.
type ExternalLink struct {
	ID           int64     `json:"id"`
	CanonicalID  int       `json:"canonical_id"`
	RemotePath   string    `json:"remote_path"`
	SiteName     string    `json:"site"`
	LinkType     LinkType  `json:"type"`
	Language     string    `json:"language"`
	MatchScore   float64   `json:"score"`
	IsMatching   bool      `json:"is_matching"`
	MetadataJSON string    `json:"metadata,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditEvent records a candidate that could not be reconciled automatically.
type AuditEvent struct {
	RunID       string
	TS          time.Time
	SourceTag   string
	Note        string
	SubjectJSON string
	ErrorJSON   string
	SnapshotURI string
}

// Outcome is the terminal state of a single candidate.
type Outcome string

// Candidate outcomes.
const (
	OutcomeSkipped    Outcome = "skipped"
	OutcomeReconciled Outcome = "reconciled"
	OutcomeAudited    Outcome = "audited"
	OutcomeFailed     Outcome = "failed"
)

// Strategy names a reconciliation run type.
type Strategy string

// Supported strategies.
const (
	StrategySweep  Strategy = "sweep"
	StrategySearch Strategy = "search"
)
