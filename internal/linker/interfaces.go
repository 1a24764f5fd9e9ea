package linker

import (
	"context"
	"io"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DocumentProvider loads a URL and returns a queryable document. Failures are
// reported as *FetchError.
type DocumentProvider interface {
	Load(ctx context.Context, url string) (*goquery.Document, error)
}

// CatalogRepository reads the canonical catalog.
type CatalogRepository interface {
	// FuzzySearchByTitle returns ranked candidates, best first.
	FuzzySearchByTitle(ctx context.Context, title string) ([]ScoredCandidate, error)
	FindByID(ctx context.Context, id int) (CanonicalEntry, bool, error)
	PageCanonicalEntries(ctx context.Context, page, size int) (CanonicalPage, error)
}

// LinkRepository persists external links.
type LinkRepository interface {
	ExistsByPath(ctx context.Context, remotePath string) (bool, error)
	Save(ctx context.Context, link ExternalLink) (ExternalLink, error)
}

// AuditSink accepts audit events. Record must never block.
type AuditSink interface {
	Record(evt AuditEvent)
}

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Hasher maps a remote path to a stable snapshot key.
type Hasher interface {
	Key(remotePath string) string
}

// Clock returns the current time and waits without ignoring cancellation.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
