// Package paginate walks paginated remote listings one page at a time with a
// fixed delay between fetches.
package paginate

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-linker/internal/linker"
	"github.com/JakeFAU/catalog-linker/internal/metrics"
)

// PageCounter reads the total page count from a listing's first page.
type PageCounter interface {
	TotalPages(doc *goquery.Document) (total int, found bool, err error)
}

// Sleeper waits for d unless ctx ends first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Listing describes one paginated sequence.
type Listing struct {
	// Kind labels metrics and logs, e.g. "library" or "search".
	Kind string
	URL  func(page int) string
	// FirstPage defaults to 1.
	FirstPage int
	// LastPage bounds the walk. Zero means read it from the first page.
	// A FirstPage past LastPage yields nothing.
	LastPage int
}

// Page is one fetched listing page.
type Page struct {
	Number int
	URL    string
	Doc    *goquery.Document
}

// Walker fetches listing pages sequentially.
type Walker struct {
	provider linker.DocumentProvider
	counter  PageCounter
	sleeper  Sleeper
	delay    time.Duration
	logger   *zap.Logger
}

// NewWalker constructs a Walker. delay is applied before every page after the first.
func NewWalker(provider linker.DocumentProvider, counter PageCounter, sleeper Sleeper, delay time.Duration, logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{
		provider: provider,
		counter:  counter,
		sleeper:  sleeper,
		delay:    delay,
		logger:   logger.Named("paginate"),
	}
}

// Pages returns a lazy, single-use sequence over the listing. The first
// error is yielded and ends the sequence.
func (w *Walker) Pages(ctx context.Context, listing Listing) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		first := listing.FirstPage
		if first < 1 {
			first = 1
		}
		if listing.LastPage > 0 && first > listing.LastPage {
			return
		}
		page, err := w.fetch(ctx, listing, first)
		if err != nil {
			yield(Page{Number: first, URL: page.URL}, err)
			return
		}
		last := listing.LastPage
		if last <= 0 {
			total, found, countErr := w.counter.TotalPages(page.Doc)
			if countErr != nil {
				yield(page, fmt.Errorf("page %d of %s: %w", first, listing.Kind, countErr))
				return
			}
			last = first
			if found {
				last = total
			}
		}
		if !yield(page, nil) {
			return
		}
		for n := first + 1; n <= last; n++ {
			if w.delay > 0 && w.sleeper != nil {
				if err := w.sleeper.Sleep(ctx, w.delay); err != nil {
					yield(Page{Number: n}, fmt.Errorf("wait before page %d: %w", n, err))
					return
				}
			}
			page, err := w.fetch(ctx, listing, n)
			if err != nil {
				yield(page, err)
				return
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

func (w *Walker) fetch(ctx context.Context, listing Listing, n int) (Page, error) {
	target := listing.URL(n)
	page := Page{Number: n, URL: target}
	if err := ctx.Err(); err != nil {
		return page, fmt.Errorf("fetch page %d: %w", n, err)
	}
	start := time.Now()
	doc, err := w.provider.Load(ctx, target)
	metrics.ObservePageFetch(listing.Kind, err == nil, time.Since(start))
	if err != nil {
		w.logger.Debug("listing page fetch failed",
			zap.String("kind", listing.Kind),
			zap.Int("page", n),
			zap.String("url", target),
			zap.Error(err),
		)
		return page, fmt.Errorf("fetch page %d: %w", n, err)
	}
	page.Doc = doc
	return page, nil
}
