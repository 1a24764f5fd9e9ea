// Package extract turns listing, search and detail pages into candidate
// records. All functions are pure transforms over parsed documents.
package extract

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-linker/internal/linker"
)

// Selectors holds the CSS selectors for each page shape.
type Selectors struct {
	ListingItem string
	SearchItem  string
	ItemTitle   string
	ItemLink    string

	DetailTitle     string
	DetailSubTitle  string
	DetailAirDate   string
	DetailEpisodes  string
	DetailImage     string
	PaginationPages string
}

// DefaultSelectors returns the selectors for the AnimeVSub theme.
func DefaultSelectors() Selectors {
	return Selectors{
		ListingItem:     ".mlnew",
		SearchItem:      ".TPostMv",
		ItemTitle:       ".Title",
		ItemLink:        "a[href]",
		DetailTitle:     ".Title",
		DetailSubTitle:  ".SubTitle",
		DetailAirDate:   ".Date.AAIco-date_range a",
		DetailEpisodes:  ".Time.AAIco-access_time",
		DetailImage:     ".Image img",
		PaginationPages: ".wp-pagenavi .pages",
	}
}

// Extractor reads candidates from documents served by one remote site.
type Extractor struct {
	sel    Selectors
	origin *url.URL
}

// New builds an Extractor. baseURL is the site origin stripped from hrefs.
func New(baseURL string, sel Selectors) (*Extractor, error) {
	origin, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	return &Extractor{sel: sel, origin: origin}, nil
}

// ListingStubs extracts candidates from a library listing page.
func (e *Extractor) ListingStubs(doc *goquery.Document) []linker.CandidateStub {
	return e.stubs(doc, e.sel.ListingItem)
}

// SearchStubs extracts candidates from a search results page.
func (e *Extractor) SearchStubs(doc *goquery.Document) []linker.CandidateStub {
	return e.stubs(doc, e.sel.SearchItem)
}

func (e *Extractor) stubs(doc *goquery.Document, itemSelector string) []linker.CandidateStub {
	if doc == nil {
		return nil
	}
	var out []linker.CandidateStub
	doc.Find(itemSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Find(e.sel.ItemLink).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		out = append(out, linker.CandidateStub{
			Title:      strings.TrimSpace(s.Find(e.sel.ItemTitle).First().Text()),
			RemotePath: e.NormalizePath(href),
		})
	})
	return out
}

// Detail extracts the candidate fields from a detail page. Missing fields are
// left empty.
func (e *Extractor) Detail(doc *goquery.Document, remotePath string) linker.CandidateDetail {
	detail := linker.CandidateDetail{RemotePath: remotePath}
	if doc == nil {
		return detail
	}
	detail.PrimaryTitle = firstText(doc, e.sel.DetailTitle)
	detail.AlternateTitle = firstText(doc, e.sel.DetailSubTitle)
	detail.AirDateText = firstText(doc, e.sel.DetailAirDate)
	detail.EpisodeText = firstText(doc, e.sel.DetailEpisodes)
	if src, ok := doc.Find(e.sel.DetailImage).First().Attr("src"); ok {
		detail.ImageURL = strings.TrimSpace(src)
	}
	return detail
}

// TotalPages reads the pagination marker. found is false when the page has no
// marker, which means a single page.
func (e *Extractor) TotalPages(doc *goquery.Document) (total int, found bool, err error) {
	if doc == nil {
		return 0, false, nil
	}
	marker := doc.Find(e.sel.PaginationPages).First()
	if marker.Length() == 0 {
		return 0, false, nil
	}
	fields := strings.Fields(marker.Text())
	if len(fields) == 0 {
		return 0, true, &linker.ParseError{What: "pagination marker", Err: errors.New("empty marker text")}
	}
	last := fields[len(fields)-1]
	n, convErr := strconv.Atoi(last)
	if convErr != nil {
		return 0, true, &linker.ParseError{What: "pagination marker", Err: convErr}
	}
	if n < 1 {
		return 0, true, &linker.ParseError{What: "pagination marker", Err: fmt.Errorf("page count %d", n)}
	}
	return n, true, nil
}

// NormalizePath strips the site origin from href so stored paths do not
// depend on which mirror served them.
func (e *Extractor) NormalizePath(href string) string {
	href = strings.TrimSpace(href)
	u, err := url.Parse(href)
	if err != nil || !u.IsAbs() {
		return href
	}
	if !strings.EqualFold(u.Host, e.origin.Host) {
		return href
	}
	out := u.EscapedPath()
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	if out == "" {
		out = "/"
	}
	return out
}

// URL joins a remote path onto the site origin.
func (e *Extractor) URL(remotePath string) string {
	if strings.HasPrefix(remotePath, "http://") || strings.HasPrefix(remotePath, "https://") {
		return remotePath
	}
	if !strings.HasPrefix(remotePath, "/") {
		remotePath = "/" + remotePath
	}
	return e.origin.String() + remotePath
}

func firstText(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}
