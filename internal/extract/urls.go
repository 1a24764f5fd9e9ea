package extract

import (
	"fmt"
	"net/url"
)

// LibraryURL returns the listing page for a library section.
func (e *Extractor) LibraryURL(section string, page int) string {
	return fmt.Sprintf("%s/anime/library/%s/trang-%d.html", e.origin.String(), url.PathEscape(section), page)
}

// SearchURL returns a search results page. The first page has no page suffix.
func (e *Extractor) SearchURL(keyword string, page int) string {
	base := fmt.Sprintf("%s/tim-kiem/%s/", e.origin.String(), url.PathEscape(keyword))
	if page <= 1 {
		return base
	}
	return fmt.Sprintf("%strang-%d.html", base, page)
}
