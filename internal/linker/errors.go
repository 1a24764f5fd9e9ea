package linker

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMatch means no canonical entry scored above the acceptance threshold.
	ErrNoMatch = errors.New("no canonical match")
	// ErrDuplicateLink means a link for the remote path already exists.
	ErrDuplicateLink = errors.New("link already recorded")
	// ErrAlreadyLinked means the canonical entry already has a link from the site.
	ErrAlreadyLinked = errors.New("canonical entry already linked from site")
	// ErrEntryNotFound means the matched canonical id no longer resolves.
	ErrEntryNotFound = errors.New("canonical entry not found")
)

// FetchError reports a failed document load.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a page whose structure could not be read.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
