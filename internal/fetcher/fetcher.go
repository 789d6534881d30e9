// Package fetcher is the HTTP transport behind the crawl engine. It rate
// limits per host, retries transient failures, recognizes anti-bot pages,
// honours robots.txt on request and decodes pages to UTF-8 before parsing.
package fetcher

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrDisallowed is returned for URLs robots.txt forbids.
var ErrDisallowed = eris.New("fetcher: disallowed by robots.txt")

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: status %d from %s", e.StatusCode, e.URL)
}

// BlockedError reports a response that looks like an anti-bot wall rather
// than the requested page.
type BlockedError struct {
	URL        string
	StatusCode int
	Type       BlockType
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("fetcher: blocked (%s, status %d) at %s", e.Type, e.StatusCode, e.URL)
}
