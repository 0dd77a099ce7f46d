// Package engine implements clients for external image search providers.
package engine

import (
	"context"
	"errors"
)

// MaxResults caps the number of candidates parsed out of one query.
// Anything past the first few results is rarely a better match and just
// burns validation time.
const MaxResults = 5

// Candidate is one image search result: a URL plus the engine-provided
// caption. Candidates live only for the duration of one escalation
// attempt and are never persisted.
type Candidate struct {
	URL    string `json:"url"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

// Engine abstracts an external image search provider. A call issues a
// fresh network request and returns a finite, ordered result set. The
// only side effect is the outbound request itself.
//
// Recoverable failures are ErrRateLimited (provider denial) and plain
// wrapped network errors; neither is fatal to a run.
type Engine interface {
	// Name identifies the provider, e.g. "duckduckgo" or "bing".
	Name() string
	Search(ctx context.Context, query string) ([]Candidate, error)
}

// ErrRateLimited indicates the provider refused the query because we
// queried too often, e.g. a 403 block page or a captcha interstitial.
// The orchestrator reacts by escalating to the next stage immediately.
var ErrRateLimited = errors.New("rate limited by provider")

// IsRateLimited reports whether err (at any wrap depth) is a provider
// rate-limit denial.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
