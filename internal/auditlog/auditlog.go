// Package auditlog persists one terminal outcome per SKU, giving the
// pipeline resume semantics across runs.
package auditlog

import (
	"context"
	"time"

	"github.com/FranksOps/magpie/internal/status"
)

// Entry is one terminal outcome for a SKU. Score and URL are only set
// when a candidate was accepted; File is the saved filename relative to
// the output directory.
type Entry struct {
	SKU       string        `json:"sku"`
	Name      string        `json:"name,omitempty"`
	Score     *float64      `json:"score,omitempty"`
	URL       string        `json:"url,omitempty"`
	File      string        `json:"file,omitempty"`
	Status    status.Status `json:"status"`
	RunID     string        `json:"run_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ResumePolicy decides which prior outcomes block reprocessing.
type ResumePolicy string

const (
	// ResumeSuccessOnly blocks only SKUs whose prior run succeeded;
	// Failed and No-Image-Found rows are retried on the next run.
	ResumeSuccessOnly ResumePolicy = "success-only"
	// ResumeAnyTerminal blocks every SKU with a prior terminal row.
	ResumeAnyTerminal ResumePolicy = "any-terminal"
)

// Blocks reports whether a prior entry with status s prevents
// reprocessing under this policy.
func (p ResumePolicy) Blocks(s status.Status) bool {
	if p == ResumeAnyTerminal {
		return s.Terminal()
	}
	return s.TerminalSuccess()
}

// Store is an append-only audit log keyed by SKU. A single pipeline
// instance is the only writer; concurrent pipelines against one store
// are the caller's problem to prevent. Implementations must survive
// process restarts and must skip (not fail on) individually corrupt
// rows when reading.
type Store interface {
	// Append durably records a terminal outcome.
	Append(ctx context.Context, entry *Entry) error
	// Blocked reports whether the SKU's latest prior entry blocks
	// reprocessing under the policy.
	Blocked(ctx context.Context, sku string, policy ResumePolicy) (bool, error)
	// Entries returns all readable entries in append order.
	Entries(ctx context.Context) ([]*Entry, error)
	Close() error
}

// Latest reduces a slice of entries to the last entry per SKU,
// preserving nothing about order. Shared by the file-backed stores,
// whose reads replay the whole log.
func Latest(entries []*Entry) map[string]*Entry {
	latest := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		latest[e.SKU] = e
	}
	return latest
}
