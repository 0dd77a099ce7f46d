// Package pacing provides randomized delays between outbound calls.
// Search providers ban clients that query on a fixed cadence, so every
// delay is drawn uniformly from a window rather than ticked at a rate.
package pacing

import (
	"context"
	"math/rand/v2"
	"time"
)

// Window is a randomized delay range. The zero value never blocks.
type Window struct {
	Min time.Duration
	Max time.Duration
}

// Default windows, matching the cadence the providers tolerate in
// long-running sessions.
var (
	// BeforeSearch paces consecutive engine queries.
	BeforeSearch = Window{Min: 2 * time.Second, Max: 5 * time.Second}
	// BeforeDownload paces image fetches after a search.
	BeforeDownload = Window{Min: 1 * time.Second, Max: 3 * time.Second}
	// BetweenItems paces item-to-item progression.
	BetweenItems = Window{Min: 3 * time.Second, Max: 7 * time.Second}
)

// Duration returns one randomized delay drawn from the window.
func (w Window) Duration() time.Duration {
	if w.Max <= 0 {
		return 0
	}
	if w.Max <= w.Min {
		return w.Min
	}
	return w.Min + rand.N(w.Max-w.Min)
}

// Sleep blocks for one randomized delay or until the context is
// canceled, in which case it returns the context's error.
func (w Window) Sleep(ctx context.Context) error {
	d := w.Duration()
	if d <= 0 {
		// Still honor cancellation even when not sleeping
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
