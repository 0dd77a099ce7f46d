// Package pipeline drives a whole run: one worker walking the catalog
// in order, sourcing an image per item, persisting outcomes, and
// streaming status events to a single consumer.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/magpie/internal/auditlog"
	"github.com/FranksOps/magpie/internal/catalog"
	"github.com/FranksOps/magpie/internal/metrics"
	"github.com/FranksOps/magpie/internal/publish"
	"github.com/FranksOps/magpie/internal/sourcer"
	"github.com/FranksOps/magpie/internal/status"
	"github.com/FranksOps/magpie/pkg/pacing"
)

// Config wires a Runner.
type Config struct {
	Sourcer *sourcer.Sourcer
	Store   auditlog.Store
	Policy  auditlog.ResumePolicy

	// Publisher enables the remote-publish post-step when non-nil.
	Publisher *publish.Client

	// BetweenItems paces item-to-item progression. Zero means no delay.
	BetweenItems pacing.Window

	// RunID is stamped on every log entry. Generated when empty.
	RunID string

	// Buffer sizes the event channel. Zero means fully blocking, which
	// gives the consumer backpressure over the whole run.
	Buffer int

	Logger *slog.Logger
}

// Runner processes catalog items strictly sequentially.
type Runner struct {
	cfg    Config
	runID  string
	logger *slog.Logger
}

// New creates a Runner.
func New(cfg Config) *Runner {
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, runID: runID, logger: logger.With("run_id", runID)}
}

// RunID returns the identifier stamped on this runner's log entries.
func (r *Runner) RunID() string { return r.runID }

// Run processes items in order and returns the event channel. The
// channel is closed when the run finishes or the context is cancelled.
// Sends block until the consumer reads, so a slow consumer slows the
// run rather than piling up events.
//
// Each item is an atomic unit: its audit log entry is either fully
// written or absent, regardless of when cancellation lands.
func (r *Runner) Run(ctx context.Context, items []catalog.Item) <-chan status.Event {
	ch := make(chan status.Event, r.cfg.Buffer)

	go func() {
		defer close(ch)

		emit := func(ev status.Event) error {
			select {
			case ch <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		seen := make(map[string]bool, len(items))

		for _, item := range items {
			if ctx.Err() != nil {
				r.logger.Info("run cancelled", "sku", item.SKU)
				return
			}
			if r.processItem(ctx, item, seen, emit) != nil {
				return
			}
		}
	}()

	return ch
}

// processItem handles one catalog item end to end. A non-nil return
// means the run itself must stop; per-item failures are absorbed into
// the item's terminal status instead.
func (r *Runner) processItem(ctx context.Context, item catalog.Item, seen map[string]bool, emit sourcer.EmitFunc) error {
	if err := emit(status.Event{SKU: item.SKU, Name: item.Name, Status: status.Pending}); err != nil {
		return err
	}

	// Missing required fields never consume a search stage
	if item.SKU == "" || item.Name == "" {
		r.logger.Warn("item missing required fields", "sku", item.SKU, "name", item.Name)
		return r.finish(ctx, item, &sourcer.Result{
			Status:  status.Failed,
			Message: "Missing required SKU or Name",
		}, emit)
	}

	// Duplicate SKUs collapse to the first occurrence's outcome
	if seen[item.SKU] {
		metrics.RecordItem(string(status.SkippedDuplicate))
		return emit(status.Event{
			SKU:     item.SKU,
			Name:    item.Name,
			Status:  status.SkippedDuplicate,
			Message: "Duplicate SKU in input",
		})
	}
	seen[item.SKU] = true

	blocked, err := r.cfg.Store.Blocked(ctx, item.SKU, r.cfg.Policy)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("resume lookup failed, processing item anyway", "sku", item.SKU, "err", err)
	}
	if blocked {
		metrics.RecordItem(string(status.SkippedDuplicate))
		return emit(status.Event{
			SKU:     item.SKU,
			Name:    item.Name,
			Status:  status.SkippedDuplicate,
			Message: "Already processed in a previous run",
		})
	}

	res, err := r.cfg.Sourcer.Source(ctx, item.SKU, item.Name, emit)
	if err != nil {
		// Cancellation mid-item: nothing logged, nothing half-written
		return err
	}

	if r.cfg.Publisher != nil && res.Status == status.Success {
		final, err := r.cfg.Publisher.Publish(ctx, item.SKU, item.Name, res.Path, publish.EmitFunc(emit))
		if err != nil {
			return err
		}
		res.Status = final
	}

	if err := r.finish(ctx, item, res, emit); err != nil {
		return err
	}

	return r.cfg.BetweenItems.Sleep(ctx)
}

// finish durably records the terminal outcome, then reports it on the
// stream. Append happens first so a cancellation between the two never
// loses a recorded outcome.
func (r *Runner) finish(ctx context.Context, item catalog.Item, res *sourcer.Result, emit sourcer.EmitFunc) error {
	entry := &auditlog.Entry{
		SKU:       item.SKU,
		Name:      item.Name,
		URL:       res.URL,
		File:      res.File,
		Status:    res.Status,
		RunID:     r.runID,
		Timestamp: time.Now().UTC(),
	}
	if res.URL != "" {
		score := res.Score
		entry.Score = &score
	}

	if entry.SKU != "" {
		if err := r.cfg.Store.Append(ctx, entry); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The run continues; the stream still reports the outcome
			r.logger.Error("failed to append audit log entry", "sku", item.SKU, "err", err)
		}
	}

	metrics.RecordItem(string(res.Status))
	r.logger.Info("item finished", "sku", item.SKU, "status", res.Status, "file", res.File)

	return emit(status.Event{
		SKU:     item.SKU,
		Name:    item.Name,
		Status:  res.Status,
		Message: res.Message,
		Score:   int(res.Score),
		URL:     res.URL,
		File:    res.File,
	})
}
