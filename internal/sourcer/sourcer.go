// Package sourcer runs the escalation state machine for a single
// catalog item: three fixed search stages, accept-on-first-valid, then
// download.
package sourcer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/magpie/internal/download"
	"github.com/FranksOps/magpie/internal/engine"
	"github.com/FranksOps/magpie/internal/match"
	"github.com/FranksOps/magpie/internal/metrics"
	"github.com/FranksOps/magpie/internal/status"
	"github.com/FranksOps/magpie/pkg/pacing"
)

// Result is the terminal outcome for one item: Success with the
// accepted candidate's details, or NoImageFound with nothing.
type Result struct {
	Status status.Status
	Score  float64
	URL    string
	// File is the saved filename relative to the output directory;
	// Path is its full on-disk location.
	File    string
	Path    string
	Message string
}

// EmitFunc delivers a status event to the caller. A non-nil return
// stops the sourcer immediately, which is how a cancelled consumer
// propagates back into the state machine.
type EmitFunc func(status.Event) error

// Config wires a Sourcer.
type Config struct {
	Primary  engine.Engine
	Fallback engine.Engine

	Downloader *download.Downloader

	// Pacing before each search and before each download. Zero windows
	// mean no delay, which tests rely on.
	BeforeSearch   pacing.Window
	BeforeDownload pacing.Window

	Logger *slog.Logger
}

// Sourcer finds and saves an image for one item at a time.
type Sourcer struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Sourcer.
func New(cfg Config) *Sourcer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sourcer{cfg: cfg, logger: logger}
}

// stage is one tier of the escalation ladder. The order is fixed:
// primary standard, fallback, primary broad.
type stage struct {
	engine engine.Engine
	query  string
	desc   string
}

func (s *Sourcer) stages(name, sku string) []stage {
	return []stage{
		{s.cfg.Primary, name + " " + sku + " product image", "primary (standard)"},
		{s.cfg.Fallback, name + " " + sku, "fallback"},
		{s.cfg.Primary, name + " product image", "primary (broad match)"},
	}
}

// Source runs the full escalation for one item. It returns the terminal
// Result, or an error only when the context was cancelled or emit
// refused an event; in that case no terminal outcome exists and the
// caller must not log one.
//
// Search failures, including rate limiting, escalate to the next stage.
// Download failures reject the candidate and move to the next one.
func (s *Sourcer) Source(ctx context.Context, sku, name string, emit EmitFunc) (*Result, error) {
	stages := s.stages(name, sku)

	for i, st := range stages {
		attempt := fmt.Sprintf("Attempt %d/%d: %s", i+1, len(stages), st.desc)
		if err := emit(status.Event{SKU: sku, Name: name, Status: status.Searching, Message: attempt}); err != nil {
			return nil, err
		}

		if err := s.cfg.BeforeSearch.Sleep(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		candidates, err := st.engine.Search(ctx, st.query)
		metrics.RecordSearch(st.engine.Name(), time.Since(start), err)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if engine.IsRateLimited(err) {
				s.logger.Warn("engine rate limited, escalating",
					"sku", sku, "engine", st.engine.Name(), "err", err)
			} else {
				s.logger.Warn("search failed, escalating",
					"sku", sku, "engine", st.engine.Name(), "err", err)
			}
			continue
		}
		if len(candidates) == 0 {
			s.logger.Info("no results for stage", "sku", sku, "stage", st.desc)
			continue
		}

		res, err := s.tryCandidates(ctx, sku, name, candidates, emit)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}

	return &Result{Status: status.NoImageFound, Message: "All attempts exhausted"}, nil
}

// tryCandidates validates candidates in result order and downloads the
// first accepted one. A nil, nil return means every candidate was
// rejected and the next stage should run.
func (s *Sourcer) tryCandidates(ctx context.Context, sku, name string, candidates []engine.Candidate, emit EmitFunc) (*Result, error) {
	for _, c := range candidates {
		if c.URL == "" || c.Title == "" {
			continue
		}

		v := match.Validate(c.Title, name)
		if !v.Accepted {
			continue
		}

		ev := status.Event{
			SKU:     sku,
			Name:    name,
			Status:  status.Downloading,
			Message: fmt.Sprintf("Downloading (Score: %.0f%%)", v.Score),
			Score:   int(v.Score),
			URL:     c.URL,
		}
		if err := emit(ev); err != nil {
			return nil, err
		}

		if err := s.cfg.BeforeDownload.Sleep(ctx); err != nil {
			return nil, err
		}

		file, err := s.cfg.Downloader.Fetch(ctx, c.URL, name, sku)
		metrics.RecordDownload(err)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Candidate rejection, try the next result
			s.logger.Warn("download failed", "sku", sku, "url", c.URL, "err", err)
			continue
		}

		return &Result{
			Status:  status.Success,
			Score:   v.Score,
			URL:     c.URL,
			File:    file,
			Path:    s.cfg.Downloader.Path(file),
			Message: fmt.Sprintf("Saved %s", file),
		}, nil
	}

	return nil, nil
}
