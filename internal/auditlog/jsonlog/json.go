// Package jsonlog is the NDJSON audit log backend: one JSON entry per
// line, appended as outcomes arrive.
package jsonlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/FranksOps/magpie/internal/auditlog"
)

// ensure jsonStore implements auditlog.Store
var _ auditlog.Store = (*jsonStore)(nil)

type jsonStore struct {
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
}

// New opens (or creates) an NDJSON audit log at filePath.
func New(filePath string, logger *slog.Logger) (auditlog.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	return &jsonStore{file: f, logger: logger}, nil
}

func (s *jsonStore) Append(ctx context.Context, entry *auditlog.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending entry: %w", err)
	}
	return s.file.Sync()
}

func (s *jsonStore) Blocked(ctx context.Context, sku string, policy auditlog.ResumePolicy) (bool, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return false, err
	}

	latest := auditlog.Latest(entries)
	e, ok := latest[sku]
	if !ok {
		return false, nil
	}
	return policy.Blocks(e.Status), nil
}

func (s *jsonStore) Entries(ctx context.Context) ([]*auditlog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking audit log: %w", err)
	}
	defer func() {
		_, _ = s.file.Seek(0, io.SeekEnd)
	}()

	var entries []*auditlog.Entry
	scanner := bufio.NewScanner(s.file)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var e auditlog.Entry
		if err := json.Unmarshal(raw, &e); err != nil || e.SKU == "" {
			// One bad line must not poison the rest of the log
			s.logger.Warn("skipping corrupt audit log line", "line", line, "err", err)
			continue
		}
		entries = append(entries, &e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}

	return entries, nil
}

func (s *jsonStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
