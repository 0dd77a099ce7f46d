// Package csvlog is the CSV-file audit log backend. The file doubles as
// the human-readable sourcing report, so columns stay plain text.
package csvlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/magpie/internal/auditlog"
	"github.com/FranksOps/magpie/internal/status"
)

// ensure csvStore implements auditlog.Store
var _ auditlog.Store = (*csvStore)(nil)

type csvStore struct {
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
}

// headers defines the CSV column order.
var headers = []string{
	"sku",
	"name",
	"score",
	"url",
	"file",
	"status",
	"run_id",
	"timestamp",
}

// New opens (or creates) a CSV audit log at filePath.
func New(filePath string, logger *slog.Logger) (auditlog.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("statting audit log: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	return &csvStore{file: f, logger: logger}, nil
}

func (s *csvStore) Append(ctx context.Context, entry *auditlog.Entry) error {
	score := ""
	if entry.Score != nil {
		score = strconv.FormatFloat(*entry.Score, 'f', 1, 64)
	}

	record := []string{
		entry.SKU,
		entry.Name,
		score,
		entry.URL,
		entry.File,
		string(entry.Status),
		entry.RunID,
		entry.Timestamp.Format(time.RFC3339Nano),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seeking audit log: %w", err)
	}

	w := csv.NewWriter(s.file)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("appending entry: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("appending entry: %w", err)
	}

	// The log is the resume source of truth, so every append hits disk
	return s.file.Sync()
}

func (s *csvStore) Blocked(ctx context.Context, sku string, policy auditlog.ResumePolicy) (bool, error) {
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

func (s *csvStore) Entries(ctx context.Context) ([]*auditlog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking audit log: %w", err)
	}
	defer func() {
		// Restore pointer to end for appending
		_, _ = s.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(s.file)
	r.FieldsPerRecord = -1

	// Header row
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return []*auditlog.Entry{}, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var entries []*auditlog.Entry
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				// One bad row must not poison the rest of the log
				s.logger.Warn("skipping corrupt audit log row", "line", parseErr.Line, "err", err)
				continue
			}
			return nil, fmt.Errorf("reading audit log: %w", err)
		}

		if len(record) != len(headers) || record[0] == "" {
			s.logger.Warn("skipping malformed audit log row", "fields", len(record))
			continue
		}

		entry := &auditlog.Entry{
			SKU:    record[0],
			Name:   record[1],
			URL:    record[3],
			File:   record[4],
			Status: status.Status(record[5]),
			RunID:  record[6],
		}
		if record[2] != "" {
			if score, err := strconv.ParseFloat(record[2], 64); err == nil {
				entry.Score = &score
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, record[7]); err == nil {
			entry.Timestamp = ts
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func (s *csvStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
