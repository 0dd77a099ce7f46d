package csvlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/magpie/internal/auditlog"
	"github.com/FranksOps/magpie/internal/status"
)

func TestCSVStore_AppendAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")

	s, err := New(path, nil)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	ctx := context.Background()
	score := 91.0
	entry := &auditlog.Entry{
		SKU:       "A1",
		Name:      "Red Mug",
		Score:     &score,
		URL:       "http://x/1.jpg",
		File:      "Red_Mug.jpg",
		Status:    status.Success,
		RunID:     "run-1",
		Timestamp: time.Now().UTC(),
	}
	if err := s.Append(ctx, entry); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A fresh store over the same file must see the prior run
	s2, err := New(path, nil)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer s2.Close()

	entries, err := s2.Entries(ctx)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.SKU != "A1" || got.Status != status.Success || got.URL != "http://x/1.jpg" {
		t.Errorf("unexpected entry: %+v", got)
	}
	if got.Score == nil || *got.Score != 91.0 {
		t.Errorf("expected score 91.0, got %v", got.Score)
	}
}

func TestCSVStore_Blocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	s, _ := New(path, nil)
	defer s.Close()

	ctx := context.Background()
	_ = s.Append(ctx, &auditlog.Entry{SKU: "OK1", Status: status.Success, Timestamp: time.Now()})
	_ = s.Append(ctx, &auditlog.Entry{SKU: "NF1", Status: status.NoImageFound, Timestamp: time.Now()})

	blocked, err := s.Blocked(ctx, "OK1", auditlog.ResumeSuccessOnly)
	if err != nil || !blocked {
		t.Errorf("success entry should block under success-only: %v %v", blocked, err)
	}

	blocked, _ = s.Blocked(ctx, "NF1", auditlog.ResumeSuccessOnly)
	if blocked {
		t.Error("No-Image-Found should not block under success-only")
	}

	blocked, _ = s.Blocked(ctx, "NF1", auditlog.ResumeAnyTerminal)
	if !blocked {
		t.Error("No-Image-Found should block under any-terminal")
	}

	blocked, _ = s.Blocked(ctx, "UNSEEN", auditlog.ResumeAnyTerminal)
	if blocked {
		t.Error("unknown SKU should never block")
	}
}

func TestCSVStore_SkipsCorruptRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	s, _ := New(path, nil)

	ctx := context.Background()
	_ = s.Append(ctx, &auditlog.Entry{SKU: "GOOD1", Status: status.Success, Timestamp: time.Now()})
	s.Close()

	// Corrupt the middle of the file by hand, then add a valid row after
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("opening for corruption: %v", err)
	}
	_, _ = f.WriteString("this,is\"broken\n")
	_, _ = f.WriteString("short,row\n")
	f.Close()

	s2, _ := New(path, nil)
	defer s2.Close()

	_ = s2.Append(ctx, &auditlog.Entry{SKU: "GOOD2", Status: status.NoImageFound, Timestamp: time.Now()})

	entries, err := s2.Entries(ctx)
	if err != nil {
		t.Fatalf("corrupt rows must not abort loading: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected the 2 valid entries, got %d", len(entries))
	}
	if entries[0].SKU != "GOOD1" || entries[1].SKU != "GOOD2" {
		t.Errorf("unexpected entries: %+v %+v", entries[0], entries[1])
	}
}

func TestCSVStore_LatestEntryWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	s, _ := New(path, nil)
	defer s.Close()

	ctx := context.Background()
	_ = s.Append(ctx, &auditlog.Entry{SKU: "R1", Status: status.Failed, Timestamp: time.Now()})
	_ = s.Append(ctx, &auditlog.Entry{SKU: "R1", Status: status.Success, Timestamp: time.Now()})

	blocked, err := s.Blocked(ctx, "R1", auditlog.ResumeSuccessOnly)
	if err != nil {
		t.Fatalf("blocked: %v", err)
	}
	if !blocked {
		t.Error("latest entry (Success) should determine resume behavior")
	}
}
