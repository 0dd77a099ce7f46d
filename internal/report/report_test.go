package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/magpie/internal/auditlog"
	"github.com/FranksOps/magpie/internal/status"
)

func TestGenerateSummary(t *testing.T) {
	now := time.Now()

	entries := []*auditlog.Entry{
		{SKU: "A1", Status: status.Success, Timestamp: now},
		{SKU: "A2", Status: status.Assigned, Timestamp: now.Add(1 * time.Minute)},
		{SKU: "A3", Status: status.NoImageFound, Timestamp: now.Add(2 * time.Minute)},
		{SKU: "A4", Status: status.Failed, Timestamp: now.Add(3 * time.Minute)},
	}

	summary := GenerateSummary(entries)

	if summary.TotalItems != 4 {
		t.Errorf("expected 4 total items, got %d", summary.TotalItems)
	}
	if summary.Succeeded != 2 {
		t.Errorf("expected 2 succeeded, got %d", summary.Succeeded)
	}
	if summary.NoImageFound != 1 {
		t.Errorf("expected 1 no-image, got %d", summary.NoImageFound)
	}
	if summary.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", summary.Failed)
	}
	if summary.ByStatus["Success"] != 1 {
		t.Errorf("expected 1 Success in ByStatus, got %d", summary.ByStatus["Success"])
	}
	if summary.SuccessRate != 50 {
		t.Errorf("expected 50%% success rate, got %.1f", summary.SuccessRate)
	}
	if summary.Duration != 3*time.Minute {
		t.Errorf("expected 3m duration, got %v", summary.Duration)
	}
}

func TestGenerateSummaryEmpty(t *testing.T) {
	summary := GenerateSummary(nil)
	if summary.TotalItems != 0 || summary.SuccessRate != 0 {
		t.Errorf("unexpected summary for empty input: %+v", summary)
	}
}

func TestWriteText(t *testing.T) {
	now := time.Now()
	summary := GenerateSummary([]*auditlog.Entry{
		{SKU: "A1", Status: status.Success, Timestamp: now},
		{SKU: "A2", Status: status.NoImageFound, Timestamp: now},
	})

	var buf bytes.Buffer
	if err := WriteText(&buf, summary); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Total Items:   2") {
		t.Errorf("missing item count in:\n%s", out)
	}
	if !strings.Contains(out, "Success: 1") {
		t.Errorf("missing status breakdown in:\n%s", out)
	}
	if !strings.Contains(out, "50.0%") {
		t.Errorf("missing success rate in:\n%s", out)
	}
}

func TestWriteJSON(t *testing.T) {
	summary := GenerateSummary([]*auditlog.Entry{
		{SKU: "A1", Status: status.Success, Timestamp: time.Now()},
	})

	var buf bytes.Buffer
	if err := WriteJSON(&buf, summary); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if !strings.Contains(buf.String(), `"TotalItems": 1`) {
		t.Errorf("unexpected JSON output:\n%s", buf.String())
	}
}
