package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/magpie/internal/auditlog"
	"github.com/FranksOps/magpie/internal/status"
)

// Summary contains aggregated metrics about one sourcing run.
type Summary struct {
	TotalItems   int
	Succeeded    int
	Failed       int
	NoImageFound int
	ByStatus     map[string]int
	SuccessRate  float64
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
}

// GenerateSummary aggregates audit log entries into a run summary.
func GenerateSummary(entries []*auditlog.Entry) Summary {
	s := Summary{
		ByStatus: make(map[string]int),
	}

	if len(entries) == 0 {
		return s
	}

	s.StartTime = entries[0].Timestamp
	s.EndTime = entries[0].Timestamp

	for _, e := range entries {
		s.TotalItems++
		s.ByStatus[string(e.Status)]++

		switch {
		case e.Status.TerminalSuccess():
			s.Succeeded++
		case e.Status == status.NoImageFound:
			s.NoImageFound++
		case e.Status == status.Failed:
			s.Failed++
		}

		if e.Timestamp.Before(s.StartTime) {
			s.StartTime = e.Timestamp
		}
		if e.Timestamp.After(s.EndTime) {
			s.EndTime = e.Timestamp
		}
	}

	s.Duration = s.EndTime.Sub(s.StartTime)
	s.SuccessRate = float64(s.Succeeded) / float64(s.TotalItems) * 100
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Magpie Run Summary
------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Total Items:   {{.TotalItems}}
Succeeded:     {{.Succeeded}} ({{printf "%.1f" .SuccessRate}}%)
No Image:      {{.NoImageFound}}
Failed:        {{.Failed}}

By Status:
{{- range $status, $count := .ByStatus}}
  {{$status}}: {{$count}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("rendering summary: %w", err)
	}

	return nil
}
