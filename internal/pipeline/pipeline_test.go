package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/magpie/internal/auditlog"
	"github.com/FranksOps/magpie/internal/auditlog/csvlog"
	"github.com/FranksOps/magpie/internal/catalog"
	"github.com/FranksOps/magpie/internal/download"
	"github.com/FranksOps/magpie/internal/engine"
	"github.com/FranksOps/magpie/internal/sourcer"
	"github.com/FranksOps/magpie/internal/status"
)

// fakeEngine delegates to a closure and counts calls.
type fakeEngine struct {
	name   string
	calls  int
	search func(ctx context.Context, query string) ([]engine.Candidate, error)
}

var _ engine.Engine = (*fakeEngine)(nil)

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Search(ctx context.Context, query string) ([]engine.Candidate, error) {
	f.calls++
	if f.search == nil {
		return nil, nil
	}
	return f.search(ctx, query)
}

func noResults(context.Context, string) ([]engine.Candidate, error) { return nil, nil }

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{B: 220, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testStore(t *testing.T) auditlog.Store {
	t.Helper()
	s, err := csvlog.New(filepath.Join(t.TempDir(), "audit.csv"), nil)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRunner(t *testing.T, store auditlog.Store, primary, fallback engine.Engine) *Runner {
	t.Helper()
	dl, err := download.New(download.Config{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("creating downloader: %v", err)
	}
	src := sourcer.New(sourcer.Config{
		Primary:    primary,
		Fallback:   fallback,
		Downloader: dl,
	})
	return New(Config{
		Sourcer: src,
		Store:   store,
		Policy:  auditlog.ResumeSuccessOnly,
	})
}

func drain(ch <-chan status.Event) []status.Event {
	var evs []status.Event
	for ev := range ch {
		evs = append(evs, ev)
	}
	return evs
}

func statuses(evs []status.Event) []status.Status {
	var sts []status.Status
	for _, ev := range evs {
		sts = append(sts, ev.Status)
	}
	return sts
}

func TestEndToEndSuccess(t *testing.T) {
	srv := imageServer(t)

	primary := &fakeEngine{name: "primary", search: func(context.Context, string) ([]engine.Candidate, error) {
		return []engine.Candidate{{URL: srv.URL + "/1.jpg", Title: "Red Mug Coffee Cup", Source: "primary"}}, nil
	}}
	fallback := &fakeEngine{name: "fallback", search: noResults}

	store := testStore(t)
	r := testRunner(t, store, primary, fallback)

	events := drain(r.Run(context.Background(), []catalog.Item{{SKU: "A1", Name: "Red Mug"}}))

	got := statuses(events)
	want := []status.Status{status.Pending, status.Searching, status.Downloading, status.Success}
	if len(got) != len(want) {
		t.Fatalf("got events %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got events %v, want %v", got, want)
		}
	}

	final := events[len(events)-1]
	if final.URL != srv.URL+"/1.jpg" || final.File == "" || final.Score < 80 {
		t.Errorf("unexpected terminal event: %+v", final)
	}

	entries, err := store.Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	e := entries[0]
	if e.SKU != "A1" || e.Status != status.Success || e.URL != srv.URL+"/1.jpg" {
		t.Errorf("unexpected log entry: %+v", e)
	}
	if e.Score == nil || *e.Score < 80 {
		t.Errorf("log entry missing score: %+v", e.Score)
	}
	if e.RunID != r.RunID() {
		t.Errorf("entry run ID %q, want %q", e.RunID, r.RunID())
	}
}

func TestResumeSkipsWithoutNetworkCalls(t *testing.T) {
	store := testStore(t)
	score := 95.0
	err := store.Append(context.Background(), &auditlog.Entry{
		SKU:       "A1",
		Name:      "Red Mug",
		Score:     &score,
		Status:    status.Success,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	primary := &fakeEngine{name: "primary", search: noResults}
	fallback := &fakeEngine{name: "fallback", search: noResults}
	r := testRunner(t, store, primary, fallback)

	events := drain(r.Run(context.Background(), []catalog.Item{{SKU: "A1", Name: "Red Mug"}}))

	got := statuses(events)
	want := []status.Status{status.Pending, status.SkippedDuplicate}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got events %v, want %v", got, want)
	}

	if primary.calls != 0 || fallback.calls != 0 {
		t.Errorf("skipped item issued network calls: primary=%d fallback=%d", primary.calls, fallback.calls)
	}

	entries, _ := store.Entries(context.Background())
	if len(entries) != 1 {
		t.Errorf("skip appended a new entry, got %d", len(entries))
	}
}

func TestFailedEntryRetriedUnderSuccessOnlyPolicy(t *testing.T) {
	store := testStore(t)
	err := store.Append(context.Background(), &auditlog.Entry{
		SKU:       "A1",
		Name:      "Red Mug",
		Status:    status.Failed,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	primary := &fakeEngine{name: "primary", search: noResults}
	fallback := &fakeEngine{name: "fallback", search: noResults}
	r := testRunner(t, store, primary, fallback)

	drain(r.Run(context.Background(), []catalog.Item{{SKU: "A1", Name: "Red Mug"}}))

	if primary.calls == 0 {
		t.Error("prior Failed entry blocked reprocessing under success-only policy")
	}
}

func TestCancellationMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// Item one exhausts all stages, item two's first search cancels the
	// run, item three must never surface.
	items := []catalog.Item{
		{SKU: "A1", Name: "Red Mug"},
		{SKU: "A2", Name: "Blue Plate"},
		{SKU: "A3", Name: "Green Bowl"},
	}

	primary := &fakeEngine{name: "primary"}
	primary.search = func(c context.Context, q string) ([]engine.Candidate, error) {
		if primary.calls > 2 { // item two's S1
			cancel()
			return nil, c.Err()
		}
		return nil, nil
	}
	fallback := &fakeEngine{name: "fallback", search: noResults}

	store := testStore(t)
	r := testRunner(t, store, primary, fallback)

	events := drain(r.Run(ctx, items))

	entries, err := store.Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d log entries after cancellation, want exactly 1", len(entries))
	}
	if entries[0].SKU != "A1" || entries[0].Status != status.NoImageFound {
		t.Errorf("unexpected surviving entry: %+v", entries[0])
	}

	for _, ev := range events {
		if ev.SKU == "A3" {
			t.Errorf("event emitted for item beyond the cancellation point: %+v", ev)
		}
		if ev.SKU == "A2" && ev.Status.Terminal() {
			t.Errorf("cancelled in-flight item got a terminal event: %+v", ev)
		}
	}
}

func TestDuplicateSKUsCollapse(t *testing.T) {
	primary := &fakeEngine{name: "primary", search: noResults}
	fallback := &fakeEngine{name: "fallback", search: noResults}

	store := testStore(t)
	r := testRunner(t, store, primary, fallback)

	items := []catalog.Item{
		{SKU: "A1", Name: "Red Mug"},
		{SKU: "A1", Name: "Red Mug"},
	}
	events := drain(r.Run(context.Background(), items))

	entries, _ := store.Entries(context.Background())
	if len(entries) != 1 {
		t.Fatalf("got %d log entries for duplicate SKUs, want 1", len(entries))
	}

	// First occurrence runs all 3 stages; the duplicate must add none
	if primary.calls != 2 || fallback.calls != 1 {
		t.Errorf("duplicate occurrence issued searches: primary=%d fallback=%d", primary.calls, fallback.calls)
	}

	last := events[len(events)-1]
	if last.Status != status.SkippedDuplicate {
		t.Errorf("duplicate occurrence ended with %s, want Skipped-Duplicate", last.Status)
	}
}

func TestMissingFieldsFailImmediately(t *testing.T) {
	primary := &fakeEngine{name: "primary", search: noResults}
	fallback := &fakeEngine{name: "fallback", search: noResults}

	store := testStore(t)
	r := testRunner(t, store, primary, fallback)

	items := []catalog.Item{
		{SKU: "A1", Name: ""},
		{SKU: "A2", Name: "Blue Plate"},
	}
	events := drain(r.Run(context.Background(), items))

	// The invalid item consumed no search stage
	if primary.calls != 2 || fallback.calls != 1 {
		t.Errorf("invalid item consumed stages: primary=%d fallback=%d", primary.calls, fallback.calls)
	}

	var a1Terminal status.Status
	for _, ev := range events {
		if ev.SKU == "A1" && ev.Status.Terminal() {
			a1Terminal = ev.Status
		}
	}
	if a1Terminal != status.Failed {
		t.Errorf("invalid item ended with %q, want Failed", a1Terminal)
	}

	// Processing continued with the next item
	entries, _ := store.Entries(context.Background())
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want Failed + No-Image-Found", len(entries))
	}
}

func TestNoImageFoundRecordsNoURL(t *testing.T) {
	primary := &fakeEngine{name: "primary", search: noResults}
	fallback := &fakeEngine{name: "fallback", search: noResults}

	store := testStore(t)
	r := testRunner(t, store, primary, fallback)

	drain(r.Run(context.Background(), []catalog.Item{{SKU: "A1", Name: "Red Mug"}}))

	entries, _ := store.Entries(context.Background())
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Status != status.NoImageFound {
		t.Errorf("got status %s, want No-Image-Found", entries[0].Status)
	}
	if entries[0].URL != "" || entries[0].Score != nil {
		t.Errorf("exhausted item recorded candidate details: %+v", entries[0])
	}
}
