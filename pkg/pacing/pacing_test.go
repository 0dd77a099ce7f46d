package pacing

import (
	"context"
	"testing"
	"time"
)

func TestWindow_ZeroNeverBlocks(t *testing.T) {
	var w Window

	start := time.Now()
	if err := w.Sleep(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("zero window should not block")
	}
}

func TestWindow_DurationWithinRange(t *testing.T) {
	w := Window{Min: 10 * time.Millisecond, Max: 50 * time.Millisecond}

	for i := 0; i < 100; i++ {
		d := w.Duration()
		if d < w.Min || d >= w.Max {
			t.Fatalf("duration %v outside [%v, %v)", d, w.Min, w.Max)
		}
	}
}

func TestWindow_Sleep(t *testing.T) {
	w := Window{Min: 20 * time.Millisecond, Max: 40 * time.Millisecond}

	start := time.Now()
	if err := w.Sleep(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("expected at least ~20ms sleep, got %v", elapsed)
	}
}

func TestWindow_SleepCancellation(t *testing.T) {
	w := Window{Min: 5 * time.Second, Max: 10 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := w.Sleep(ctx)
	if err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Errorf("cancellation should interrupt the sleep promptly")
	}
}

func TestWindow_CanceledContextWithZeroWindow(t *testing.T) {
	var w Window

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.Sleep(ctx); err == nil {
		t.Fatal("expected error from already-canceled context")
	}
}
