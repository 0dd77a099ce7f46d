package proxy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPool_EmptyReturnsNil(t *testing.T) {
	p := NewPool(Config{})
	if p.Next() != nil {
		t.Error("expected nil from empty pool")
	}
}

func TestPool_Rotation(t *testing.T) {
	p := NewPool(Config{})
	if err := p.Add("http://p1:8080", "http://p2:8080"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := p.Next()
	second := p.Next()
	third := p.Next()

	if first == nil || second == nil || third == nil {
		t.Fatal("expected proxies from the pool")
	}
	if first.String() == second.String() {
		t.Error("expected rotation between proxies")
	}
	if first.String() != third.String() {
		t.Error("expected rotation to wrap around")
	}
}

func TestPool_CooldownAfterFailures(t *testing.T) {
	p := NewPool(Config{MaxFailures: 2, Cooldown: 50 * time.Millisecond})
	if err := p.Add("http://flaky:8080"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u := p.Next()
	_ = p.MarkFailure(u)
	_ = p.MarkFailure(u)

	if p.Next() != nil {
		t.Error("expected proxy to be cooling down")
	}

	time.Sleep(60 * time.Millisecond)
	if p.Next() == nil {
		t.Error("expected proxy to be revived after cooldown")
	}
}

func TestPool_MarkSuccessDecrementsFailures(t *testing.T) {
	p := NewPool(Config{MaxFailures: 2, Cooldown: time.Minute})
	if err := p.Add("http://p:8080"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u := p.Next()
	_ = p.MarkFailure(u)
	_ = p.MarkSuccess(u)
	_ = p.MarkFailure(u)

	// One failure, one success, one failure: still below the threshold.
	if p.Next() == nil {
		t.Error("proxy should still be healthy")
	}
}

func TestPool_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := "# comment\nhttp://a:1080\n\nb:1080\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	p := NewPool(Config{})
	if err := p.LoadFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u := p.Next()
	if u == nil {
		t.Fatal("expected proxies loaded from file")
	}
	// Scheme default applies to bare host:port lines
	if p.Next().Scheme != "http" {
		t.Error("expected http scheme default")
	}
}
