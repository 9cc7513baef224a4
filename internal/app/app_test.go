package app

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/wagerpool/internal/config"
)

// buildService must produce a working service even when Wire attached no
// optional infrastructure and every Dependencies field is its zero value.
// In particular a nil *notify.Notifier must never end up inside the
// service's Notifier interface, where it would slip past the nil check
// when events fire.
func TestBuildServiceWithEmptyDependencies(t *testing.T) {
	cfg := config.Defaults()
	cfg.Owner.Address = "0x00000000000000000000000000000000000000ff"

	a := New(&cfg, slog.New(slog.DiscardHandler))
	svc, err := a.buildService(&Dependencies{})
	if err != nil {
		t.Fatalf("buildService: %v", err)
	}

	// CreateMarket emits an event; with nothing wired this must simply
	// be a no-op.
	m, err := svc.CreateMarket(context.Background(), "Does it run bare?", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	if m.ID == 0 {
		t.Errorf("market ID = %d, want non-zero", m.ID)
	}
}
