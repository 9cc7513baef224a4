package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	if r.err != nil {
		return r.err
	}
	r.titles = append(r.titles, title)
	return nil
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{s}, []string{domain.EventMarketResolved}, discardLogger())

	if err := n.Notify(context.Background(), domain.EventBetPlaced, "Bet placed", "x"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.titles) != 0 {
		t.Errorf("filtered event was delivered: %v", s.titles)
	}

	if err := n.Notify(context.Background(), domain.EventMarketResolved, "Market resolved", "x"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.titles) != 1 {
		t.Errorf("allowed event not delivered: %v", s.titles)
	}
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	s := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	if err := n.Notify(context.Background(), "anything", "t", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.titles) != 1 {
		t.Error("event should pass with an empty filter")
	}
}

func TestNotifyEventRendering(t *testing.T) {
	s := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	ev := domain.LedgerEvent{
		Type:       domain.EventMarketResolved,
		MarketID:   7,
		OutcomeYes: true,
		At:         time.Now(),
	}
	if err := n.NotifyEvent(context.Background(), ev); err != nil {
		t.Fatalf("NotifyEvent: %v", err)
	}
	if len(s.titles) != 1 || s.titles[0] != "Market resolved" {
		t.Errorf("titles = %v, want [Market resolved]", s.titles)
	}
}

func TestDispatchCollectsSenderErrors(t *testing.T) {
	ok := &recordingSender{name: "ok"}
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	n := NewNotifier([]Sender{bad, ok}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	if err == nil {
		t.Fatal("expected combined error")
	}
	if !strings.Contains(err.Error(), "bad: boom") {
		t.Errorf("error = %v, want sender name and cause", err)
	}
	if len(ok.titles) != 1 {
		t.Error("healthy sender should still receive the notification")
	}
}
