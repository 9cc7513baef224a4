package ws

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

// stubBus is an in-memory SignalBus feeding a fixed channel.
type stubBus struct {
	ch chan []byte
}

func (b *stubBus) Publish(context.Context, string, []byte) error { return nil }

func (b *stubBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}

func TestSubscribeToBusForwards(t *testing.T) {
	bus := &stubBus{ch: make(chan []byte, 1)}
	h := NewHub(bus, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.subscribeToBus(ctx)

	bus.ch <- []byte(`{"type":"bet_placed"}`)

	select {
	case got := <-h.broadcast:
		if string(got) != `{"type":"bet_placed"}` {
			t.Errorf("forwarded payload = %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not forwarded to the broadcast channel")
	}
}

func TestSubscribeToBusStopsOnCancel(t *testing.T) {
	// Feed more events than the broadcast buffer holds, with nothing
	// draining it, then cancel. The forwarder must exit instead of
	// blocking on the full channel forever.
	bus := &stubBus{ch: make(chan []byte, 512)}
	h := NewHub(bus, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.subscribeToBus(ctx)
		close(done)
	}()

	for range 300 {
		bus.ch <- []byte(`{"type":"bet_placed"}`)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber goroutine did not exit after cancellation")
	}
}
