package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/netprobe/fleet/internal/localstore"
	"github.com/netprobe/fleet/internal/models"
)

func openTestStore(t *testing.T) *localstore.Store {
	t.Helper()
	store, err := localstore.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize store: %v", err)
	}
	return store
}

func TestFlushWindowRollsClosedWindowIntoAggregate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	periodStart := uint64(120)
	rtt := 12.5
	for i := uint64(0); i < 3; i++ {
		sample := models.RawPingSample{
			SampleBase: models.SampleBase{
				TaskName:  "ping-example",
				Timestamp: periodStart + i,
				Success:   true,
			},
			RttMs:     &rtt,
			IPAddress: "192.0.2.1",
		}
		if _, err := store.InsertPingRaw(ctx, sample); err != nil {
			t.Fatalf("insert ping raw: %v", err)
		}
	}

	agg := New(store, time.Second)
	agg.ctx = ctx
	now := periodStart + models.WindowSeconds + 1
	windows, err := store.ListClosedWindows(ctx, now)
	if err != nil {
		t.Fatalf("list closed windows: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 closed window, got %d", len(windows))
	}

	agg.flushWindow(windows[0])

	remaining, err := store.ListClosedWindows(ctx, now)
	if err != nil {
		t.Fatalf("list closed windows after flush: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected window to be consumed by flush, got %d remaining", len(remaining))
	}
}

func TestFlushOnceIsNoopWithoutClosedWindows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	agg := New(store, time.Second)
	agg.ctx = ctx

	agg.flushOnce() // must not panic or block with an empty store
}
