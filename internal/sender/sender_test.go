package sender

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/netprobe/fleet/internal/localstore"
	"github.com/netprobe/fleet/internal/models"
	"github.com/netprobe/fleet/internal/wire"
)

func seedOneQueuedPingAggregate(t *testing.T, store *localstore.Store) {
	t.Helper()
	ctx := context.Background()
	rtt := 9.0
	sample := models.RawPingSample{
		SampleBase: models.SampleBase{TaskName: "ping-example", Timestamp: 60, Success: true},
		RttMs:      &rtt,
		IPAddress:  "192.0.2.1",
	}
	if _, err := store.InsertPingRaw(ctx, sample); err != nil {
		t.Fatalf("insert ping raw: %v", err)
	}
	windows, err := store.ListClosedWindows(ctx, 121)
	if err != nil {
		t.Fatalf("list closed windows: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 closed window, got %d", len(windows))
	}
	if err := store.AggregateWindow(ctx, windows[0]); err != nil {
		t.Fatalf("aggregate window: %v", err)
	}
}

func newTestStore(t *testing.T) *localstore.Store {
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

type staleNotifier struct{ notified chan struct{} }

func (n *staleNotifier) ConfigStale() { close(n.notified) }

func TestSenderDeliversQueuedBatchAndMarksSent(t *testing.T) {
	store := newTestStore(t)
	seedOneQueuedPingAggregate(t, store)

	var gotReq wire.MetricsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(wire.HeaderAPIKey) != "test-key" {
			t.Errorf("expected api key header, got %q", r.Header.Get(wire.HeaderAPIKey))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wire.UpToDateMetricsResponse())
	}))
	defer srv.Close()

	tasks := []models.TaskConfig{{Name: "ping-example", Type: models.TaskPing}}
	notifier := &staleNotifier{notified: make(chan struct{})}
	s := New(store, tasks, func() string { return "checksum-1" }, notifier, Config{
		ServerURL: srv.URL,
		AgentID:   "agent-1",
		APIKey:    "test-key",
	})
	s.ctx = context.Background()

	if !s.drainOnce() {
		t.Fatalf("expected drainOnce to report work was found")
	}
	if len(gotReq.Metrics) != 1 {
		t.Fatalf("expected 1 metric delivered, got %d", len(gotReq.Metrics))
	}
	if gotReq.AgentID != "agent-1" {
		t.Errorf("expected agent_id agent-1, got %q", gotReq.AgentID)
	}

	entries, err := store.TakeBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("take batch: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no pending entries after a successful send, got %d", len(entries))
	}
}

func TestSenderNotifiesOnStaleConfig(t *testing.T) {
	store := newTestStore(t)
	seedOneQueuedPingAggregate(t, store)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wire.StaleMetricsResponse())
	}))
	defer srv.Close()

	tasks := []models.TaskConfig{{Name: "ping-example", Type: models.TaskPing}}
	notifier := &staleNotifier{notified: make(chan struct{})}
	s := New(store, tasks, func() string { return "checksum-1" }, notifier, Config{
		ServerURL: srv.URL,
		AgentID:   "agent-1",
		APIKey:    "test-key",
	})
	s.ctx = context.Background()
	s.drainOnce()

	select {
	case <-notifier.notified:
	case <-time.After(time.Second):
		t.Fatal("expected ConfigStale to be called")
	}
}

func TestSenderRetriesOnServerError(t *testing.T) {
	store := newTestStore(t)
	seedOneQueuedPingAggregate(t, store)

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wire.UpToDateMetricsResponse())
	}))
	defer srv.Close()

	tasks := []models.TaskConfig{{Name: "ping-example", Type: models.TaskPing}}
	s := New(store, tasks, func() string { return "c" }, &staleNotifier{notified: make(chan struct{})}, Config{
		ServerURL:   srv.URL,
		AgentID:     "agent-1",
		APIKey:      "test-key",
		BackoffBase: 10 * time.Millisecond,
		BackoffMax:  20 * time.Millisecond,
	})
	s.ctx = context.Background()

	if !s.drainOnce() {
		t.Fatal("expected drainOnce to report work was found")
	}
	if calls < 2 {
		t.Fatalf("expected at least one retry, got %d calls", calls)
	}
}
