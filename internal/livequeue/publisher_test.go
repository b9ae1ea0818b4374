package livequeue

import (
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/netprobe/fleet/internal/bwarbiter"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.URL != nats.DefaultURL {
		t.Errorf("expected default URL %s, got %s", nats.DefaultURL, config.URL)
	}
	if config.StreamRetention != defaultStreamRetention {
		t.Errorf("expected default retention %v, got %v", defaultStreamRetention, config.StreamRetention)
	}
}

// TestPublisher_PublishStatus requires a running NATS server; it's
// skipped when one isn't reachable rather than failing the suite.
func TestPublisher_PublishStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	config := DefaultConfig()
	config.URL = "nats://localhost:4222"

	pub, err := New(config)
	if err != nil {
		t.Skipf("NATS server not available: %v", err)
	}
	defer pub.Close()

	agentID := "agent-1"
	status := bwarbiter.Status{
		CurrentAgentID: &agentID,
		ElapsedSeconds: 5,
		QueuedAgentIDs: []string{"agent-2", "agent-3"},
	}
	if err := pub.Publish(status); err != nil {
		t.Fatalf("publish: %v", err)
	}
}
