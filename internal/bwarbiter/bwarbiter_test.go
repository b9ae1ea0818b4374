package bwarbiter

import (
	"testing"

	"github.com/netprobe/fleet/internal/wire"
)

func TestSingleTestProceeds(t *testing.T) {
	m := New(120, 300, 30, 60, 30)

	resp := m.RequestTest("agent1", 1024*1024)
	if resp.Action != wire.BandwidthProceed {
		t.Fatalf("expected Proceed, got %v", resp.Action)
	}
	if resp.DataSizeBytes == nil {
		t.Fatal("expected data_size_bytes to be set")
	}

	status := m.GetStatus()
	if status.CurrentAgentID == nil {
		t.Fatal("expected a current test")
	}
}

func TestConcurrentRequestDelays(t *testing.T) {
	m := New(120, 300, 30, 60, 30)

	resp1 := m.RequestTest("agent1", 1024*1024)
	if resp1.Action != wire.BandwidthProceed {
		t.Fatalf("expected agent1 to proceed, got %v", resp1.Action)
	}

	resp2 := m.RequestTest("agent2", 1024*1024)
	if resp2.Action != wire.BandwidthDelay {
		t.Fatalf("expected agent2 to be delayed, got %v", resp2.Action)
	}
	if resp2.DelaySeconds == nil {
		t.Fatal("expected delay_seconds to be set")
	}
}

func TestCompletionPromotesNext(t *testing.T) {
	m := New(120, 300, 30, 60, 30)

	m.RequestTest("agent1", 1024*1024)
	m.RequestTest("agent2", 1024*1024)

	m.CompleteTest("agent1")

	status := m.GetStatus()
	if status.CurrentAgentID == nil || *status.CurrentAgentID != "agent2" {
		t.Fatalf("expected agent2 promoted, got %+v", status.CurrentAgentID)
	}
}

func TestQueueOrderingIsFIFO(t *testing.T) {
	m := New(120, 300, 30, 60, 30)

	m.RequestTest("agent1", 1024*1024)
	m.RequestTest("agent2", 1024*1024)
	m.RequestTest("agent3", 1024*1024)
	m.RequestTest("agent4", 1024*1024)

	for _, want := range []string{"agent2", "agent3", "agent4"} {
		prev := *m.GetStatus().CurrentAgentID
		m.CompleteTest(prev)
		got := m.GetStatus().CurrentAgentID
		if got == nil || *got != want {
			t.Fatalf("expected %s promoted after completing %s, got %+v", want, prev, got)
		}
	}
}

func TestStatusAccuracy(t *testing.T) {
	m := New(120, 300, 30, 60, 30)

	status := m.GetStatus()
	if status.CurrentAgentID != nil {
		t.Fatal("expected no current test initially")
	}

	m.RequestTest("agent1", 1024*1024)
	status = m.GetStatus()
	if status.CurrentAgentID == nil || *status.CurrentAgentID != "agent1" {
		t.Fatalf("expected agent1 current, got %+v", status.CurrentAgentID)
	}
	if status.ElapsedSeconds >= 2 {
		t.Fatalf("expected elapsed time to be small, got %d", status.ElapsedSeconds)
	}

	m.RequestTest("agent2", 2*1024*1024)
	m.RequestTest("agent3", 3*1024*1024)
	status = m.GetStatus()
	if status.CurrentAgentID == nil || *status.CurrentAgentID != "agent1" {
		t.Fatalf("expected agent1 to remain current, got %+v", status.CurrentAgentID)
	}
}

func TestCompleteNonexistentAgentIsNoop(t *testing.T) {
	m := New(120, 300, 30, 60, 30)

	m.CompleteTest("nonexistent")

	status := m.GetStatus()
	if status.CurrentAgentID != nil {
		t.Fatal("expected status unchanged")
	}
}

func TestCompleteWrongAgentIsNoop(t *testing.T) {
	m := New(120, 300, 30, 60, 30)

	m.RequestTest("agent1", 1024*1024)
	m.RequestTest("agent2", 1024*1024)

	m.CompleteTest("agent2")

	status := m.GetStatus()
	if status.CurrentAgentID == nil || *status.CurrentAgentID != "agent1" {
		t.Fatalf("expected agent1 to remain current, got %+v", status.CurrentAgentID)
	}
}

func TestIsAuthorizedOnlyCurrentHolder(t *testing.T) {
	m := New(120, 300, 30, 60, 30)

	m.RequestTest("agent1", 1024*1024)
	m.RequestTest("agent2", 1024*1024)

	if !m.IsAuthorized("agent1") {
		t.Fatal("expected agent1 to be authorized")
	}
	if m.IsAuthorized("agent2") {
		t.Fatal("expected agent2 to not be authorized while queued")
	}
}
