// Package bwarbiter implements the server's single-slot bandwidth test
// arbiter: at most one agent's bandwidth download may run at a time,
// with a FIFO queue and lease-timeout reclamation for everyone else
// (spec.md §4.6).
package bwarbiter

import (
	"sync"
	"time"

	"github.com/netprobe/fleet/internal/wire"
)

// Manager owns the in-memory current-test slot and the FIFO wait
// queue. It is single-instance: the server process holds exactly one.
type Manager struct {
	mu sync.Mutex

	testTimeout        time.Duration
	maxDelay           time.Duration
	baseDelay          time.Duration
	currentTestDelay   time.Duration
	positionMultiplier time.Duration

	current *activeTest
	queue   []string
}

type activeTest struct {
	agentID string
	start   time.Time
}

// New builds a Manager. All five parameters are seconds, matching the
// reference implementation's constructor order.
func New(testTimeoutSec, maxDelaySec, baseDelaySec, currentTestDelaySec, positionMultiplierSec int) *Manager {
	return &Manager{
		testTimeout:        time.Duration(testTimeoutSec) * time.Second,
		maxDelay:           time.Duration(maxDelaySec) * time.Second,
		baseDelay:          time.Duration(baseDelaySec) * time.Second,
		currentTestDelay:   time.Duration(currentTestDelaySec) * time.Second,
		positionMultiplier: time.Duration(positionMultiplierSec) * time.Second,
	}
}

// RequestTest implements the arbiter's decision table: proceed if the
// slot is free (or already held by the requester), otherwise join the
// FIFO queue (if not already in it) and report the computed delay.
func (m *Manager) RequestTest(agentID string, dataSizeBytes uint64) wire.BandwidthTestResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reclaimLocked()

	if m.current == nil {
		m.current = &activeTest{agentID: agentID, start: time.Now()}
		return wire.ProceedResponse(dataSizeBytes)
	}
	if m.current.agentID == agentID {
		return wire.ProceedResponse(dataSizeBytes)
	}

	position := m.positionOfLocked(agentID)
	if position < 0 {
		m.queue = append(m.queue, agentID)
		position = len(m.queue) - 1
	}
	return wire.DelayResponse(uint32(m.delayForPosition(position) / time.Second))
}

// CompleteTest releases the slot if agentID currently holds it,
// promoting the next queued agent. A wrong or nonexistent agentID is a
// no-op (spec.md §4.6).
func (m *Manager) CompleteTest(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.agentID != agentID {
		return
	}
	m.current = nil
	m.promoteLocked()
}

// IsAuthorized reports whether agentID currently holds the slot; the
// bandwidth_download handler uses this to 403 anyone else.
func (m *Manager) IsAuthorized(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reclaimLocked()
	return m.current != nil && m.current.agentID == agentID
}

// Status is the arbiter's current-test/queue snapshot, as surfaced by
// the /ws/status WebSocket hub and the live queue broadcaster.
type Status struct {
	CurrentAgentID *string
	ElapsedSeconds int64
	QueuedAgentIDs []string
}

func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reclaimLocked()

	st := Status{QueuedAgentIDs: append([]string(nil), m.queue...)}
	if m.current != nil {
		id := m.current.agentID
		st.CurrentAgentID = &id
		st.ElapsedSeconds = int64(time.Since(m.current.start) / time.Second)
	}
	return st
}

// reclaimLocked promotes the next queued agent once the current
// holder's lease has exceeded testTimeout. Callers must hold m.mu.
func (m *Manager) reclaimLocked() {
	if m.current != nil && time.Since(m.current.start) >= m.testTimeout {
		m.current = nil
		m.promoteLocked()
	}
}

// promoteLocked pops the FIFO head into the slot, if any. Callers must
// hold m.mu and have already cleared m.current.
func (m *Manager) promoteLocked() {
	if len(m.queue) == 0 {
		return
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	m.current = &activeTest{agentID: next, start: time.Now()}
}

func (m *Manager) positionOfLocked(agentID string) int {
	for i, id := range m.queue {
		if id == agentID {
			return i
		}
	}
	return -1
}

func (m *Manager) delayForPosition(position int) time.Duration {
	d := m.baseDelay + m.currentTestDelay + time.Duration(position)*m.positionMultiplier
	if d > m.maxDelay {
		d = m.maxDelay
	}
	return d
}
