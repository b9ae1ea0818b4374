package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/netprobe/fleet/internal/models"
)

type countingRunner struct {
	calls  int32
	failOn int32 // if > 0, the call at this count returns an error
}

func (r *countingRunner) Run(ctx context.Context, task models.TaskConfig) error {
	n := atomic.AddInt32(&r.calls, 1)
	if r.failOn > 0 && n == r.failOn {
		return errors.New("synthetic probe failure")
	}
	return nil
}

func TestSchedulerRunsEveryTaskAtLeastOnce(t *testing.T) {
	runner := &countingRunner{}
	tasks := []models.TaskConfig{
		{Name: "ping-a", Type: models.TaskPing, ScheduleSeconds: 0}, // falls back to 1s
		{Name: "ping-b", Type: models.TaskPing, ScheduleSeconds: 0},
	}
	sched := New(tasks, runner, 10, 100*time.Millisecond)

	sched.Start()
	if got := sched.State(); got != Running {
		t.Fatalf("expected state Running after Start, got %v", got)
	}
	time.Sleep(1300 * time.Millisecond)
	sched.Stop()

	if got := sched.State(); got != Stopped {
		t.Fatalf("expected state Stopped after Stop, got %v", got)
	}
	if atomic.LoadInt32(&runner.calls) < 2 {
		t.Fatalf("expected at least one tick per task, got %d calls", runner.calls)
	}
}

func TestSchedulerStopReturnsEvenWithFailingRunner(t *testing.T) {
	runner := &countingRunner{failOn: 1}
	tasks := []models.TaskConfig{{Name: "flaky", Type: models.TaskTcp, ScheduleSeconds: 0}}
	sched := New(tasks, runner, 1, 100*time.Millisecond)

	sched.Start()
	time.Sleep(200 * time.Millisecond)
	sched.Stop() // must not hang even though the runner returned an error

	if sched.State() != Stopped {
		t.Fatalf("expected Stopped, got %v", sched.State())
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	sched := New(nil, &countingRunner{}, 0, 0)
	if cap(sched.sem) != 50 {
		t.Errorf("expected default maxConcurrent 50, got %d", cap(sched.sem))
	}
	if sched.gracefulTimeout != 30*time.Second {
		t.Errorf("expected default gracefulTimeout 30s, got %v", sched.gracefulTimeout)
	}
}
