// Package scheduler runs one worker goroutine per configured probe
// task, bounding total in-flight executions with a global semaphore
// (spec.md §4.3).
package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/netprobe/fleet/internal/metrics"
	"github.com/netprobe/fleet/internal/models"
)

var taskExecutions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agent_task_executions_total",
		Help: "Probe task executions by task type, target hash, and outcome.",
	},
	[]string{"task_type", "target_hash", "outcome"},
)

func init() {
	prometheus.MustRegister(taskExecutions)
}

// State is the scheduler's lifecycle state.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Runner executes one probe task and persists its raw sample. The
// concrete implementation (internal/agentrun) dispatches on task.Type
// to the right internal/probe function and internal/localstore
// insert.
type Runner interface {
	Run(ctx context.Context, task models.TaskConfig) error
}

// Scheduler owns one goroutine per TaskConfig plus the semaphore that
// bounds how many probes may execute at once fleet-wide.
type Scheduler struct {
	tasks   []models.TaskConfig
	runner  Runner
	sem     chan struct{}
	gracefulTimeout time.Duration

	state int32 // atomic State

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Scheduler. maxConcurrent bounds simultaneous probe
// executions across all tasks (spec.md's default is 50); gracefulTimeout
// bounds how long Stop waits for in-flight workers before returning.
func New(tasks []models.TaskConfig, runner Runner, maxConcurrent int, gracefulTimeout time.Duration) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 50
	}
	if gracefulTimeout <= 0 {
		gracefulTimeout = 30 * time.Second
	}
	return &Scheduler{
		tasks:           tasks,
		runner:          runner,
		sem:             make(chan struct{}, maxConcurrent),
		gracefulTimeout: gracefulTimeout,
		state:           int32(Stopped),
	}
}

func (s *Scheduler) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Scheduler) setState(st State) {
	atomic.StoreInt32(&s.state, int32(st))
}

// Start transitions Stopped -> Starting -> Running and spawns one
// worker goroutine per task.
func (s *Scheduler) Start() {
	s.setState(Starting)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runWorker(task)
	}
	s.setState(Running)
	log.Printf("scheduler: started %d task workers (max_concurrent=%d)", len(s.tasks), cap(s.sem))
}

// Stop transitions Running -> Stopping -> Stopped: it cancels every
// worker's context and waits up to gracefulTimeout before returning
// regardless of whether workers have actually exited.
func (s *Scheduler) Stop() {
	s.setState(Stopping)
	s.cancel()

	doneCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		log.Printf("scheduler: all workers exited cleanly")
	case <-time.After(s.gracefulTimeout):
		log.Printf("scheduler: graceful shutdown timeout (%s) exceeded, force-dropping remaining workers", s.gracefulTimeout)
	}
	s.setState(Stopped)
}

func (s *Scheduler) runWorker(task models.TaskConfig) {
	defer s.wg.Done()

	interval := time.Duration(task.ScheduleSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}

	next := time.Now().Add(interval)
	skippedTicks := 0

	for {
		wait := time.Until(next)
		if wait < 0 {
			// Catch-up: a long pause (e.g. system sleep, slow previous
			// tick) has passed more than one interval — fire exactly
			// once now rather than bursting through every missed tick.
			wait = 0
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(wait):
		}
		if s.ctx.Err() != nil {
			return
		}

		select {
		case s.sem <- struct{}{}:
			skippedTicks = 0
			s.execute(task)
			<-s.sem
		default:
			skippedTicks++
			if skippedTicks > 1 {
				log.Printf("scheduler: task %q skipped %d consecutive ticks waiting for a semaphore slot", task.Name, skippedTicks)
			}
		}

		// Always advance from the scheduled tick, not from completion
		// time, so a slow probe doesn't drift the cadence.
		next = next.Add(interval)
		if next.Before(time.Now()) {
			next = time.Now().Add(interval)
		}
	}
}

func (s *Scheduler) execute(task models.TaskConfig) {
	ctx, cancel := context.WithTimeout(s.ctx, task.Timeout())
	defer cancel()

	outcome := "ok"
	if err := s.runner.Run(ctx, task); err != nil {
		log.Printf("scheduler: task %q execution error: %v", task.Name, err)
		outcome = "error"
	}
	taskExecutions.WithLabelValues(string(task.Type), metrics.HashTarget(task.Params.TargetID), outcome).Inc()
}
