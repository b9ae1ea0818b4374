// Package aggregator periodically scans the agent's local store for
// closed aggregation windows and rolls their raw samples into
// AggregatedMetric rows, enqueueing each for send.
package aggregator

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/netprobe/fleet/internal/localstore"
)

var (
	windowsFlushedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_windows_flushed_total",
			Help: "Total number of aggregation windows flushed, by outcome",
		},
		[]string{"status"}, // success, error
	)

	windowFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_window_flush_duration_seconds",
			Help:    "Time taken to aggregate and enqueue one closed window",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(windowsFlushedTotal)
	prometheus.MustRegister(windowFlushDuration)
}

// Aggregator ticks every tickInterval, asking the store for windows
// that have closed since the last tick and rolling each into an
// aggregate row (spec.md §4.2, §4.4).
type Aggregator struct {
	store        *localstore.Store
	tickInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an Aggregator over store, ticking every tickInterval
// (spec.md's default is 1s; the teacher's equivalent flusher ticks
// every 5s against an in-memory map instead of a SQL table, so a
// tighter interval here is cheap).
func New(store *localstore.Store, tickInterval time.Duration) *Aggregator {
	if tickInterval <= 0 {
		tickInterval = 1 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Aggregator{store: store, tickInterval: tickInterval, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// Start runs the periodic flush loop until Stop is called.
func (a *Aggregator) Start() {
	go a.loop()
}

// Stop cancels the loop and blocks until the in-flight tick finishes.
func (a *Aggregator) Stop() {
	a.cancel()
	<-a.done
}

func (a *Aggregator) loop() {
	defer close(a.done)
	ticker := time.NewTicker(a.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			a.flushOnce()
			return
		case <-ticker.C:
			a.flushOnce()
		}
	}
}

func (a *Aggregator) flushOnce() {
	now := uint64(time.Now().Unix())
	windows, err := a.store.ListClosedWindows(a.ctx, now)
	if err != nil {
		log.Printf("aggregator: list closed windows: %v", err)
		return
	}
	for _, w := range windows {
		a.flushWindow(w)
	}
}

func (a *Aggregator) flushWindow(w localstore.ClosedWindow) {
	start := time.Now()
	status := "success"
	defer func() {
		windowFlushDuration.WithLabelValues(w.Kind).Observe(time.Since(start).Seconds())
		windowsFlushedTotal.WithLabelValues(status).Inc()
	}()

	if err := a.store.AggregateWindow(a.ctx, w); err != nil {
		status = "error"
		log.Printf("aggregator: flush window task=%s kind=%s [%d,%d): %v", w.TaskName, w.Kind, w.PeriodStart, w.PeriodEnd, err)
		return
	}
	log.Printf("aggregator: flushed task=%s kind=%s [%d,%d)", w.TaskName, w.Kind, w.PeriodStart, w.PeriodEnd)
}
