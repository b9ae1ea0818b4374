// Package sender drains the local store's send queue in batches and
// ships aggregates to the server, with exponential backoff on failure
// (spec.md §4.5).
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/netprobe/fleet/internal/localstore"
	"github.com/netprobe/fleet/internal/models"
	"github.com/netprobe/fleet/internal/wire"
)

// ConfigRefreshNotifier reacts to the server reporting the agent's
// config checksum as stale. The concrete collaborator (fetching and
// applying a new tasks.toml) lives outside this package.
type ConfigRefreshNotifier interface {
	ConfigStale()
}

// ChecksumProvider returns the agent's current config checksum, read
// fresh on every batch so a config reload is picked up without
// restarting the sender.
type ChecksumProvider func() string

// Config holds Sender's tunables; zero values fall back to spec.md's
// defaults.
type Config struct {
	ServerURL     string
	AgentID       string
	APIKey        string
	AgentVersion  string
	BatchSize     int
	SendInterval  time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	HTTPTimeout   time.Duration
}

// Sender owns the batch-drain loop goroutine.
type Sender struct {
	store     *localstore.Store
	client    *http.Client
	cfg       Config
	taskTypes map[string]string // task name -> models.TaskType string, resolved from the running config
	checksum  ChecksumProvider
	notifier  ConfigRefreshNotifier

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(store *localstore.Store, tasks []models.TaskConfig, checksum ChecksumProvider, notifier ConfigRefreshNotifier, cfg Config) *Sender {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 1 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 60 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}

	taskTypes := make(map[string]string, len(tasks))
	for _, t := range tasks {
		taskTypes[t.Name] = string(t.Type)
	}

	return &Sender{
		store:     store,
		client:    &http.Client{Timeout: cfg.HTTPTimeout},
		cfg:       cfg,
		taskTypes: taskTypes,
		checksum:  checksum,
		notifier:  notifier,
		done:      make(chan struct{}),
	}
}

func (s *Sender) Start() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.loop()
}

func (s *Sender) Stop() {
	s.cancel()
	<-s.done
}

func (s *Sender) loop() {
	defer close(s.done)
	for {
		if s.ctx.Err() != nil {
			return
		}
		sent := s.drainOnce()
		if !sent {
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(s.cfg.SendInterval):
			}
		}
	}
}

// drainOnce takes one batch and attempts delivery with backoff,
// reporting whether any work was found.
func (s *Sender) drainOnce() bool {
	entries, err := s.store.TakeBatch(s.ctx, s.cfg.BatchSize)
	if err != nil {
		log.Printf("sender: take_batch error: %v", err)
		return false
	}
	if len(entries) == 0 {
		return false
	}

	metrics := make([]wire.AggregatedMetric, 0, len(entries))
	queueIDs := make([]int64, 0, len(entries))
	for _, e := range entries {
		taskType := s.taskTypes[e.TaskName]
		if taskType == "" {
			taskType = defaultTaskTypeForKind(e.MetricType)
		}
		m, err := s.store.LoadForSend(e.MetricType, e.MetricRowID, taskType)
		if err != nil {
			log.Printf("sender: load aggregate %s/%d for task %q: %v", e.MetricType, e.MetricRowID, e.TaskName, err)
			continue
		}
		metrics = append(metrics, m)
		queueIDs = append(queueIDs, e.QueueID)
	}

	attempt := 0
	backoff := s.cfg.BackoffBase
	for {
		if s.ctx.Err() != nil {
			return true
		}
		if err := s.postBatch(metrics); err != nil {
			log.Printf("sender: batch of %d entries failed (attempt %d): %v", len(entries), attempt+1, err)
			for _, e := range entries {
				if retryErr := s.store.MarkRetry(s.ctx, e.QueueID, s.cfg.MaxRetries); retryErr != nil {
					log.Printf("sender: mark_retry queue_id=%d: %v", e.QueueID, retryErr)
				}
			}
			attempt++
			select {
			case <-s.ctx.Done():
				return true
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.cfg.BackoffMax {
				backoff = s.cfg.BackoffMax
			}
			continue
		}
		if err := s.store.MarkSent(s.ctx, queueIDs); err != nil {
			log.Printf("sender: mark_sent for %d entries: %v", len(queueIDs), err)
		}
		return true
	}
}

func (s *Sender) postBatch(metrics []wire.AggregatedMetric) error {
	req := wire.MetricsRequest{
		AgentID:        s.cfg.AgentID,
		TimestampUTC:   time.Now().UTC().Format(time.RFC3339),
		ConfigChecksum: s.checksum(),
		Metrics:        metrics,
	}
	if s.cfg.AgentVersion != "" {
		req.AgentVersion = &s.cfg.AgentVersion
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal metrics request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.cfg.ServerURL+wire.EndpointMetrics, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build metrics request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(wire.HeaderAPIKey, s.cfg.APIKey)
	httpReq.Header.Set(wire.HeaderAgentID, s.cfg.AgentID)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send metrics request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var metricsResp wire.MetricsResponse
	if err := json.NewDecoder(resp.Body).Decode(&metricsResp); err != nil {
		return fmt.Errorf("decode metrics response: %w", err)
	}
	if metricsResp.ConfigStatus == wire.ConfigStale && s.notifier != nil {
		s.notifier.ConfigStale()
	}
	return nil
}

// defaultTaskTypeForKind mirrors localstore's own fallback: used when a
// queue entry's task name is no longer present in the running config
// (the task was removed but its queued aggregate is still pending).
func defaultTaskTypeForKind(kind string) string {
	switch kind {
	case "ping":
		return "ping"
	case "tcp":
		return "tcp"
	case "tls":
		return "tls_handshake"
	case "http_get":
		return "http_get"
	case "http_content":
		return "http_content"
	case "dns":
		return "dns_query"
	case "snmp":
		return "snmp"
	case "bandwidth":
		return "bandwidth"
	case "sql":
		return "sql_query"
	default:
		return kind
	}
}
