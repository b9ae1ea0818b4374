// Package livequeue publishes bandwidth-queue state-change events
// (a slot grant, a position change) onto NATS JetStream for operator
// tooling. This is a supplemented feature, not part of the spec's
// at-least-once metrics transport — that stays plain HTTP POST
// (spec.md §4.5/§4.6). Publishing here is best-effort: a queue
// subscriber missing an event can always re-derive state from the
// arbiter's status snapshot.
package livequeue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/netprobe/fleet/internal/bwarbiter"
)

const (
	StreamName   = "bandwidth-queue-events"
	SubjectEvent = "bandwidth.queue.events"

	defaultStreamRetention = 24 * time.Hour
)

// Config holds the publisher's NATS connection settings.
type Config struct {
	URL             string
	StreamRetention time.Duration
	ReconnectWait   time.Duration
	MaxReconnects   int
}

func DefaultConfig() *Config {
	return &Config{
		URL:             nats.DefaultURL,
		StreamRetention: defaultStreamRetention,
		ReconnectWait:   2 * time.Second,
		MaxReconnects:   -1,
	}
}

// Event is the wire shape published on every arbiter state change.
type Event struct {
	OccurredAt     time.Time `json:"occurred_at"`
	CurrentAgentID *string   `json:"current_agent_id,omitempty"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
	QueuedAgentIDs []string  `json:"queued_agent_ids"`
}

// Publisher owns the JetStream connection used to announce
// bwarbiter.Status snapshots.
type Publisher struct {
	config *Config
	nc     *nats.Conn
	js     jetstream.JetStream
	ctx    context.Context
	cancel context.CancelFunc
}

// New connects to NATS and ensures the queue-events stream exists.
func New(config *Config) (*Publisher, error) {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Publisher{config: config, ctx: ctx, cancel: cancel}
	if err := p.connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if err := p.createStream(); err != nil {
		cancel()
		p.nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}
	return p, nil
}

func (p *Publisher) connect() error {
	opts := []nats.Option{
		nats.ReconnectWait(p.config.ReconnectWait),
		nats.MaxReconnects(p.config.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("livequeue: NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("livequeue: NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(p.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", p.config.URL, err)
	}
	p.nc = nc

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}
	p.js = js
	return nil
}

func (p *Publisher) createStream() error {
	_, err := p.js.CreateOrUpdateStream(p.ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectEvent},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.StreamRetention,
		Replicas:    1,
		Discard:     jetstream.DiscardOld,
		Description: "Bandwidth arbiter status change events, best-effort",
	})
	return err
}

// Publish announces a new arbiter status snapshot.
func (p *Publisher) Publish(status bwarbiter.Status) error {
	ev := Event{
		OccurredAt:     time.Now(),
		CurrentAgentID: status.CurrentAgentID,
		ElapsedSeconds: status.ElapsedSeconds,
		QueuedAgentIDs: status.QueuedAgentIDs,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal queue event: %w", err)
	}
	if _, err := p.js.Publish(p.ctx, SubjectEvent, data); err != nil {
		return fmt.Errorf("failed to publish queue event: %w", err)
	}
	return nil
}

// Close releases the NATS connection.
func (p *Publisher) Close() error {
	p.cancel()
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
