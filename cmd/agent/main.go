package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netprobe/fleet/internal/agentrun"
	"github.com/netprobe/fleet/internal/aggregator"
	"github.com/netprobe/fleet/internal/configsum"
	"github.com/netprobe/fleet/internal/localstore"
	"github.com/netprobe/fleet/internal/models"
	"github.com/netprobe/fleet/internal/probe"
	"github.com/netprobe/fleet/internal/scheduler"
	"github.com/netprobe/fleet/internal/sender"
)

var (
	agentID       = flag.String("agent-id", envOr("AGENT_ID", "agent-local"), "This agent's unique id")
	serverURL     = flag.String("server-url", envOr("SERVER_URL", "http://localhost:8080"), "Central server base URL")
	apiKey        = flag.String("api-key", os.Getenv("API_KEY"), "API key presented on every server request")
	storePath     = flag.String("store-path", envOr("STORE_PATH", "agent.db"), "Path to the local SQLite store")
	tasksFile     = flag.String("tasks-file", envOr("TASKS_FILE", "tasks.json"), "Path to the JSON task list (config file format/workflow is out of scope; JSON is this agent's loading boundary)")
	maxConcurrent = flag.Int("max-concurrent", 8, "Maximum probes running at once")
	metricsPort   = flag.String("metrics-port", envOr("METRICS_PORT", "9090"), "Prometheus metrics port")
	retentionDays = flag.Int("retention-days", 30, "Local raw/aggregate retention window, in days")
)

// taskFile is the on-disk shape tasks.json is decoded into: a JSON
// object whose "tasks" field is the array of TaskConfig, alongside the
// raw agent_toml/tasks_toml strings, since config file format/workflow
// is explicitly out of scope (spec.md §1) and this agent only needs a
// loading boundary, not a parser for the original TOML dialect.
type taskFile struct {
	AgentTOML string             `json:"agent_toml"`
	TasksTOML string             `json:"tasks_toml"`
	Tasks     []models.TaskConfig `json:"tasks"`
}

func main() {
	flag.Parse()

	tf, err := loadTasks(*tasksFile)
	if err != nil {
		log.Fatalf("agent: failed to load tasks file %s: %v", *tasksFile, err)
	}
	log.Printf("agent: loaded %d tasks from %s", len(tf.Tasks), *tasksFile)

	store, err := localstore.Open(*storePath)
	if err != nil {
		log.Fatalf("agent: failed to open local store %s: %v", *storePath, err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.Initialize(ctx); err != nil {
		cancel()
		log.Fatalf("agent: failed to initialize local store: %v", err)
	}
	cancel()
	stopCheckpoint := make(chan struct{})
	store.StartCheckpointLoop(5*time.Minute, stopCheckpoint)

	var bwClient *probe.BandwidthClient
	for _, t := range tf.Tasks {
		if t.Type == models.TaskBandwidth {
			bwClient = &probe.BandwidthClient{IngestURL: *serverURL, AgentID: *agentID, APIKey: *apiKey}
			break
		}
	}

	runner := agentrun.New(store, bwClient)
	sched := scheduler.New(tf.Tasks, runner, *maxConcurrent, 30*time.Second)

	agg := aggregator.New(store, 1*time.Second)

	checksum := configsum.Checksum(tf.AgentTOML, tf.TasksTOML)
	send := sender.New(store, tf.Tasks, func() string { return checksum }, staleNotifier{}, sender.Config{
		ServerURL:    *serverURL,
		AgentID:      *agentID,
		APIKey:       *apiKey,
		AgentVersion: "dev",
	})

	sched.Start()
	agg.Start()
	send.Start()

	stopRetention := startRetentionLoop(store, *retentionDays)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Printf("agent: metrics listening on :%s", *metricsPort)
		if err := http.ListenAndServe(":"+*metricsPort, nil); err != nil && err != http.ErrServerClosed {
			log.Printf("agent: metrics server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Printf("agent: shutting down")

	close(stopRetention)
	close(stopCheckpoint)
	send.Stop()
	agg.Stop()
	sched.Stop()
	log.Printf("agent: stopped")
}

func loadTasks(path string) (taskFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return taskFile{}, err
	}
	var tf taskFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return taskFile{}, err
	}
	return tf, nil
}

func startRetentionLoop(store *localstore.Store, retentionDays int) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				result, err := store.RetentionSweep(ctx, cutoff)
				cancel()
				if err != nil {
					log.Printf("agent: retention sweep failed: %v", err)
					continue
				}
				log.Printf("agent: retention sweep deleted %d raw, %d aggregate rows", result.RawDeleted, result.AggDeleted)
			}
		}
	}()
	return stop
}

// staleNotifier logs config staleness; the actual reconfigure workflow
// is out of scope (spec.md §4.5), only the interface boundary is.
type staleNotifier struct{}

func (staleNotifier) ConfigStale() {
	log.Printf("agent: server reports config checksum is stale")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
