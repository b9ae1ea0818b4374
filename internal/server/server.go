// Package server implements the fleet-facing HTTP surface: metrics
// ingest, config distribution, and bandwidth-test arbitration
// (spec.md §4.6). Route wiring and middleware shape follow the
// teacher's cmd/ingest/main.go.
package server

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/netprobe/fleet/internal/bwarbiter"
	"github.com/netprobe/fleet/internal/livequeue"
	"github.com/netprobe/fleet/internal/metrics"
	"github.com/netprobe/fleet/internal/serverstore"
	"github.com/netprobe/fleet/internal/tracing"
	"github.com/netprobe/fleet/internal/wire"
)

var (
	serverRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "server_requests_total",
			Help: "Total number of fleet API requests",
		},
		[]string{"route", "status"},
	)

	serverRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "server_request_duration_seconds",
			Help:    "Duration of fleet API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	serverAuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "server_auth_failures_total",
			Help: "Total number of fleet API authentication failures",
		},
		[]string{"reason"},
	)

	serverMetricsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "server_metrics_ingested_total",
			Help: "Total number of AggregatedMetric rows ingested",
		},
		[]string{"task_type"},
	)

	serverAgentLastSeen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "server_agent_last_seen_timestamp",
			Help: "Unix timestamp of the last metrics batch received per agent, labeled by a hashed agent id to bound cardinality",
		},
		[]string{"agent_id_hash"},
	)
)

func init() {
	prometheus.MustRegister(serverRequestsTotal)
	prometheus.MustRegister(serverRequestDuration)
	prometheus.MustRegister(serverAuthFailures)
	prometheus.MustRegister(serverMetricsIngested)
	prometheus.MustRegister(serverAgentLastSeen)
}

// Server wires the fleet HTTP API on top of the durable store and the
// bandwidth arbiter.
type Server struct {
	store         *serverstore.Store
	arbiter       *bwarbiter.Manager
	configs       *ConfigRegistry
	validAPIKeys  map[string]bool
	dataSizeBytes uint64
	statusHub     *StatusHub
	admin         *AdminAuth
	queueEvents   *livequeue.Publisher // nil-able; NATS publish is best-effort
}

func New(store *serverstore.Store, arbiter *bwarbiter.Manager, configs *ConfigRegistry, apiKeys []string, bandwidthTestDataSizeBytes uint64, admin *AdminAuth, queueEvents *livequeue.Publisher) *Server {
	keys := make(map[string]bool, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keys[k] = true
		}
	}
	hub := NewStatusHub()
	go hub.Run()
	return &Server{
		store:         store,
		arbiter:       arbiter,
		configs:       configs,
		validAPIKeys:  keys,
		dataSizeBytes: bandwidthTestDataSizeBytes,
		statusHub:     hub,
		admin:         admin,
		queueEvents:   queueEvents,
	}
}

// broadcastStatus fans the arbiter's current status out to every live
// subscriber: the in-process WebSocket hub and, when configured, the
// NATS JetStream queue-events stream for operator tooling outside this
// process. The NATS leg is best-effort (internal/livequeue's own
// contract): a publish failure is logged, never fatal to the request
// that triggered it.
func (s *Server) broadcastStatus() {
	status := s.arbiter.GetStatus()
	s.statusHub.Broadcast(status)
	if s.queueEvents != nil {
		if err := s.queueEvents.Publish(status); err != nil {
			log.Printf("server: publish queue status event: %v", err)
		}
	}
}

// Handler builds the full router: CORS-wrapped, auth-gated, OTel
// instrumented, matching cmd/ingest/main.go's http.Handle +
// otelhttp.NewHandler pairing.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.Handle(wire.EndpointMetrics, s.instrument("metrics", s.auth(s.handleMetrics))).Methods(http.MethodPost)
	router.Handle(wire.EndpointConfigs, s.instrument("configs", s.auth(s.handleConfigs))).Methods(http.MethodGet)
	router.Handle(wire.EndpointConfigVerify, s.instrument("config_verify", s.auth(s.handleConfigVerify))).Methods(http.MethodPost)
	router.Handle(wire.EndpointConfigUpload, s.instrument("config_upload", s.auth(s.handleConfigUpload))).Methods(http.MethodPost)
	router.Handle(wire.EndpointConfigError, s.instrument("config_error", s.auth(s.handleConfigError))).Methods(http.MethodPost)
	router.Handle(wire.EndpointBandwidthTest, s.instrument("bandwidth_test", s.auth(s.handleBandwidthTest))).Methods(http.MethodPost)
	router.Handle(wire.EndpointBandwidthDownload, s.instrument("bandwidth_download", s.auth(s.handleBandwidthDownload))).Methods(http.MethodGet)
	router.HandleFunc("/ws/status", s.handleStatusWebSocket).Methods(http.MethodGet)
	router.Handle("/health", http.HandlerFunc(s.handleHealth)).Methods(http.MethodGet)

	if s.admin != nil {
		router.Handle("/admin/login", s.instrument("admin_login", s.admin.handleLogin)).Methods(http.MethodPost)
		router.Handle("/admin/agents", s.instrument("admin_agents", s.admin.requireBearer(s.handleListAgents))).Methods(http.MethodGet)
		router.Handle("/admin/agents/{agentID}/tasks", s.instrument("admin_set_tasks", s.admin.requireBearer(s.handleAdminSetTasks))).Methods(http.MethodPost)
	}
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", wire.HeaderAPIKey, wire.HeaderAgentID},
	})
	return corsHandler.Handler(router)
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.Handler {
	return otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		status := fmt.Sprintf("%d", sw.status)
		serverRequestsTotal.WithLabelValues(route, status).Inc()
		serverRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}), "server."+route)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// auth enforces the X-API-Key / X-Agent-Id header pair (spec.md §4.6),
// grounded in cmd/ingest/main.go's authMiddleware.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := r.Header.Get(wire.HeaderAgentID)
		apiKey := r.Header.Get(wire.HeaderAPIKey)

		if agentID == "" {
			serverAuthFailures.WithLabelValues("missing_agent_id").Inc()
			http.Error(w, "missing "+wire.HeaderAgentID, http.StatusUnauthorized)
			return
		}
		if !s.validAPIKeys[apiKey] {
			serverAuthFailures.WithLabelValues("invalid_api_key").Inc()
			http.Error(w, "invalid "+wire.HeaderAPIKey, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "netprobe-server"})
}

// handleMetrics implements POST /api/v1/metrics: upsert every
// submitted AggregatedMetric, touch the agent registry, and report
// whether the caller's config checksum is stale (spec.md §4.6).
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := r.Header.Get(wire.HeaderAgentID)

	var req wire.MetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.AgentID != agentID {
		http.Error(w, "agent_id mismatch between header and body", http.StatusBadRequest)
		return
	}

	for _, m := range req.Metrics {
		if err := s.store.UpsertMetric(ctx, agentID, m); err != nil {
			log.Printf("server: upsert metric task=%q type=%q: %v", m.TaskName, m.TaskType, err)
			http.Error(w, "failed to store metrics", http.StatusInternalServerError)
			return
		}
		serverMetricsIngested.WithLabelValues(m.TaskType).Inc()
	}

	if err := s.store.TouchAgent(ctx, agentID, req.ConfigChecksum, req.AgentVersion, len(req.Metrics)); err != nil {
		log.Printf("server: touch agent %s: %v", agentID, err)
	}
	serverAgentLastSeen.WithLabelValues(metrics.HashAgentID(agentID)).SetToCurrentTime()

	_, _, currentChecksum := s.configs.Get(agentID)
	if req.ConfigChecksum != currentChecksum {
		writeJSON(w, http.StatusOK, wire.StaleMetricsResponse())
		return
	}
	writeJSON(w, http.StatusOK, wire.UpToDateMetricsResponse())
}

// handleConfigs implements GET /api/v1/configs: base64-encoded
// agent.toml/tasks.toml for the caller.
func (s *Server) handleConfigs(w http.ResponseWriter, r *http.Request) {
	agentID := r.Header.Get(wire.HeaderAgentID)
	agentToml, tasksToml, _ := s.configs.Get(agentID)
	writeJSON(w, http.StatusOK, wire.ConfigsResponse{
		AgentTOML: base64.StdEncoding.EncodeToString([]byte(agentToml)),
		TasksTOML: base64.StdEncoding.EncodeToString([]byte(tasksToml)),
	})
}

// handleConfigVerify implements POST /api/v1/config/verify: compares
// the submitted checksum against the server-held one, returning the
// gzipped+base64 tasks file when stale.
func (s *Server) handleConfigVerify(w http.ResponseWriter, r *http.Request) {
	var req wire.ConfigVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	_, tasksToml, currentChecksum := s.configs.Get(req.AgentID)
	if req.ConfigChecksum == currentChecksum {
		writeJSON(w, http.StatusOK, wire.ConfigVerifyResponse{ConfigStatus: wire.ConfigUpToDate})
		return
	}

	gz, err := gzipBase64(tasksToml)
	if err != nil {
		http.Error(w, "failed to encode tasks file", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, wire.ConfigVerifyResponse{ConfigStatus: wire.ConfigStale, TasksTOMLGzip: &gz})
}

// handleConfigUpload implements POST /api/v1/config/upload: accepts a
// new tasks file for the caller (file-format validation is out of
// scope, spec.md §1).
func (s *Server) handleConfigUpload(w http.ResponseWriter, r *http.Request) {
	var req wire.ConfigUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.configs.SetTasks(req.AgentID, req.TasksTOML)
	writeJSON(w, http.StatusOK, wire.ConfigUploadResponse{Status: "ok"})
}

// handleConfigError implements POST /api/v1/config/error: logs an
// agent-reported local config problem for operator visibility.
func (s *Server) handleConfigError(w http.ResponseWriter, r *http.Request) {
	var req wire.ConfigErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	reportedAt, err := time.Parse(time.RFC3339, req.TimestampUTC)
	if err != nil {
		reportedAt = time.Now().UTC()
	}
	if err := s.store.RecordConfigError(r.Context(), req.AgentID, req.Error, reportedAt); err != nil {
		log.Printf("server: record config error for %s: %v", req.AgentID, err)
		http.Error(w, "failed to record config error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleBandwidthTest implements POST /api/v1/bandwidth_test: runs the
// arbiter's RequestTest decision (spec.md §4.6).
func (s *Server) handleBandwidthTest(w http.ResponseWriter, r *http.Request) {
	var req wire.BandwidthTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp := s.arbiter.RequestTest(req.AgentID, s.dataSizeBytes)
	s.broadcastStatus()
	writeJSON(w, http.StatusOK, resp)
}

// handleBandwidthDownload implements GET /api/v1/bandwidth_download:
// only the arbiter's current holder may download; everyone else is
// rejected with 403 (spec.md §4.6's at-most-one invariant).
func (s *Server) handleBandwidthDownload(w http.ResponseWriter, r *http.Request) {
	agentID := r.Header.Get(wire.HeaderAgentID)
	if !s.arbiter.IsAuthorized(agentID) {
		http.Error(w, "not authorized to download: no active bandwidth test slot", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", s.dataSizeBytes))
	w.WriteHeader(http.StatusOK)

	const chunkSize = 64 * 1024
	chunk := make([]byte, chunkSize)
	var written uint64
	for written < s.dataSizeBytes {
		n := chunkSize
		if remaining := s.dataSizeBytes - written; remaining < uint64(chunkSize) {
			n = int(remaining)
		}
		if _, err := w.Write(chunk[:n]); err != nil {
			tracing.RecordError(r.Context(), err)
			s.arbiter.CompleteTest(agentID)
			s.broadcastStatus()
			return
		}
		written += uint64(n)
	}
	s.arbiter.CompleteTest(agentID)
	s.broadcastStatus()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

func gzipBase64(s string) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
