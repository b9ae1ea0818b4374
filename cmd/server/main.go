package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netprobe/fleet/internal/bwarbiter"
	"github.com/netprobe/fleet/internal/database"
	"github.com/netprobe/fleet/internal/livequeue"
	"github.com/netprobe/fleet/internal/server"
	"github.com/netprobe/fleet/internal/serverstore"
)

var (
	dbHost     = flag.String("db-host", envOr("DB_HOST", "localhost"), "PostgreSQL host")
	dbPort     = flag.Int("db-port", 5432, "PostgreSQL port")
	dbName     = flag.String("db-name", envOr("DB_NAME", "netprobe"), "PostgreSQL database name")
	dbUser     = flag.String("db-user", envOr("DB_USER", "netprobe"), "PostgreSQL user")
	dbPassword = flag.String("db-password", envOr("DB_PASSWORD", "netprobe"), "PostgreSQL password")

	httpPort = flag.String("http-port", envOr("HTTP_PORT", "8080"), "HTTP listen port")

	tlsEnabled  = flag.Bool("tls-enabled", false, "Serve HTTPS instead of HTTP")
	tlsCertFile = flag.String("tls-cert-file", "", "Path to the TLS certificate")
	tlsKeyFile  = flag.String("tls-key-file", "", "Path to the TLS private key")

	apiKeysFlag = flag.String("api-keys", os.Getenv("API_KEYS"), "Comma-separated list of valid agent API keys")

	bwTestTimeoutSec      = flag.Int("bw-test-timeout-sec", 120, "Bandwidth test lock lifetime before it's considered abandoned")
	bwMaxDelaySec         = flag.Int("bw-max-delay-sec", 300, "Bandwidth test maximum requested retry delay")
	bwBaseDelaySec        = flag.Int("bw-base-delay-sec", 30, "Bandwidth test base retry delay")
	bwCurrentTestDelaySec = flag.Int("bw-current-test-delay-sec", 60, "Delay suggested while a test is already running")
	bwPositionMultiplier  = flag.Int("bw-position-multiplier-sec", 30, "Per-queue-position delay multiplier")
	bwDataSizeBytes       = flag.Uint64("bw-data-size-bytes", 25*1024*1024, "Bytes streamed for each bandwidth download")

	dataRetentionDays        = flag.Int("data-retention-days", 30, "Days aggregates and agent registrations are kept")
	configErrorRetentionDays = flag.Int("config-error-retention-days", 14, "Days config error reports are kept")

	defaultAgentToml = flag.String("default-agent-toml", "", "Fallback agent.toml served to agents with no per-agent override")
	defaultTasksToml = flag.String("default-tasks-toml", "", "Fallback tasks.toml served to agents with no per-agent override")

	adminEnabled  = flag.Bool("admin-enabled", false, "Expose the /admin operator API (agent listing, per-agent task push)")
	adminUser     = flag.String("admin-user", envOr("ADMIN_USER", "operator"), "Operator username for /admin/login")
	adminPassword = flag.String("admin-password", os.Getenv("ADMIN_PASSWORD"), "Operator password for /admin/login")
	jwtSecret     = flag.String("jwt-secret", os.Getenv("JWT_SECRET"), "Secret used to sign operator access tokens")

	metricsPort = flag.String("metrics-port", envOr("METRICS_PORT", "9090"), "Prometheus metrics port (separate from the main API port)")

	natsEnabled = flag.Bool("nats-enabled", false, "Publish bandwidth-arbiter status changes to NATS JetStream for operator tooling")
	natsURL     = flag.String("nats-url", envOr("NATS_URL", nats.DefaultURL), "NATS server URL")
)

func main() {
	flag.Parse()

	apiKeys := splitNonEmpty(*apiKeysFlag)
	if len(apiKeys) == 0 {
		log.Printf("server: WARNING no API keys configured; every request will be rejected")
	}

	dbConfig := database.DefaultConnectionConfig()
	dbConfig.Host = *dbHost
	dbConfig.Port = *dbPort
	dbConfig.Database = *dbName
	dbConfig.User = *dbUser
	dbConfig.Password = *dbPassword

	store, err := serverstore.Open(dbConfig)
	if err != nil {
		log.Fatalf("server: failed to connect to database: %v", err)
	}
	defer store.Close()
	log.Printf("server: connected to database %s:%d/%s", *dbHost, *dbPort, *dbName)

	arbiter := bwarbiter.New(*bwTestTimeoutSec, *bwMaxDelaySec, *bwBaseDelaySec, *bwCurrentTestDelaySec, *bwPositionMultiplier)
	configs := server.NewConfigRegistry(*defaultAgentToml, *defaultTasksToml)

	var admin *server.AdminAuth
	if *adminEnabled {
		a, err := server.NewAdminAuth(*jwtSecret, *adminUser, *adminPassword)
		if err != nil {
			log.Fatalf("server: failed to initialize admin auth: %v", err)
		}
		admin = a
		log.Printf("server: /admin operator API enabled for user %q", *adminUser)
	}

	var queueEvents *livequeue.Publisher
	if *natsEnabled {
		cfg := livequeue.DefaultConfig()
		cfg.URL = *natsURL
		p, err := livequeue.New(cfg)
		if err != nil {
			log.Fatalf("server: failed to connect to NATS at %s: %v", *natsURL, err)
		}
		defer p.Close()
		queueEvents = p
		log.Printf("server: publishing bandwidth-queue status events to NATS at %s", *natsURL)
	}

	svc := server.New(store, arbiter, configs, apiKeys, *bwDataSizeBytes, admin, queueEvents)

	tlsConfig := &server.TLSConfig{
		Enabled:  *tlsEnabled,
		CertFile: *tlsCertFile,
		KeyFile:  *tlsKeyFile,
	}
	httpServer := server.NewHTTPServer(":"+*httpPort, svc.Handler(), tlsConfig)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		addr := ":" + *metricsPort
		log.Printf("server: metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, nil); err != nil && err != http.ErrServerClosed {
			log.Printf("server: metrics server error: %v", err)
		}
	}()

	stopRetention := make(chan struct{})
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-stopRetention:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
				if err := store.RunRetentionSweep(ctx, *dataRetentionDays, *configErrorRetentionDays); err != nil {
					log.Printf("server: retention sweep failed: %v", err)
				}
				cancel()
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	log.Printf("server: listening on :%s (tls=%v)", *httpPort, *tlsEnabled)

	select {
	case sig := <-sigCh:
		log.Printf("server: received signal %v, shutting down", sig)
	case err := <-errCh:
		log.Printf("server: listener error: %v", err)
	}

	close(stopRetention)
	if err := httpServer.Shutdown(15 * time.Second); err != nil {
		log.Printf("server: graceful shutdown error: %v", err)
	}
	log.Printf("server: stopped")
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
