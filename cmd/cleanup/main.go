package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/netprobe/fleet/internal/database"
	"github.com/netprobe/fleet/internal/serverstore"
)

type Config struct {
	DBHost                   string
	DBPort                   int
	DBName                   string
	DBUser                   string
	DBPassword               string
	DataRetentionDays        int
	ConfigErrorRetentionDays int
	HealthCheck              bool
}

func main() {
	cfg := &Config{}
	flag.StringVar(&cfg.DBHost, "db-host", "localhost", "Database host")
	flag.IntVar(&cfg.DBPort, "db-port", 5432, "Database port")
	flag.StringVar(&cfg.DBName, "db-name", "netprobe", "Database name")
	flag.StringVar(&cfg.DBUser, "db-user", "netprobe", "Database user")
	flag.StringVar(&cfg.DBPassword, "db-password", "netprobe", "Database password")
	flag.IntVar(&cfg.DataRetentionDays, "data-retention-days", 30, "Days aggregate data and agent registrations are retained")
	flag.IntVar(&cfg.ConfigErrorRetentionDays, "config-error-retention-days", 14, "Days config error reports are retained")
	flag.BoolVar(&cfg.HealthCheck, "health-check", false, "Perform database health check only, skip the sweep")
	flag.Parse()

	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.DBName = name
	}

	dbConfig := database.DefaultConnectionConfig()
	dbConfig.Host = cfg.DBHost
	dbConfig.Port = cfg.DBPort
	dbConfig.Database = cfg.DBName
	dbConfig.User = cfg.DBUser
	dbConfig.Password = cfg.DBPassword

	store, err := serverstore.Open(dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if cfg.HealthCheck {
		if err := runHealthCheck(store); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.Printf("Running retention sweep: data=%dd config-errors=%dd", cfg.DataRetentionDays, cfg.ConfigErrorRetentionDays)
	if err := store.RunRetentionSweep(ctx, cfg.DataRetentionDays, cfg.ConfigErrorRetentionDays); err != nil {
		log.Fatalf("Retention sweep failed: %v", err)
	}
	log.Println("Retention sweep completed successfully")
}

func runHealthCheck(store *serverstore.Store) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.Connection().Ping(ctx); err != nil {
		return err
	}
	log.Println("✓ Database connectivity OK")

	stats := store.Connection().Stats()
	log.Printf("✓ Connection pool: Open=%d InUse=%d Idle=%d MaxOpen=%d",
		stats.OpenConnections, stats.InUse, stats.Idle, stats.MaxOpenConnections)

	agents, err := store.ListAgents(ctx)
	if err != nil {
		return err
	}
	log.Printf("✓ Registered agents: %d", len(agents))

	return nil
}
