// Command agentctl is a small operator tool for inspecting an agent's
// local SQLite store: send-queue depth by status and, optionally, a
// one-shot retention sweep. It never talks to the network; it only
// opens the same store file the running agent uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/netprobe/fleet/internal/localstore"
)

var (
	storePath     = flag.String("store", "agent.db", "Path to the agent's local SQLite store")
	doSweep       = flag.Bool("sweep", false, "Run a retention sweep before reporting")
	retentionDays = flag.Int("retention-days", 30, "Cutoff used when -sweep is set")
	timeout       = flag.Duration("timeout", 10*time.Second, "Operation timeout")
)

func main() {
	flag.Parse()

	store, err := localstore.Open(*storePath)
	if err != nil {
		color.Red("agentctl: failed to open store %s: %v", *storePath, err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := store.Initialize(ctx); err != nil {
		color.Red("agentctl: failed to initialize store: %v", err)
		os.Exit(1)
	}

	if *doSweep {
		cutoff := time.Now().AddDate(0, 0, -*retentionDays).Unix()
		result, err := store.RetentionSweep(ctx, cutoff)
		if err != nil {
			color.Red("agentctl: retention sweep failed: %v", err)
			os.Exit(1)
		}
		color.New(color.FgCyan, color.Bold).Println("Retention sweep:")
		fmt.Printf("  raw rows deleted:   %d\n", result.RawDeleted)
		fmt.Printf("  aggregate rows deleted: %d\n", result.AggDeleted)
		for kind, counts := range result.ByKind {
			fmt.Printf("    %-14s raw=%d agg=%d\n", kind, counts[0], counts[1])
		}
		fmt.Println()
	}

	stats, err := store.QueueStats(ctx)
	if err != nil {
		color.Red("agentctl: failed to read queue stats: %v", err)
		os.Exit(1)
	}

	color.New(color.FgCyan, color.Bold).Println("Send queue:")
	printQueueLine("pending", stats[localstore.QueuePending], color.FgYellow)
	printQueueLine("in_flight", stats[localstore.QueueInFlight], color.FgCyan)
	printQueueLine("sent", stats[localstore.QueueSent], color.FgGreen)
	printQueueLine("failed", stats[localstore.QueueFailed], color.FgRed)

	if stats[localstore.QueueFailed] > 0 {
		color.Yellow("\nwarning: %d entries exhausted their retry budget and will not be sent", stats[localstore.QueueFailed])
	}
}

func printQueueLine(label string, count int64, attr color.Attribute) {
	c := color.New(attr)
	c.Printf("  %-10s", label)
	fmt.Printf("%d\n", count)
}
