package agentrun

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/netprobe/fleet/internal/localstore"
	"github.com/netprobe/fleet/internal/models"
)

func newTestStore(t *testing.T) *localstore.Store {
	t.Helper()
	store, err := localstore.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize store: %v", err)
	}
	return store
}

func TestRunDispatchesTcpAndPersists(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	store := newTestStore(t)
	r := New(store, nil)
	task := models.TaskConfig{
		Name: "tcp-local",
		Type: models.TaskTcp,
		Params: models.TaskParams{
			Host: host,
			Port: uint16(port),
		},
	}

	if err := r.Run(context.Background(), task); err != nil {
		t.Fatalf("run tcp task: %v", err)
	}

	windows, err := store.ListClosedWindows(context.Background(), 1<<40)
	if err != nil {
		t.Fatalf("list closed windows: %v", err)
	}
	if len(windows) == 0 {
		t.Fatal("expected the inserted tcp sample to produce a closed window eventually")
	}
}

func TestRunRejectsBandwidthWithoutClient(t *testing.T) {
	store := newTestStore(t)
	r := New(store, nil)
	task := models.TaskConfig{Name: "bw", Type: models.TaskBandwidth}

	err := r.Run(context.Background(), task)
	if err == nil {
		t.Fatal("expected an error when no bandwidth client is wired")
	}
	if !strings.Contains(err.Error(), "bandwidth client") {
		t.Errorf("expected error to mention the missing bandwidth client, got: %v", err)
	}
}

func TestRunRejectsUnknownTaskType(t *testing.T) {
	store := newTestStore(t)
	r := New(store, nil)
	task := models.TaskConfig{Name: "mystery", Type: models.TaskType("unknown")}

	if err := r.Run(context.Background(), task); err == nil {
		t.Fatal("expected an error for an unknown task type")
	}
}
