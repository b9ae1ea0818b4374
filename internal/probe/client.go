package probe

import (
	"net/http"
	"sync"
	"time"
)

// sharedClient holds the process-wide HTTP client used by HttpGet and
// HttpContent, rotated periodically so pooled connections don't go
// stale (spec.md §4.1 HttpGet notes, §9 "shared clients").
type sharedClient struct {
	mu     sync.RWMutex
	client *http.Client
}

var httpClientPool = &sharedClient{client: newHTTPClient()}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
		// Probes build their own deadline into the request context;
		// the client itself doesn't impose one.
	}
}

// Client returns the current shared *http.Client.
func Client() *http.Client {
	httpClientPool.mu.RLock()
	defer httpClientPool.mu.RUnlock()
	return httpClientPool.client
}

// RotateClient replaces the shared client with a fresh one, closing
// idle connections on the old one. Call this from a periodic ticker
// (default hourly).
func RotateClient() {
	httpClientPool.mu.Lock()
	old := httpClientPool.client
	httpClientPool.client = newHTTPClient()
	httpClientPool.mu.Unlock()
	old.CloseIdleConnections()
}

// StartClientRotation launches a goroutine that calls RotateClient on
// the given interval until stop is closed.
func StartClientRotation(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				RotateClient()
			case <-stop:
				return
			}
		}
	}()
}
