package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/netprobe/fleet/internal/bwarbiter"
	"github.com/netprobe/fleet/internal/wire"
)

func newTestServer() *Server {
	arbiter := bwarbiter.New(120, 300, 30, 60, 30)
	configs := NewConfigRegistry("agent toml", "tasks toml")
	return New(nil, arbiter, configs, []string{"key-1"}, 10*1024*1024, nil, nil)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRejectsMissingAgentID(t *testing.T) {
	s := newTestServer()
	called := false
	h := s.auth(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, wire.EndpointConfigs, nil)
	req.Header.Set(wire.HeaderAPIKey, "key-1")
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Fatal("expected handler not to be called")
	}
}

func TestAuthRejectsInvalidAPIKey(t *testing.T) {
	s := newTestServer()
	h := s.auth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, wire.EndpointConfigs, nil)
	req.Header.Set(wire.HeaderAgentID, "agent-1")
	req.Header.Set(wire.HeaderAPIKey, "wrong-key")
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleConfigsReturnsBase64(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, wire.EndpointConfigs, nil)
	req.Header.Set(wire.HeaderAgentID, "agent-1")
	rec := httptest.NewRecorder()
	s.handleConfigs(rec, req)

	var resp wire.ConfigsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(resp.AgentTOML)
	if err != nil {
		t.Fatalf("base64 decode: %v", err)
	}
	if string(decoded) != "agent toml" {
		t.Fatalf("expected %q, got %q", "agent toml", string(decoded))
	}
}

func TestBandwidthTestThenDownloadFlow(t *testing.T) {
	s := newTestServer()

	body, _ := json.Marshal(wire.BandwidthTestRequest{AgentID: "agent-1"})
	req := httptest.NewRequest(http.MethodPost, wire.EndpointBandwidthTest, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleBandwidthTest(rec, req)

	var resp wire.BandwidthTestResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Action != wire.BandwidthProceed {
		t.Fatalf("expected proceed, got %v", resp.Action)
	}

	// agent-2 requests concurrently and must be delayed, then 403'd on download.
	body2, _ := json.Marshal(wire.BandwidthTestRequest{AgentID: "agent-2"})
	req2 := httptest.NewRequest(http.MethodPost, wire.EndpointBandwidthTest, bytes.NewReader(body2))
	rec2 := httptest.NewRecorder()
	s.handleBandwidthTest(rec2, req2)

	var resp2 wire.BandwidthTestResponse
	json.NewDecoder(rec2.Body).Decode(&resp2)
	if resp2.Action != wire.BandwidthDelay {
		t.Fatalf("expected delay for agent-2, got %v", resp2.Action)
	}

	dlReq2 := httptest.NewRequest(http.MethodGet, wire.EndpointBandwidthDownload, nil)
	dlReq2.Header.Set(wire.HeaderAgentID, "agent-2")
	dlRec2 := httptest.NewRecorder()
	s.handleBandwidthDownload(dlRec2, dlReq2)
	if dlRec2.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for agent-2, got %d", dlRec2.Code)
	}

	dlReq1 := httptest.NewRequest(http.MethodGet, wire.EndpointBandwidthDownload, nil)
	dlReq1.Header.Set(wire.HeaderAgentID, "agent-1")
	dlRec1 := httptest.NewRecorder()
	s.handleBandwidthDownload(dlRec1, dlReq1)
	if dlRec1.Code != http.StatusOK {
		t.Fatalf("expected 200 for agent-1, got %d", dlRec1.Code)
	}
}
