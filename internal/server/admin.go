package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/netprobe/fleet/internal/auth"
)

// AdminAuth wires JWT-based login for the operator surface: listing
// registered agents and pushing per-agent task overrides. The fleet's
// own agent<->server traffic stays on the spec's static API-key header
// pair (auth in server.go); this is a supplementary operator surface
// the spec leaves room for (spec.md §4.6 only specifies the agent-facing
// routes).
type AdminAuth struct {
	jwt   *auth.JWTManager
	users auth.UserStore
}

// NewAdminAuth seeds a single operator account; a real deployment would
// provision accounts out of band, which is out of scope here.
func NewAdminAuth(jwtSecret, operatorUsername, operatorPassword string) (*AdminAuth, error) {
	store := auth.NewInMemoryUserStore()
	if _, err := store.CreateUser(operatorUsername, operatorPassword, "operator"); err != nil {
		return nil, err
	}
	return &AdminAuth{
		jwt:   auth.NewJWTManager(jwtSecret, 15*time.Minute, 24*time.Hour),
		users: store,
	}, nil
}

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *AdminAuth) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := a.users.ValidateCredentials(req.Username, req.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	pair, err := a.jwt.GenerateTokenPair(user)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// requireBearer gates operator-only routes behind a valid access token.
func (a *AdminAuth) requireBearer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if _, err := a.jwt.ValidateAccessToken(token); err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// handleListAgents implements GET /admin/agents: the registered fleet
// as tracked by the agents table (spec.md §4.6's agent registry).
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents(r.Context())
	if err != nil {
		http.Error(w, "failed to list agents", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

type adminSetTasksRequest struct {
	TasksTOML string `json:"tasks_toml"`
}

// handleAdminSetTasks implements POST /admin/agents/{agentID}/tasks:
// an operator pushing a per-agent tasks.toml override, reusing the
// same ConfigRegistry the agent-facing /config/verify|upload endpoints
// read from.
func (s *Server) handleAdminSetTasks(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentID"]
	var req adminSetTasksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	checksum := s.configs.SetTasks(agentID, req.TasksTOML)
	writeJSON(w, http.StatusOK, map[string]string{"agent_id": agentID, "config_checksum": checksum})
}
