package server

import (
	"sync"

	"github.com/netprobe/fleet/internal/configsum"
)

// agentConfig is the server-held copy of one agent's two config files,
// kept only so /api/v1/configs, /config/verify and /config/upload have
// something concrete to serve — config file format/workflow itself is
// out of scope (spec.md §1).
type agentConfig struct {
	agentToml string
	tasksToml string
	checksum  string
}

// ConfigRegistry is the server's in-memory per-agent config store.
// Agents without an explicit entry fall back to the registry default,
// so a freshly-registered agent can still fetch a baseline config.
type ConfigRegistry struct {
	mu       sync.RWMutex
	byAgent  map[string]agentConfig
	fallback agentConfig
}

func NewConfigRegistry(defaultAgentToml, defaultTasksToml string) *ConfigRegistry {
	return &ConfigRegistry{
		byAgent: make(map[string]agentConfig),
		fallback: agentConfig{
			agentToml: defaultAgentToml,
			tasksToml: defaultTasksToml,
			checksum:  configsum.Checksum(defaultAgentToml, defaultTasksToml),
		},
	}
}

func (r *ConfigRegistry) Get(agentID string) (agentToml, tasksToml, checksum string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.byAgent[agentID]; ok {
		return c.agentToml, c.tasksToml, c.checksum
	}
	return r.fallback.agentToml, r.fallback.tasksToml, r.fallback.checksum
}

// SetTasks installs a new tasks.toml for agentID (POST /config/upload),
// keeping its current agent.toml (or the registry default) and
// recomputing the checksum.
func (r *ConfigRegistry) SetTasks(agentID, tasksToml string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byAgent[agentID]
	if !ok {
		c = r.fallback
	}
	c.tasksToml = tasksToml
	c.checksum = configsum.Checksum(c.agentToml, c.tasksToml)
	r.byAgent[agentID] = c
	return c.checksum
}
