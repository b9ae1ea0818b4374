package probe

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const agentIDFile = ".netprobe_agent_id"

// GetOrCreateAgentID returns a stable agent identifier, creating one on
// first run. NETPROBE_AGENT_ID, when set, wins; otherwise the id is read
// from (or generated as "agent-" plus 32 hex chars and written to)
// ~/.netprobe_agent_id in the user's home directory, so restarts keep
// reporting under the same identity. Ids from the env var or the file
// are returned as found, without validation.
func GetOrCreateAgentID() (string, error) {
	if id := os.Getenv("NETPROBE_AGENT_ID"); id != "" {
		return id, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	idPath := filepath.Join(homeDir, agentIDFile)

	if data, err := os.ReadFile(idPath); err == nil && len(data) > 0 {
		return string(data), nil
	}

	id, err := generateAgentID()
	if err != nil {
		return "", fmt.Errorf("failed to generate agent id: %w", err)
	}
	if err := os.WriteFile(idPath, []byte(id), 0600); err != nil {
		return "", fmt.Errorf("failed to save agent id: %w", err)
	}
	return id, nil
}

func generateAgentID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "agent-" + hex.EncodeToString(b), nil
}
