package serverstore

import (
	"context"
	"time"
)

// TouchAgent records that agentID submitted a metrics batch: bumps
// last_seen, total_metrics_received by the batch size, and the
// last-seen config checksum (spec.md §4.6).
func (s *Store) TouchAgent(ctx context.Context, agentID, configChecksum string, agentVersion *string, batchSize int) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO agents (agent_id, first_seen, last_seen, total_metrics_received, last_config_checksum, agent_version)
		VALUES ($1, NOW(), NOW(), $2, $3, $4)
		ON CONFLICT (agent_id) DO UPDATE SET
			last_seen = NOW(),
			total_metrics_received = agents.total_metrics_received + $2,
			last_config_checksum = $3,
			agent_version = COALESCE($4, agents.agent_version)`,
		agentID, batchSize, configChecksum, agentVersion)
	return err
}

// AgentConfigChecksum returns the last config checksum the server has
// on file for agentID, used to answer ConfigStatus on metrics
// submission. An unknown agent has no checksum on file, so any
// submitted checksum is treated as up to date until its next refresh.
func (s *Store) AgentConfigChecksum(ctx context.Context, agentID string) (string, bool, error) {
	var checksum string
	err := s.conn.QueryRowContext(ctx, `SELECT COALESCE(last_config_checksum, '') FROM agents WHERE agent_id = $1`, agentID).Scan(&checksum)
	if err != nil {
		return "", false, err
	}
	return checksum, checksum != "", nil
}

// AgentSummary is the operator-facing view of one registered agent.
type AgentSummary struct {
	AgentID              string
	FirstSeen            time.Time
	LastSeen             time.Time
	TotalMetricsReceived int64
	LastConfigChecksum   *string
	AgentVersion         *string
}

func (s *Store) ListAgents(ctx context.Context) ([]AgentSummary, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT agent_id, first_seen, last_seen, total_metrics_received, last_config_checksum, agent_version
		FROM agents ORDER BY last_seen DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AgentSummary
	for rows.Next() {
		var a AgentSummary
		if err := rows.Scan(&a.AgentID, &a.FirstSeen, &a.LastSeen, &a.TotalMetricsReceived, &a.LastConfigChecksum, &a.AgentVersion); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PruneInactiveAgents deletes agents not seen since cutoff, as part of
// the retention sweep.
func (s *Store) PruneInactiveAgents(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM agents WHERE last_seen < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
