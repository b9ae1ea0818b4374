package serverstore

import (
	"context"
	"time"
)

// RecordConfigError logs an agent-reported local config problem
// (POST /api/v1/config/error, spec.md §4.6).
func (s *Store) RecordConfigError(ctx context.Context, agentID, errMsg string, reportedAt time.Time) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO config_errors (agent_id, error, reported_at) VALUES ($1, $2, $3)`,
		agentID, errMsg, reportedAt)
	return err
}

// PruneOldConfigErrors deletes config error log rows older than cutoff,
// as part of the retention sweep.
func (s *Store) PruneOldConfigErrors(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM config_errors WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
