package localstore

import (
	"context"
	"database/sql"
)

// RetentionResult totals what one sweep deleted, kind by kind, for
// logging and metrics.
type RetentionResult struct {
	RawDeleted int64
	AggDeleted int64
	ByKind     map[string][2]int64 // kind -> [rawDeleted, aggDeleted]
}

// RetentionSweep deletes raw rows older than cutoff unconditionally,
// and aggregate rows older than cutoff unless a still-unsent queue
// entry references them (spec.md §3's retention coupling invariant).
// All nine kinds are swept inside one transaction.
func (s *Store) RetentionSweep(ctx context.Context, cutoff int64) (RetentionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := RetentionResult{ByKind: map[string][2]int64{}}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cleaners := []struct {
			kind string
			fn   func(context.Context, *sql.Tx, int64) (int64, int64, error)
		}{
			{kindPing, cleanupPing},
			{kindTcp, cleanupTcp},
			{kindTls, cleanupTls},
			{kindHttpGet, cleanupHttpGet},
			{kindHttpContent, cleanupHttpContent},
			{kindDns, cleanupDns},
			{kindSnmp, cleanupSnmp},
			{kindBandwidth, cleanupBandwidth},
			{kindSql, cleanupSqlDispatch},
		}
		for _, c := range cleaners {
			raw, agg, err := c.fn(ctx, tx, cutoff)
			if err != nil {
				return err
			}
			result.RawDeleted += raw
			result.AggDeleted += agg
			result.ByKind[c.kind] = [2]int64{raw, agg}
		}
		return nil
	})
	return result, err
}
