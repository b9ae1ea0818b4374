package serverstore

import (
	"context"
	"time"
)

// aggTables lists every per-kind aggregate table, used by the
// retention sweep. New probe kinds register their table here.
var aggTables = []string{
	"agg_metric_ping",
	"agg_metric_tcp",
	"agg_metric_tls",
	"agg_metric_httpget",
	"agg_metric_httpcontent",
	"agg_metric_dns",
	"agg_metric_snmp",
	"agg_metric_bandwidth",
	"agg_metric_sql",
}

// RunRetentionSweep deletes aggregates older than dataRetentionDays,
// agents not seen in the same window, and config error log rows past
// their own retention, in one pass (spec.md §4.6).
func (s *Store) RunRetentionSweep(ctx context.Context, dataRetentionDays, configErrorRetentionDays int) error {
	aggCutoff := time.Now().AddDate(0, 0, -dataRetentionDays).Unix()
	for _, table := range aggTables {
		if _, err := s.conn.ExecContext(ctx, `DELETE FROM `+table+` WHERE period_end < $1`, aggCutoff); err != nil {
			return err
		}
	}

	if _, err := s.PruneInactiveAgents(ctx, time.Now().AddDate(0, 0, -dataRetentionDays)); err != nil {
		return err
	}
	if _, err := s.PruneOldConfigErrors(ctx, time.Now().AddDate(0, 0, -configErrorRetentionDays)); err != nil {
		return err
	}
	return nil
}
