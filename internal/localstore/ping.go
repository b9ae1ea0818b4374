package localstore

import (
	"context"
	"database/sql"

	"github.com/netprobe/fleet/internal/models"
)

func createPingTables(ctx context.Context, db *sql.DB) error {
	return exec(ctx, db,
		`CREATE TABLE IF NOT EXISTS raw_metric_ping (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			rtt_ms REAL,
			success BOOLEAN NOT NULL,
			error TEXT,
			ip_address TEXT NOT NULL,
			domain TEXT,
			target_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS agg_metric_ping (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			period_start INTEGER NOT NULL,
			period_end INTEGER NOT NULL,
			sample_count INTEGER NOT NULL,
			avg_latency_ms REAL NOT NULL,
			max_latency_ms REAL NOT NULL,
			min_latency_ms REAL NOT NULL,
			packet_loss_percent REAL NOT NULL,
			successful_pings INTEGER NOT NULL,
			failed_pings INTEGER NOT NULL,
			domain TEXT,
			target_id TEXT,
			UNIQUE(task_name, period_start, period_end)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_ping_timestamp ON raw_metric_ping(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_ping_task ON raw_metric_ping(task_name, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_agg_ping_period ON agg_metric_ping(period_start, period_end)`,
	)
}

// InsertPingRaw stores one raw ping sample.
func (s *Store) InsertPingRaw(ctx context.Context, m models.RawPingSample) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_metric_ping (task_name, timestamp, rtt_ms, success, error, ip_address, domain, target_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TaskName, m.Timestamp, m.RttMs, m.Success, m.Error, m.IPAddress, m.Domain, m.TargetID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// aggregatePingWindow computes the ping aggregate for [start, end), or
// nil if the window has zero rows.
func aggregatePingWindow(ctx context.Context, tx *sql.Tx, taskName string, start, end uint64) (*models.PingAggregate, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			AVG(CASE WHEN success = 1 AND rtt_ms IS NOT NULL THEN rtt_ms END),
			MAX(CASE WHEN success = 1 AND rtt_ms IS NOT NULL THEN rtt_ms END),
			MIN(CASE WHEN success = 1 AND rtt_ms IS NOT NULL THEN rtt_ms END),
			SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
			(SELECT domain FROM raw_metric_ping WHERE task_name = ? AND timestamp >= ? AND timestamp < ? AND domain IS NOT NULL ORDER BY timestamp ASC, id ASC LIMIT 1),
			(SELECT target_id FROM raw_metric_ping WHERE task_name = ? AND timestamp >= ? AND timestamp < ? AND target_id IS NOT NULL ORDER BY timestamp ASC, id ASC LIMIT 1)
		FROM raw_metric_ping WHERE task_name = ? AND timestamp >= ? AND timestamp < ?`,
		taskName, start, end, taskName, start, end, taskName, start, end)

	var total, successful, failed int64
	var avgRtt, maxRtt, minRtt sql.NullFloat64
	var domain, targetID sql.NullString
	if err := row.Scan(&total, &avgRtt, &maxRtt, &minRtt, &successful, &failed, &domain, &targetID); err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	agg := &models.PingAggregate{
		TaskName:          taskName,
		PeriodStart:       start,
		PeriodEnd:         end,
		SampleCount:       uint32(successful + failed),
		AvgLatencyMs:      avgRtt.Float64,
		MaxLatencyMs:      maxRtt.Float64,
		MinLatencyMs:      minRtt.Float64,
		PacketLossPercent: models.RatePercent(uint32(failed), uint32(total)),
		SuccessfulPings:   uint32(successful),
		FailedPings:       uint32(failed),
	}
	if domain.Valid {
		agg.Domain = &domain.String
	}
	if targetID.Valid {
		agg.TargetID = &targetID.String
	}
	return agg, nil
}

func storePingAggregate(ctx context.Context, tx *sql.Tx, a *models.PingAggregate) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO agg_metric_ping
			(task_name, period_start, period_end, sample_count, avg_latency_ms, max_latency_ms, min_latency_ms, packet_loss_percent, successful_pings, failed_pings, domain, target_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_name, period_start, period_end) DO UPDATE SET
			sample_count=excluded.sample_count, avg_latency_ms=excluded.avg_latency_ms,
			max_latency_ms=excluded.max_latency_ms, min_latency_ms=excluded.min_latency_ms,
			packet_loss_percent=excluded.packet_loss_percent, successful_pings=excluded.successful_pings,
			failed_pings=excluded.failed_pings, domain=excluded.domain, target_id=excluded.target_id`,
		a.TaskName, a.PeriodStart, a.PeriodEnd, a.SampleCount, a.AvgLatencyMs, a.MaxLatencyMs, a.MinLatencyMs,
		a.PacketLossPercent, a.SuccessfulPings, a.FailedPings, a.Domain, a.TargetID)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil || id != 0 {
		return id, err
	}
	// ON CONFLICT DO UPDATE path: look the row id back up.
	var rowID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM agg_metric_ping WHERE task_name = ? AND period_start = ? AND period_end = ?`,
		a.TaskName, a.PeriodStart, a.PeriodEnd).Scan(&rowID)
	return rowID, err
}

func cleanupPing(ctx context.Context, tx *sql.Tx, cutoff int64) (rawDeleted, aggDeleted int64, err error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM raw_metric_ping WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, 0, err
	}
	rawDeleted, _ = res.RowsAffected()
	aggDeleted, err = retentionCoupledDelete(ctx, tx, "agg_metric_ping", "ping", cutoff)
	return rawDeleted, aggDeleted, err
}
