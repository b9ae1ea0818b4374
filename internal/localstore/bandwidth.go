package localstore

import (
	"context"
	"database/sql"

	"github.com/netprobe/fleet/internal/models"
)

func createBandwidthTables(ctx context.Context, db *sql.DB) error {
	return exec(ctx, db,
		`CREATE TABLE IF NOT EXISTS raw_metric_bandwidth (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			bandwidth_mbps REAL,
			success BOOLEAN NOT NULL,
			error TEXT,
			target_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS agg_metric_bandwidth (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			period_start INTEGER NOT NULL,
			period_end INTEGER NOT NULL,
			sample_count INTEGER NOT NULL,
			avg_bandwidth_mbps REAL NOT NULL,
			max_bandwidth_mbps REAL NOT NULL,
			min_bandwidth_mbps REAL NOT NULL,
			successful INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			UNIQUE(task_name, period_start, period_end)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_bandwidth_timestamp ON raw_metric_bandwidth(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_bandwidth_task ON raw_metric_bandwidth(task_name, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_agg_bandwidth_period ON agg_metric_bandwidth(period_start, period_end)`,
	)
}

func (s *Store) InsertBandwidthRaw(ctx context.Context, m models.RawBandwidthSample) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_metric_bandwidth (task_name, timestamp, bandwidth_mbps, success, error, target_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.TaskName, m.Timestamp, m.BandwidthMbps, m.Success, m.Error, m.TargetID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func aggregateBandwidthWindow(ctx context.Context, tx *sql.Tx, taskName string, start, end uint64) (*models.BandwidthAggregate, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			AVG(CASE WHEN success = 1 AND bandwidth_mbps IS NOT NULL THEN bandwidth_mbps END),
			MAX(CASE WHEN success = 1 AND bandwidth_mbps IS NOT NULL THEN bandwidth_mbps END),
			MIN(CASE WHEN success = 1 AND bandwidth_mbps IS NOT NULL THEN bandwidth_mbps END),
			SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END)
		FROM raw_metric_bandwidth WHERE task_name = ? AND timestamp >= ? AND timestamp < ?`,
		taskName, start, end)

	var total, successful, failed int64
	var avgB, maxB, minB sql.NullFloat64
	if err := row.Scan(&total, &avgB, &maxB, &minB, &successful, &failed); err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}
	return &models.BandwidthAggregate{
		TaskName: taskName, PeriodStart: start, PeriodEnd: end,
		SampleCount:      uint32(successful + failed),
		AvgBandwidthMbps: avgB.Float64,
		MaxBandwidthMbps: maxB.Float64,
		MinBandwidthMbps: minB.Float64,
		Successful:       uint32(successful),
		Failed:           uint32(failed),
	}, nil
}

func storeBandwidthAggregate(ctx context.Context, tx *sql.Tx, a *models.BandwidthAggregate) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agg_metric_bandwidth
			(task_name, period_start, period_end, sample_count, avg_bandwidth_mbps, max_bandwidth_mbps, min_bandwidth_mbps, successful, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_name, period_start, period_end) DO UPDATE SET
			sample_count=excluded.sample_count, avg_bandwidth_mbps=excluded.avg_bandwidth_mbps,
			max_bandwidth_mbps=excluded.max_bandwidth_mbps, min_bandwidth_mbps=excluded.min_bandwidth_mbps,
			successful=excluded.successful, failed=excluded.failed`,
		a.TaskName, a.PeriodStart, a.PeriodEnd, a.SampleCount, a.AvgBandwidthMbps, a.MaxBandwidthMbps,
		a.MinBandwidthMbps, a.Successful, a.Failed); err != nil {
		return 0, err
	}
	var rowID int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM agg_metric_bandwidth WHERE task_name = ? AND period_start = ? AND period_end = ?`,
		a.TaskName, a.PeriodStart, a.PeriodEnd).Scan(&rowID)
	return rowID, err
}

func cleanupBandwidth(ctx context.Context, tx *sql.Tx, cutoff int64) (rawDeleted, aggDeleted int64, err error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM raw_metric_bandwidth WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, 0, err
	}
	rawDeleted, _ = res.RowsAffected()
	aggDeleted, err = retentionCoupledDelete(ctx, tx, "agg_metric_bandwidth", "bandwidth", cutoff)
	return rawDeleted, aggDeleted, err
}
