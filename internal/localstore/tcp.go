package localstore

import (
	"context"
	"database/sql"

	"github.com/netprobe/fleet/internal/models"
)

func createTcpTables(ctx context.Context, db *sql.DB) error {
	return exec(ctx, db,
		`CREATE TABLE IF NOT EXISTS raw_metric_tcp (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			connect_ms REAL,
			success BOOLEAN NOT NULL,
			error TEXT,
			host TEXT NOT NULL,
			target_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS agg_metric_tcp (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			period_start INTEGER NOT NULL,
			period_end INTEGER NOT NULL,
			sample_count INTEGER NOT NULL,
			avg_connect_ms REAL NOT NULL,
			max_connect_ms REAL NOT NULL,
			min_connect_ms REAL NOT NULL,
			successful INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			failure_percent REAL NOT NULL,
			host TEXT,
			target_id TEXT,
			UNIQUE(task_name, period_start, period_end)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_tcp_timestamp ON raw_metric_tcp(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_tcp_task ON raw_metric_tcp(task_name, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_agg_tcp_period ON agg_metric_tcp(period_start, period_end)`,
	)
}

func (s *Store) InsertTcpRaw(ctx context.Context, m models.RawTcpSample) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_metric_tcp (task_name, timestamp, connect_ms, success, error, host, target_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.TaskName, m.Timestamp, m.ConnectMs, m.Success, m.Error, m.Host, m.TargetID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func aggregateTcpWindow(ctx context.Context, tx *sql.Tx, taskName string, start, end uint64) (*models.TcpAggregate, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			AVG(CASE WHEN success = 1 AND connect_ms IS NOT NULL THEN connect_ms END),
			MAX(CASE WHEN success = 1 AND connect_ms IS NOT NULL THEN connect_ms END),
			MIN(CASE WHEN success = 1 AND connect_ms IS NOT NULL THEN connect_ms END),
			SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
			(SELECT host FROM raw_metric_tcp WHERE task_name = ? AND timestamp >= ? AND timestamp < ? ORDER BY timestamp ASC, id ASC LIMIT 1),
			(SELECT target_id FROM raw_metric_tcp WHERE task_name = ? AND timestamp >= ? AND timestamp < ? AND target_id IS NOT NULL ORDER BY timestamp ASC, id ASC LIMIT 1)
		FROM raw_metric_tcp WHERE task_name = ? AND timestamp >= ? AND timestamp < ?`,
		taskName, start, end, taskName, start, end, taskName, start, end)

	var total, successful, failed int64
	var avgC, maxC, minC sql.NullFloat64
	var host, targetID sql.NullString
	if err := row.Scan(&total, &avgC, &maxC, &minC, &successful, &failed, &host, &targetID); err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}
	agg := &models.TcpAggregate{
		TaskName: taskName, PeriodStart: start, PeriodEnd: end,
		SampleCount: uint32(successful + failed),
		AvgConnectMs: avgC.Float64, MaxConnectMs: maxC.Float64, MinConnectMs: minC.Float64,
		Successful: uint32(successful), Failed: uint32(failed),
		FailurePercent: models.RatePercent(uint32(failed), uint32(total)),
	}
	if host.Valid {
		agg.Host = &host.String
	}
	if targetID.Valid {
		agg.TargetID = &targetID.String
	}
	return agg, nil
}

func storeTcpAggregate(ctx context.Context, tx *sql.Tx, a *models.TcpAggregate) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agg_metric_tcp
			(task_name, period_start, period_end, sample_count, avg_connect_ms, max_connect_ms, min_connect_ms, successful, failed, failure_percent, host, target_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_name, period_start, period_end) DO UPDATE SET
			sample_count=excluded.sample_count, avg_connect_ms=excluded.avg_connect_ms, max_connect_ms=excluded.max_connect_ms,
			min_connect_ms=excluded.min_connect_ms, successful=excluded.successful, failed=excluded.failed,
			failure_percent=excluded.failure_percent, host=excluded.host, target_id=excluded.target_id`,
		a.TaskName, a.PeriodStart, a.PeriodEnd, a.SampleCount, a.AvgConnectMs, a.MaxConnectMs, a.MinConnectMs,
		a.Successful, a.Failed, a.FailurePercent, a.Host, a.TargetID); err != nil {
		return 0, err
	}
	var rowID int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM agg_metric_tcp WHERE task_name = ? AND period_start = ? AND period_end = ?`,
		a.TaskName, a.PeriodStart, a.PeriodEnd).Scan(&rowID)
	return rowID, err
}

func cleanupTcp(ctx context.Context, tx *sql.Tx, cutoff int64) (rawDeleted, aggDeleted int64, err error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM raw_metric_tcp WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, 0, err
	}
	rawDeleted, _ = res.RowsAffected()
	aggDeleted, err = retentionCoupledDelete(ctx, tx, "agg_metric_tcp", "tcp", cutoff)
	return rawDeleted, aggDeleted, err
}
