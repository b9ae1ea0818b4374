package localstore

import (
	"context"
	"database/sql"

	"github.com/netprobe/fleet/internal/models"
)

func createHttpContentTables(ctx context.Context, db *sql.DB) error {
	return exec(ctx, db,
		`CREATE TABLE IF NOT EXISTS raw_metric_httpcontent (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			total_ms REAL,
			total_size INTEGER,
			success BOOLEAN NOT NULL,
			error TEXT,
			regexp_match BOOLEAN,
			url TEXT NOT NULL,
			target_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS agg_metric_httpcontent (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			period_start INTEGER NOT NULL,
			period_end INTEGER NOT NULL,
			sample_count INTEGER NOT NULL,
			success_rate_percent REAL NOT NULL,
			avg_total_ms REAL NOT NULL,
			max_total_ms REAL NOT NULL,
			avg_total_size REAL NOT NULL,
			regexp_match_rate_percent REAL NOT NULL,
			successful INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			regexp_matched_count INTEGER NOT NULL,
			target_id TEXT,
			UNIQUE(task_name, period_start, period_end)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_httpcontent_timestamp ON raw_metric_httpcontent(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_httpcontent_task ON raw_metric_httpcontent(task_name, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_agg_httpcontent_period ON agg_metric_httpcontent(period_start, period_end)`,
	)
}

func (s *Store) InsertHttpContentRaw(ctx context.Context, m models.RawHttpContentSample) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_metric_httpcontent (task_name, timestamp, total_ms, total_size, success, error, regexp_match, url, target_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TaskName, m.Timestamp, m.TotalMs, m.TotalSize, m.Success, m.Error, m.RegexpMatch, m.URL, m.TargetID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func aggregateHttpContentWindow(ctx context.Context, tx *sql.Tx, taskName string, start, end uint64) (*models.HttpContentAggregate, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			AVG(CASE WHEN success = 1 AND total_ms IS NOT NULL THEN total_ms END),
			MAX(CASE WHEN success = 1 AND total_ms IS NOT NULL THEN total_ms END),
			AVG(CASE WHEN success = 1 AND total_size IS NOT NULL THEN total_size END),
			SUM(CASE WHEN regexp_match = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
			(SELECT target_id FROM raw_metric_httpcontent WHERE task_name = ? AND timestamp >= ? AND timestamp < ? AND target_id IS NOT NULL ORDER BY timestamp ASC, id ASC LIMIT 1)
		FROM raw_metric_httpcontent WHERE task_name = ? AND timestamp >= ? AND timestamp < ?`,
		taskName, start, end, taskName, start, end)

	var total, matched, successful, failed int64
	var avgMs, maxMs, avgSize sql.NullFloat64
	var targetID sql.NullString
	if err := row.Scan(&total, &avgMs, &maxMs, &avgSize, &matched, &successful, &failed, &targetID); err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}
	agg := &models.HttpContentAggregate{
		TaskName: taskName, PeriodStart: start, PeriodEnd: end,
		SampleCount:            uint32(successful + failed),
		SuccessRatePercent:     models.RatePercent(uint32(successful), uint32(total)),
		AvgTotalMs:             avgMs.Float64,
		MaxTotalMs:             maxMs.Float64,
		AvgTotalSize:           avgSize.Float64,
		RegexpMatchRatePercent: models.RatePercent(uint32(matched), uint32(total)),
		Successful:             uint32(successful),
		Failed:                 uint32(failed),
		RegexpMatchedCount:     uint32(matched),
	}
	if targetID.Valid {
		agg.TargetID = &targetID.String
	}
	return agg, nil
}

func storeHttpContentAggregate(ctx context.Context, tx *sql.Tx, a *models.HttpContentAggregate) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agg_metric_httpcontent
			(task_name, period_start, period_end, sample_count, success_rate_percent, avg_total_ms, max_total_ms, avg_total_size, regexp_match_rate_percent, successful, failed, regexp_matched_count, target_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_name, period_start, period_end) DO UPDATE SET
			sample_count=excluded.sample_count, success_rate_percent=excluded.success_rate_percent,
			avg_total_ms=excluded.avg_total_ms, max_total_ms=excluded.max_total_ms, avg_total_size=excluded.avg_total_size,
			regexp_match_rate_percent=excluded.regexp_match_rate_percent, successful=excluded.successful,
			failed=excluded.failed, regexp_matched_count=excluded.regexp_matched_count, target_id=excluded.target_id`,
		a.TaskName, a.PeriodStart, a.PeriodEnd, a.SampleCount, a.SuccessRatePercent, a.AvgTotalMs, a.MaxTotalMs,
		a.AvgTotalSize, a.RegexpMatchRatePercent, a.Successful, a.Failed, a.RegexpMatchedCount, a.TargetID); err != nil {
		return 0, err
	}
	var rowID int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM agg_metric_httpcontent WHERE task_name = ? AND period_start = ? AND period_end = ?`,
		a.TaskName, a.PeriodStart, a.PeriodEnd).Scan(&rowID)
	return rowID, err
}

func cleanupHttpContent(ctx context.Context, tx *sql.Tx, cutoff int64) (rawDeleted, aggDeleted int64, err error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM raw_metric_httpcontent WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, 0, err
	}
	rawDeleted, _ = res.RowsAffected()
	aggDeleted, err = retentionCoupledDelete(ctx, tx, "agg_metric_httpcontent", "http_content", cutoff)
	return rawDeleted, aggDeleted, err
}
