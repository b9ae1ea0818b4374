//go:build sqlprobe

package localstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/netprobe/fleet/internal/models"
	"github.com/netprobe/fleet/internal/wire"
)

// createSqlTables only registers itself when the agent is built with the
// sqlprobe tag (spec.md §9): absent the tag, no tables for the kind
// exist on disk and its store calls return an error.
func init() {
	allTableCreators = append(allTableCreators, createSqlTables)
	kindTables = append(kindTables, kindTable{kindSql, "raw_metric_sql", "agg_metric_sql"})
}

func createSqlTables(ctx context.Context, db *sql.DB) error {
	return exec(ctx, db,
		`CREATE TABLE IF NOT EXISTS raw_metric_sql (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			total_ms REAL,
			row_count INTEGER,
			scalar_value REAL,
			json_result TEXT,
			json_truncated BOOLEAN NOT NULL,
			success BOOLEAN NOT NULL,
			error TEXT,
			target_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS agg_metric_sql (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			period_start INTEGER NOT NULL,
			period_end INTEGER NOT NULL,
			sample_count INTEGER NOT NULL,
			success_rate_percent REAL NOT NULL,
			avg_total_ms REAL NOT NULL,
			max_total_ms REAL NOT NULL,
			avg_row_count REAL NOT NULL,
			max_row_count REAL NOT NULL,
			avg_value REAL,
			min_value REAL,
			max_value REAL,
			successful INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			json_truncated_count INTEGER NOT NULL,
			UNIQUE(task_name, period_start, period_end)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_sql_timestamp ON raw_metric_sql(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_sql_task ON raw_metric_sql(task_name, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_agg_sql_period ON agg_metric_sql(period_start, period_end)`,
	)
}

func (s *Store) InsertSqlRaw(ctx context.Context, m models.RawSqlSample) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_metric_sql (task_name, timestamp, total_ms, row_count, scalar_value, json_result, json_truncated, success, error, target_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TaskName, m.Timestamp, m.TotalMs, m.RowCount, m.ScalarValue, m.JSONResult, m.JSONTruncated, m.Success, m.Error, m.TargetID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func aggregateSqlWindow(ctx context.Context, tx *sql.Tx, taskName string, start, end uint64) (*models.SqlAggregate, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			AVG(CASE WHEN success = 1 AND total_ms IS NOT NULL THEN total_ms END),
			MAX(CASE WHEN success = 1 AND total_ms IS NOT NULL THEN total_ms END),
			AVG(CASE WHEN success = 1 AND row_count IS NOT NULL THEN row_count END),
			MAX(CASE WHEN success = 1 AND row_count IS NOT NULL THEN row_count END),
			AVG(CASE WHEN success = 1 AND scalar_value IS NOT NULL THEN scalar_value END),
			MIN(CASE WHEN success = 1 AND scalar_value IS NOT NULL THEN scalar_value END),
			MAX(CASE WHEN success = 1 AND scalar_value IS NOT NULL THEN scalar_value END),
			SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
			SUM(CASE WHEN json_truncated = 1 THEN 1 ELSE 0 END)
		FROM raw_metric_sql WHERE task_name = ? AND timestamp >= ? AND timestamp < ?`,
		taskName, start, end)

	var total, successful, failed, truncated int64
	var avgMs, maxMs, avgRows, maxRows, avgVal, minVal, maxVal sql.NullFloat64
	if err := row.Scan(&total, &avgMs, &maxMs, &avgRows, &maxRows, &avgVal, &minVal, &maxVal, &successful, &failed, &truncated); err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}
	agg := &models.SqlAggregate{
		TaskName: taskName, PeriodStart: start, PeriodEnd: end,
		SampleCount:        uint32(successful + failed),
		SuccessRatePercent: models.RatePercent(uint32(successful), uint32(total)),
		AvgTotalMs:         avgMs.Float64,
		MaxTotalMs:         maxMs.Float64,
		AvgRowCount:        avgRows.Float64,
		MaxRowCount:        maxRows.Float64,
		Successful:         uint32(successful),
		Failed:             uint32(failed),
		JSONTruncatedCount: uint32(truncated),
	}
	if avgVal.Valid {
		agg.AvgValue = &avgVal.Float64
	}
	if minVal.Valid {
		agg.MinValue = &minVal.Float64
	}
	if maxVal.Valid {
		agg.MaxValue = &maxVal.Float64
	}
	return agg, nil
}

func storeSqlAggregate(ctx context.Context, tx *sql.Tx, a *models.SqlAggregate) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agg_metric_sql
			(task_name, period_start, period_end, sample_count, success_rate_percent, avg_total_ms, max_total_ms, avg_row_count, max_row_count, avg_value, min_value, max_value, successful, failed, json_truncated_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_name, period_start, period_end) DO UPDATE SET
			sample_count=excluded.sample_count, success_rate_percent=excluded.success_rate_percent,
			avg_total_ms=excluded.avg_total_ms, max_total_ms=excluded.max_total_ms, avg_row_count=excluded.avg_row_count,
			max_row_count=excluded.max_row_count, avg_value=excluded.avg_value, min_value=excluded.min_value,
			max_value=excluded.max_value, successful=excluded.successful, failed=excluded.failed,
			json_truncated_count=excluded.json_truncated_count`,
		a.TaskName, a.PeriodStart, a.PeriodEnd, a.SampleCount, a.SuccessRatePercent, a.AvgTotalMs, a.MaxTotalMs,
		a.AvgRowCount, a.MaxRowCount, a.AvgValue, a.MinValue, a.MaxValue, a.Successful, a.Failed, a.JSONTruncatedCount); err != nil {
		return 0, err
	}
	var rowID int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM agg_metric_sql WHERE task_name = ? AND period_start = ? AND period_end = ?`,
		a.TaskName, a.PeriodStart, a.PeriodEnd).Scan(&rowID)
	return rowID, err
}

func cleanupSql(ctx context.Context, tx *sql.Tx, cutoff int64) (rawDeleted, aggDeleted int64, err error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM raw_metric_sql WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, 0, err
	}
	rawDeleted, _ = res.RowsAffected()
	aggDeleted, err = retentionCoupledDelete(ctx, tx, "agg_metric_sql", "sql", cutoff)
	return rawDeleted, aggDeleted, err
}

func aggregateAndStoreSql(ctx context.Context, tx *sql.Tx, taskName string, start, end uint64) (int64, bool, error) {
	agg, err := aggregateSqlWindow(ctx, tx, taskName, start, end)
	if err != nil || agg == nil {
		return 0, false, err
	}
	rowID, err := storeSqlAggregate(ctx, tx, agg)
	return rowID, err == nil, err
}

func insertSqlRawDispatch(ctx context.Context, s *Store, sample any) (int64, error) {
	m, ok := sample.(models.RawSqlSample)
	if !ok {
		return 0, fmt.Errorf("insert raw: unsupported sample type %T", sample)
	}
	return s.InsertSqlRaw(ctx, m)
}

func cleanupSqlDispatch(ctx context.Context, tx *sql.Tx, cutoff int64) (int64, int64, error) {
	return cleanupSql(ctx, tx, cutoff)
}

func loadSqlForSend(s *Store, rowID int64, taskType string) (wire.AggregatedMetric, error) {
	var taskName string
	var periodStart, periodEnd uint64
	var sampleCount uint32
	var d wire.SqlAggregateData
	var avgVal, minVal, maxVal sql.NullFloat64
	err := s.db.QueryRow(`SELECT task_name, period_start, period_end, sample_count, success_rate_percent, avg_total_ms, max_total_ms, avg_row_count, max_row_count, avg_value, min_value, max_value, successful, failed, json_truncated_count FROM agg_metric_sql WHERE id = ?`, rowID).
		Scan(&taskName, &periodStart, &periodEnd, &sampleCount, &d.SuccessRatePercent, &d.AvgTotalMs, &d.MaxTotalMs, &d.AvgRowCount, &d.MaxRowCount, &avgVal, &minVal, &maxVal, &d.Successful, &d.Failed, &d.JsonTruncatedCount)
	if err != nil {
		return wire.AggregatedMetric{}, err
	}
	if avgVal.Valid {
		d.AvgValue = &avgVal.Float64
	}
	if minVal.Valid {
		d.MinValue = &minVal.Float64
	}
	if maxVal.Valid {
		d.MaxValue = &maxVal.Float64
	}
	return marshalMetric(taskName, taskType, periodStart, periodEnd, sampleCount, d)
}
