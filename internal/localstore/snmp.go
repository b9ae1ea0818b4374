package localstore

import (
	"context"
	"database/sql"

	"github.com/netprobe/fleet/internal/models"
)

func createSnmpTables(ctx context.Context, db *sql.DB) error {
	return exec(ctx, db,
		`CREATE TABLE IF NOT EXISTS raw_metric_snmp (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			response_ms REAL,
			first_value TEXT,
			first_value_type TEXT,
			oid_queried TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			error TEXT,
			target_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS agg_metric_snmp (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			period_start INTEGER NOT NULL,
			period_end INTEGER NOT NULL,
			sample_count INTEGER NOT NULL,
			success_rate_percent REAL NOT NULL,
			avg_response_ms REAL NOT NULL,
			successful INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			first_value TEXT,
			first_value_type TEXT,
			oid_queried TEXT NOT NULL,
			UNIQUE(task_name, period_start, period_end)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_snmp_timestamp ON raw_metric_snmp(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_snmp_task ON raw_metric_snmp(task_name, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_agg_snmp_period ON agg_metric_snmp(period_start, period_end)`,
	)
}

func (s *Store) InsertSnmpRaw(ctx context.Context, m models.RawSnmpSample) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_metric_snmp (task_name, timestamp, response_ms, first_value, first_value_type, oid_queried, success, error, target_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TaskName, m.Timestamp, m.ResponseMs, m.FirstValue, m.FirstValueType, m.OidQueried, m.Success, m.Error, m.TargetID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func aggregateSnmpWindow(ctx context.Context, tx *sql.Tx, taskName string, start, end uint64) (*models.SnmpAggregate, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			AVG(CASE WHEN success = 1 AND response_ms IS NOT NULL THEN response_ms END),
			SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
			(SELECT first_value FROM raw_metric_snmp WHERE task_name = ? AND timestamp >= ? AND timestamp < ? AND success = 1 ORDER BY timestamp ASC, id ASC LIMIT 1),
			(SELECT first_value_type FROM raw_metric_snmp WHERE task_name = ? AND timestamp >= ? AND timestamp < ? AND success = 1 ORDER BY timestamp ASC, id ASC LIMIT 1),
			(SELECT oid_queried FROM raw_metric_snmp WHERE task_name = ? AND timestamp >= ? AND timestamp < ? ORDER BY timestamp ASC, id ASC LIMIT 1)
		FROM raw_metric_snmp WHERE task_name = ? AND timestamp >= ? AND timestamp < ?`,
		taskName, start, end, taskName, start, end, taskName, start, end, taskName, start, end)

	var total, successful, failed int64
	var avgResp sql.NullFloat64
	var firstValue, firstValueType, oid sql.NullString
	if err := row.Scan(&total, &avgResp, &successful, &failed, &firstValue, &firstValueType, &oid); err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}
	agg := &models.SnmpAggregate{
		TaskName: taskName, PeriodStart: start, PeriodEnd: end,
		SampleCount:        uint32(successful + failed),
		SuccessRatePercent: models.RatePercent(uint32(successful), uint32(total)),
		AvgResponseMs:      avgResp.Float64,
		Successful:         uint32(successful),
		Failed:             uint32(failed),
		OidQueried:         oid.String,
	}
	if firstValue.Valid {
		agg.FirstValue = &firstValue.String
	}
	if firstValueType.Valid {
		agg.FirstValueType = &firstValueType.String
	}
	return agg, nil
}

func storeSnmpAggregate(ctx context.Context, tx *sql.Tx, a *models.SnmpAggregate) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agg_metric_snmp
			(task_name, period_start, period_end, sample_count, success_rate_percent, avg_response_ms, successful, failed, first_value, first_value_type, oid_queried)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_name, period_start, period_end) DO UPDATE SET
			sample_count=excluded.sample_count, success_rate_percent=excluded.success_rate_percent,
			avg_response_ms=excluded.avg_response_ms, successful=excluded.successful, failed=excluded.failed,
			first_value=excluded.first_value, first_value_type=excluded.first_value_type, oid_queried=excluded.oid_queried`,
		a.TaskName, a.PeriodStart, a.PeriodEnd, a.SampleCount, a.SuccessRatePercent, a.AvgResponseMs,
		a.Successful, a.Failed, a.FirstValue, a.FirstValueType, a.OidQueried); err != nil {
		return 0, err
	}
	var rowID int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM agg_metric_snmp WHERE task_name = ? AND period_start = ? AND period_end = ?`,
		a.TaskName, a.PeriodStart, a.PeriodEnd).Scan(&rowID)
	return rowID, err
}

func cleanupSnmp(ctx context.Context, tx *sql.Tx, cutoff int64) (rawDeleted, aggDeleted int64, err error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM raw_metric_snmp WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, 0, err
	}
	rawDeleted, _ = res.RowsAffected()
	aggDeleted, err = retentionCoupledDelete(ctx, tx, "agg_metric_snmp", "snmp", cutoff)
	return rawDeleted, aggDeleted, err
}
