package localstore

import (
	"context"
	"database/sql"

	"github.com/netprobe/fleet/internal/models"
)

func createHttpGetTables(ctx context.Context, db *sql.DB) error {
	return exec(ctx, db,
		`CREATE TABLE IF NOT EXISTS raw_metric_httpget (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			tcp_ms REAL,
			tls_ms REAL,
			ttfb_ms REAL,
			download_ms REAL,
			total_ms REAL,
			status_code INTEGER,
			success BOOLEAN NOT NULL,
			error TEXT,
			ssl_valid BOOLEAN,
			days_until_expiry INTEGER,
			url TEXT NOT NULL,
			target_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS agg_metric_httpget (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			period_start INTEGER NOT NULL,
			period_end INTEGER NOT NULL,
			sample_count INTEGER NOT NULL,
			success_rate_percent REAL NOT NULL,
			avg_tcp_ms REAL NOT NULL,
			avg_tls_ms REAL NOT NULL,
			avg_ttfb_ms REAL NOT NULL,
			avg_download_ms REAL NOT NULL,
			avg_total_ms REAL NOT NULL,
			max_total_ms REAL NOT NULL,
			successful INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			status_code_distribution TEXT,
			ssl_valid_percent REAL NOT NULL,
			avg_days_to_expiry REAL NOT NULL,
			target_id TEXT,
			UNIQUE(task_name, period_start, period_end)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_httpget_timestamp ON raw_metric_httpget(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_httpget_task ON raw_metric_httpget(task_name, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_agg_httpget_period ON agg_metric_httpget(period_start, period_end)`,
	)
}

func (s *Store) InsertHttpGetRaw(ctx context.Context, m models.RawHttpGetSample) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_metric_httpget (task_name, timestamp, tcp_ms, tls_ms, ttfb_ms, download_ms, total_ms, status_code, success, error, ssl_valid, days_until_expiry, url, target_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TaskName, m.Timestamp, m.TcpMs, m.TlsMs, m.TtfbMs, m.DownloadMs, m.TotalMs, m.StatusCode, m.Success, m.Error,
		m.SslValid, m.DaysUntilExpiry, m.URL, m.TargetID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func aggregateHttpGetWindow(ctx context.Context, tx *sql.Tx, taskName string, start, end uint64) (*models.HttpGetAggregate, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			AVG(CASE WHEN success = 1 AND tcp_ms IS NOT NULL THEN tcp_ms END),
			AVG(CASE WHEN success = 1 AND tls_ms IS NOT NULL THEN tls_ms END),
			AVG(CASE WHEN success = 1 AND ttfb_ms IS NOT NULL THEN ttfb_ms END),
			AVG(CASE WHEN success = 1 AND download_ms IS NOT NULL THEN download_ms END),
			AVG(CASE WHEN success = 1 AND total_ms IS NOT NULL THEN total_ms END),
			MAX(CASE WHEN success = 1 AND total_ms IS NOT NULL THEN total_ms END),
			SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
			AVG(CASE WHEN ssl_valid = 1 THEN 1.0 ELSE 0.0 END) * 100.0,
			AVG(CASE WHEN days_until_expiry IS NOT NULL THEN days_until_expiry END),
			(SELECT target_id FROM raw_metric_httpget WHERE task_name = ? AND timestamp >= ? AND timestamp < ? AND target_id IS NOT NULL ORDER BY timestamp ASC, id ASC LIMIT 1)
		FROM raw_metric_httpget WHERE task_name = ? AND timestamp >= ? AND timestamp < ?`,
		taskName, start, end, taskName, start, end)

	var total, successful, failed int64
	var avgTcp, avgTls, avgTtfb, avgDownload, avgTotal, maxTotal, sslValidPct, avgDays sql.NullFloat64
	var targetID sql.NullString
	if err := row.Scan(&total, &avgTcp, &avgTls, &avgTtfb, &avgDownload, &avgTotal, &maxTotal, &successful, &failed, &sslValidPct, &avgDays, &targetID); err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	// Status-code distribution is built with a separate GROUP BY query,
	// the same reason the DNS aggregator does a second scan for
	// resolved addresses: combining it into the first aggregate query
	// would require a comma-joined encoding prone to collisions.
	dist := map[int]int{}
	rows, err := tx.QueryContext(ctx, `
		SELECT status_code, COUNT(*) FROM raw_metric_httpget
		WHERE task_name = ? AND timestamp >= ? AND timestamp < ? AND status_code IS NOT NULL
		GROUP BY status_code`, taskName, start, end)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var code, count int
		if err := rows.Scan(&code, &count); err != nil {
			rows.Close()
			return nil, err
		}
		dist[code] = count
	}
	rows.Close()

	agg := &models.HttpGetAggregate{
		TaskName: taskName, PeriodStart: start, PeriodEnd: end,
		SampleCount:            uint32(successful + failed),
		SuccessRatePercent:     models.RatePercent(uint32(successful), uint32(total)),
		AvgTcpMs:               avgTcp.Float64,
		AvgTlsMs:               avgTls.Float64,
		AvgTtfbMs:              avgTtfb.Float64,
		AvgDownloadMs:          avgDownload.Float64,
		AvgTotalMs:             avgTotal.Float64,
		MaxTotalMs:             maxTotal.Float64,
		Successful:             uint32(successful),
		Failed:                 uint32(failed),
		StatusCodeDistribution: dist,
		SslValidPercent:        sslValidPct.Float64,
		AvgDaysToExpiry:        avgDays.Float64,
	}
	if targetID.Valid {
		agg.TargetID = &targetID.String
	}
	return agg, nil
}

func storeHttpGetAggregate(ctx context.Context, tx *sql.Tx, a *models.HttpGetAggregate) (int64, error) {
	distJSON, err := encodeStatusDistribution(a.StatusCodeDistribution)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agg_metric_httpget
			(task_name, period_start, period_end, sample_count, success_rate_percent, avg_tcp_ms, avg_tls_ms, avg_ttfb_ms, avg_download_ms, avg_total_ms, max_total_ms, successful, failed, status_code_distribution, ssl_valid_percent, avg_days_to_expiry, target_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_name, period_start, period_end) DO UPDATE SET
			sample_count=excluded.sample_count, success_rate_percent=excluded.success_rate_percent,
			avg_tcp_ms=excluded.avg_tcp_ms, avg_tls_ms=excluded.avg_tls_ms, avg_ttfb_ms=excluded.avg_ttfb_ms,
			avg_download_ms=excluded.avg_download_ms, avg_total_ms=excluded.avg_total_ms, max_total_ms=excluded.max_total_ms,
			successful=excluded.successful, failed=excluded.failed, status_code_distribution=excluded.status_code_distribution,
			ssl_valid_percent=excluded.ssl_valid_percent, avg_days_to_expiry=excluded.avg_days_to_expiry, target_id=excluded.target_id`,
		a.TaskName, a.PeriodStart, a.PeriodEnd, a.SampleCount, a.SuccessRatePercent, a.AvgTcpMs, a.AvgTlsMs, a.AvgTtfbMs,
		a.AvgDownloadMs, a.AvgTotalMs, a.MaxTotalMs, a.Successful, a.Failed, distJSON, a.SslValidPercent, a.AvgDaysToExpiry, a.TargetID); err != nil {
		return 0, err
	}
	var rowID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM agg_metric_httpget WHERE task_name = ? AND period_start = ? AND period_end = ?`,
		a.TaskName, a.PeriodStart, a.PeriodEnd).Scan(&rowID)
	return rowID, err
}

func cleanupHttpGet(ctx context.Context, tx *sql.Tx, cutoff int64) (rawDeleted, aggDeleted int64, err error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM raw_metric_httpget WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, 0, err
	}
	rawDeleted, _ = res.RowsAffected()
	aggDeleted, err = retentionCoupledDelete(ctx, tx, "agg_metric_httpget", "http_get", cutoff)
	return rawDeleted, aggDeleted, err
}
