package localstore

import (
	"context"
	"database/sql"

	"github.com/netprobe/fleet/internal/models"
)

func createDnsTables(ctx context.Context, db *sql.DB) error {
	return exec(ctx, db,
		`CREATE TABLE IF NOT EXISTS raw_metric_dns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			query_time_ms REAL,
			record_count INTEGER,
			resolved_addresses TEXT,
			domain_queried TEXT NOT NULL,
			expected_ip TEXT,
			resolved_ip TEXT,
			correct_resolution BOOLEAN NOT NULL,
			success BOOLEAN NOT NULL,
			error TEXT,
			target_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS agg_metric_dns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name TEXT NOT NULL,
			period_start INTEGER NOT NULL,
			period_end INTEGER NOT NULL,
			sample_count INTEGER NOT NULL,
			success_rate_percent REAL NOT NULL,
			avg_query_time_ms REAL NOT NULL,
			max_query_time_ms REAL NOT NULL,
			successful_queries INTEGER NOT NULL,
			failed_queries INTEGER NOT NULL,
			all_resolved_addresses TEXT,
			domain_queried TEXT NOT NULL,
			correct_resolution_percent REAL NOT NULL,
			target_id TEXT,
			UNIQUE(task_name, period_start, period_end)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_dns_timestamp ON raw_metric_dns(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_dns_task ON raw_metric_dns(task_name, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_agg_dns_period ON agg_metric_dns(period_start, period_end)`,
	)
}

func (s *Store) InsertDnsRaw(ctx context.Context, m models.RawDnsSample) (int64, error) {
	addrs, err := encodeStringSlice(m.ResolvedAddresses)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_metric_dns (task_name, timestamp, query_time_ms, record_count, resolved_addresses, domain_queried, expected_ip, resolved_ip, correct_resolution, success, error, target_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TaskName, m.Timestamp, m.QueryTimeMs, m.RecordCount, addrs, m.DomainQueried, m.ExpectedIP, m.ResolvedIP,
		m.CorrectResolution, m.Success, m.Error, m.TargetID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// aggregateDnsWindow mirrors db_dns.rs's two-query approach: the window's
// scalar stats come from one query, and the union of all resolved
// addresses seen in the window comes from a second scan, since
// GROUP_CONCAT-ing JSON arrays collides on the comma separator.
func aggregateDnsWindow(ctx context.Context, tx *sql.Tx, taskName string, start, end uint64) (*models.DnsAggregate, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			AVG(CASE WHEN success = 1 AND query_time_ms IS NOT NULL THEN query_time_ms END),
			MAX(CASE WHEN success = 1 AND query_time_ms IS NOT NULL THEN query_time_ms END),
			SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
			AVG(CASE WHEN success = 1 THEN (CASE WHEN correct_resolution = 1 THEN 1.0 ELSE 0.0 END) END) * 100.0,
			(SELECT domain_queried FROM raw_metric_dns WHERE task_name = ? AND timestamp >= ? AND timestamp < ? ORDER BY timestamp ASC, id ASC LIMIT 1),
			(SELECT target_id FROM raw_metric_dns WHERE task_name = ? AND timestamp >= ? AND timestamp < ? AND target_id IS NOT NULL ORDER BY timestamp ASC, id ASC LIMIT 1)
		FROM raw_metric_dns WHERE task_name = ? AND timestamp >= ? AND timestamp < ?`,
		taskName, start, end, taskName, start, end, taskName, start, end)

	var total, successful, failed int64
	var avgQ, maxQ, correctPct sql.NullFloat64
	var domain, targetID sql.NullString
	if err := row.Scan(&total, &avgQ, &maxQ, &successful, &failed, &correctPct, &domain, &targetID); err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	addrSet := map[string]struct{}{}
	rows, err := tx.QueryContext(ctx, `SELECT resolved_addresses FROM raw_metric_dns
		WHERE task_name = ? AND timestamp >= ? AND timestamp < ? AND resolved_addresses IS NOT NULL AND resolved_addresses != ''`,
		taskName, start, end)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, err
		}
		addrs, err := decodeStringSlice(raw)
		if err != nil {
			rows.Close()
			return nil, err
		}
		for _, a := range addrs {
			addrSet[a] = struct{}{}
		}
	}
	rows.Close()

	all := make([]string, 0, len(addrSet))
	for a := range addrSet {
		all = append(all, a)
	}

	correctResolutionPercent := models.DefaultCorrectResolutionPercent
	if failed+successful > 0 && successful > 0 {
		correctResolutionPercent = correctPct.Float64
	}

	agg := &models.DnsAggregate{
		TaskName: taskName, PeriodStart: start, PeriodEnd: end,
		SampleCount:              uint32(successful + failed),
		SuccessRatePercent:       models.RatePercent(uint32(successful), uint32(total)),
		AvgQueryTimeMs:           avgQ.Float64,
		MaxQueryTimeMs:           maxQ.Float64,
		SuccessfulQueries:        uint32(successful),
		FailedQueries:            uint32(failed),
		AllResolvedAddresses:     all,
		DomainQueried:            domain.String,
		CorrectResolutionPercent: correctResolutionPercent,
	}
	if targetID.Valid {
		agg.TargetID = &targetID.String
	}
	return agg, nil
}

func storeDnsAggregate(ctx context.Context, tx *sql.Tx, a *models.DnsAggregate) (int64, error) {
	addrsJSON, err := encodeStringSlice(a.AllResolvedAddresses)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agg_metric_dns
			(task_name, period_start, period_end, sample_count, success_rate_percent, avg_query_time_ms, max_query_time_ms, successful_queries, failed_queries, all_resolved_addresses, domain_queried, correct_resolution_percent, target_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_name, period_start, period_end) DO UPDATE SET
			sample_count=excluded.sample_count, success_rate_percent=excluded.success_rate_percent,
			avg_query_time_ms=excluded.avg_query_time_ms, max_query_time_ms=excluded.max_query_time_ms,
			successful_queries=excluded.successful_queries, failed_queries=excluded.failed_queries,
			all_resolved_addresses=excluded.all_resolved_addresses, domain_queried=excluded.domain_queried,
			correct_resolution_percent=excluded.correct_resolution_percent, target_id=excluded.target_id`,
		a.TaskName, a.PeriodStart, a.PeriodEnd, a.SampleCount, a.SuccessRatePercent, a.AvgQueryTimeMs, a.MaxQueryTimeMs,
		a.SuccessfulQueries, a.FailedQueries, addrsJSON, a.DomainQueried, a.CorrectResolutionPercent, a.TargetID); err != nil {
		return 0, err
	}
	var rowID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM agg_metric_dns WHERE task_name = ? AND period_start = ? AND period_end = ?`,
		a.TaskName, a.PeriodStart, a.PeriodEnd).Scan(&rowID)
	return rowID, err
}

func cleanupDns(ctx context.Context, tx *sql.Tx, cutoff int64) (rawDeleted, aggDeleted int64, err error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM raw_metric_dns WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, 0, err
	}
	rawDeleted, _ = res.RowsAffected()
	aggDeleted, err = retentionCoupledDelete(ctx, tx, "agg_metric_dns", "dns", cutoff)
	return rawDeleted, aggDeleted, err
}
