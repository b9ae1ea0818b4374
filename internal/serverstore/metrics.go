package serverstore

import (
	"context"

	"github.com/netprobe/fleet/internal/wire"
)

func (s *Store) upsertPing(ctx context.Context, agentID string, m wire.AggregatedMetric, d wire.PingAggregateData) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO agg_metric_ping (
			agent_id, task_name, period_start, period_end, sample_count,
			avg_latency_ms, max_latency_ms, min_latency_ms, packet_loss_percent,
			successful_pings, failed_pings, domain, target_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (agent_id, task_name, period_start, period_end) DO UPDATE SET
			sample_count = $5, avg_latency_ms = $6, max_latency_ms = $7,
			min_latency_ms = $8, packet_loss_percent = $9,
			successful_pings = $10, failed_pings = $11, domain = $12, target_id = $13`,
		agentID, m.TaskName, m.PeriodStart, m.PeriodEnd, m.SampleCount,
		d.AvgLatencyMs, d.MaxLatencyMs, d.MinLatencyMs, d.PacketLossPercent,
		d.SuccessfulPings, d.FailedPings, d.Domain, d.TargetID)
	return err
}

func (s *Store) upsertTcp(ctx context.Context, agentID string, m wire.AggregatedMetric, d wire.TcpAggregateData) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO agg_metric_tcp (
			agent_id, task_name, period_start, period_end, sample_count,
			avg_connect_ms, max_connect_ms, min_connect_ms, successful, failed,
			failure_percent, host, target_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (agent_id, task_name, period_start, period_end) DO UPDATE SET
			sample_count = $5, avg_connect_ms = $6, max_connect_ms = $7,
			min_connect_ms = $8, successful = $9, failed = $10,
			failure_percent = $11, host = $12, target_id = $13`,
		agentID, m.TaskName, m.PeriodStart, m.PeriodEnd, m.SampleCount,
		d.AvgConnectMs, d.MaxConnectMs, d.MinConnectMs, d.Successful, d.Failed,
		d.FailurePercent, d.Host, d.TargetID)
	return err
}

func (s *Store) upsertTls(ctx context.Context, agentID string, m wire.AggregatedMetric, d wire.TlsAggregateData) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO agg_metric_tls (
			agent_id, task_name, period_start, period_end, sample_count,
			success_rate_percent, avg_tcp_ms, avg_tls_ms, successful, failed,
			ssl_valid_percent, avg_days_to_expiry, target_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (agent_id, task_name, period_start, period_end) DO UPDATE SET
			sample_count = $5, success_rate_percent = $6, avg_tcp_ms = $7,
			avg_tls_ms = $8, successful = $9, failed = $10,
			ssl_valid_percent = $11, avg_days_to_expiry = $12, target_id = $13`,
		agentID, m.TaskName, m.PeriodStart, m.PeriodEnd, m.SampleCount,
		d.SuccessRatePercent, d.AvgTcpMs, d.AvgTlsMs, d.Successful, d.Failed,
		d.SslValidPercent, d.AvgDaysToExpiry, d.TargetID)
	return err
}

func (s *Store) upsertHttpGet(ctx context.Context, agentID string, m wire.AggregatedMetric, d wire.HttpGetAggregateData) error {
	dist, err := marshalDistribution(d.StatusCodeDistribution)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO agg_metric_httpget (
			agent_id, task_name, period_start, period_end, sample_count,
			success_rate_percent, avg_tcp_ms, avg_tls_ms, avg_ttfb_ms,
			avg_download_ms, avg_total_ms, max_total_ms, successful, failed,
			status_code_distribution, ssl_valid_percent, avg_days_to_expiry, target_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (agent_id, task_name, period_start, period_end) DO UPDATE SET
			sample_count = $5, success_rate_percent = $6, avg_tcp_ms = $7,
			avg_tls_ms = $8, avg_ttfb_ms = $9, avg_download_ms = $10,
			avg_total_ms = $11, max_total_ms = $12, successful = $13, failed = $14,
			status_code_distribution = $15, ssl_valid_percent = $16,
			avg_days_to_expiry = $17, target_id = $18`,
		agentID, m.TaskName, m.PeriodStart, m.PeriodEnd, m.SampleCount,
		d.SuccessRatePercent, d.AvgTcpMs, d.AvgTlsMs, d.AvgTtfbMs,
		d.AvgDownloadMs, d.AvgTotalMs, d.MaxTotalMs, d.Successful, d.Failed,
		dist, d.SslValidPercent, d.AvgDaysToExpiry, d.TargetID)
	return err
}

func (s *Store) upsertHttpContent(ctx context.Context, agentID string, m wire.AggregatedMetric, d wire.HttpContentAggregateData) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO agg_metric_httpcontent (
			agent_id, task_name, period_start, period_end, sample_count,
			success_rate_percent, avg_total_ms, max_total_ms, avg_total_size,
			regexp_match_rate_percent, successful, failed, regexp_matched_count, target_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (agent_id, task_name, period_start, period_end) DO UPDATE SET
			sample_count = $5, success_rate_percent = $6, avg_total_ms = $7,
			max_total_ms = $8, avg_total_size = $9, regexp_match_rate_percent = $10,
			successful = $11, failed = $12, regexp_matched_count = $13, target_id = $14`,
		agentID, m.TaskName, m.PeriodStart, m.PeriodEnd, m.SampleCount,
		d.SuccessRatePercent, d.AvgTotalMs, d.MaxTotalMs, d.AvgTotalSize,
		d.RegexpMatchRatePercent, d.Successful, d.Failed, d.RegexpMatchedCount, d.TargetID)
	return err
}

func (s *Store) upsertDns(ctx context.Context, agentID string, m wire.AggregatedMetric, d wire.DnsAggregateData) error {
	addrs, err := marshalStrings(d.AllResolvedAddresses)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO agg_metric_dns (
			agent_id, task_name, period_start, period_end, sample_count,
			success_rate_percent, avg_query_time_ms, max_query_time_ms,
			successful_queries, failed_queries, all_resolved_addresses,
			domain_queried, correct_resolution_percent, target_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (agent_id, task_name, period_start, period_end) DO UPDATE SET
			sample_count = $5, success_rate_percent = $6, avg_query_time_ms = $7,
			max_query_time_ms = $8, successful_queries = $9, failed_queries = $10,
			all_resolved_addresses = $11, domain_queried = $12,
			correct_resolution_percent = $13, target_id = $14`,
		agentID, m.TaskName, m.PeriodStart, m.PeriodEnd, m.SampleCount,
		d.SuccessRatePercent, d.AvgQueryTimeMs, d.MaxQueryTimeMs,
		d.SuccessfulQueries, d.FailedQueries, addrs,
		d.DomainQueried, d.CorrectResolutionPercent, d.TargetID)
	return err
}

func (s *Store) upsertSnmp(ctx context.Context, agentID string, m wire.AggregatedMetric, d wire.SnmpAggregateData) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO agg_metric_snmp (
			agent_id, task_name, period_start, period_end, sample_count,
			success_rate_percent, avg_response_ms, successful, failed,
			first_value, first_value_type, oid_queried
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (agent_id, task_name, period_start, period_end) DO UPDATE SET
			sample_count = $5, success_rate_percent = $6, avg_response_ms = $7,
			successful = $8, failed = $9, first_value = $10,
			first_value_type = $11, oid_queried = $12`,
		agentID, m.TaskName, m.PeriodStart, m.PeriodEnd, m.SampleCount,
		d.SuccessRatePercent, d.AvgResponseMs, d.Successful, d.Failed,
		d.FirstValue, d.FirstValueType, d.OidQueried)
	return err
}

func (s *Store) upsertBandwidth(ctx context.Context, agentID string, m wire.AggregatedMetric, d wire.BandwidthAggregateData) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO agg_metric_bandwidth (
			agent_id, task_name, period_start, period_end, sample_count,
			avg_bandwidth_mbps, max_bandwidth_mbps, min_bandwidth_mbps, successful, failed
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (agent_id, task_name, period_start, period_end) DO UPDATE SET
			sample_count = $5, avg_bandwidth_mbps = $6, max_bandwidth_mbps = $7,
			min_bandwidth_mbps = $8, successful = $9, failed = $10`,
		agentID, m.TaskName, m.PeriodStart, m.PeriodEnd, m.SampleCount,
		d.AvgBandwidthMbps, d.MaxBandwidthMbps, d.MinBandwidthMbps, d.Successful, d.Failed)
	return err
}

func (s *Store) upsertSql(ctx context.Context, agentID string, m wire.AggregatedMetric, d wire.SqlAggregateData) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO agg_metric_sql (
			agent_id, task_name, period_start, period_end, sample_count,
			success_rate_percent, avg_total_ms, max_total_ms, avg_row_count,
			max_row_count, avg_value, min_value, max_value, successful, failed,
			json_truncated_count
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (agent_id, task_name, period_start, period_end) DO UPDATE SET
			sample_count = $5, success_rate_percent = $6, avg_total_ms = $7,
			max_total_ms = $8, avg_row_count = $9, max_row_count = $10,
			avg_value = $11, min_value = $12, max_value = $13,
			successful = $14, failed = $15, json_truncated_count = $16`,
		agentID, m.TaskName, m.PeriodStart, m.PeriodEnd, m.SampleCount,
		d.SuccessRatePercent, d.AvgTotalMs, d.MaxTotalMs, d.AvgRowCount,
		d.MaxRowCount, nullFloat(d.AvgValue), nullFloat(d.MinValue), nullFloat(d.MaxValue),
		d.Successful, d.Failed, d.JsonTruncatedCount)
	return err
}
