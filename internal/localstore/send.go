package localstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/netprobe/fleet/internal/wire"
)

// LoadForSend loads the aggregate row identified by (kind, rowID) and
// marshals it into the wire tagged-union shape the sender POSTs to the
// server (spec.md §4.5). taskType is the TaskType string to stamp on
// the wire record; callers resolve it from the running config and fall
// back to defaultTaskTypeForKind when the task no longer exists there.
func (s *Store) LoadForSend(kind string, rowID int64, taskType string) (wire.AggregatedMetric, error) {
	switch kind {
	case kindPing:
		return s.loadPingForSend(rowID, taskType)
	case kindTcp:
		return s.loadTcpForSend(rowID, taskType)
	case kindTls:
		return s.loadTlsForSend(rowID, taskType)
	case kindHttpGet:
		return s.loadHttpGetForSend(rowID, taskType)
	case kindHttpContent:
		return s.loadHttpContentForSend(rowID, taskType)
	case kindDns:
		return s.loadDnsForSend(rowID, taskType)
	case kindSnmp:
		return s.loadSnmpForSend(rowID, taskType)
	case kindBandwidth:
		return s.loadBandwidthForSend(rowID, taskType)
	case kindSql:
		return loadSqlForSend(s, rowID, taskType)
	default:
		return wire.AggregatedMetric{}, fmt.Errorf("load for send: unknown metric kind %q", kind)
	}
}

func marshalMetric(taskName, taskType string, periodStart, periodEnd uint64, sampleCount uint32, data any) (wire.AggregatedMetric, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return wire.AggregatedMetric{}, fmt.Errorf("marshal %s aggregate data: %w", taskType, err)
	}
	return wire.AggregatedMetric{
		TaskName:    taskName,
		TaskType:    taskType,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		SampleCount: sampleCount,
		Data:        raw,
	}, nil
}

func (s *Store) loadPingForSend(rowID int64, taskType string) (wire.AggregatedMetric, error) {
	var taskName string
	var periodStart, periodEnd uint64
	var sampleCount uint32
	var d wire.PingAggregateData
	var domain, targetID sql.NullString
	err := s.db.QueryRow(`SELECT task_name, period_start, period_end, sample_count, avg_latency_ms, max_latency_ms, min_latency_ms, packet_loss_percent, successful_pings, failed_pings, domain, target_id FROM agg_metric_ping WHERE id = ?`, rowID).
		Scan(&taskName, &periodStart, &periodEnd, &sampleCount, &d.AvgLatencyMs, &d.MaxLatencyMs, &d.MinLatencyMs, &d.PacketLossPercent, &d.SuccessfulPings, &d.FailedPings, &domain, &targetID)
	if err != nil {
		return wire.AggregatedMetric{}, err
	}
	if domain.Valid {
		d.Domain = &domain.String
	}
	if targetID.Valid {
		d.TargetID = &targetID.String
	}
	return marshalMetric(taskName, taskType, periodStart, periodEnd, sampleCount, d)
}

func (s *Store) loadTcpForSend(rowID int64, taskType string) (wire.AggregatedMetric, error) {
	var taskName string
	var periodStart, periodEnd uint64
	var sampleCount uint32
	var d wire.TcpAggregateData
	var host, targetID sql.NullString
	err := s.db.QueryRow(`SELECT task_name, period_start, period_end, sample_count, avg_connect_ms, max_connect_ms, min_connect_ms, successful, failed, failure_percent, host, target_id FROM agg_metric_tcp WHERE id = ?`, rowID).
		Scan(&taskName, &periodStart, &periodEnd, &sampleCount, &d.AvgConnectMs, &d.MaxConnectMs, &d.MinConnectMs, &d.Successful, &d.Failed, &d.FailurePercent, &host, &targetID)
	if err != nil {
		return wire.AggregatedMetric{}, err
	}
	if host.Valid {
		d.Host = &host.String
	}
	if targetID.Valid {
		d.TargetID = &targetID.String
	}
	return marshalMetric(taskName, taskType, periodStart, periodEnd, sampleCount, d)
}

func (s *Store) loadTlsForSend(rowID int64, taskType string) (wire.AggregatedMetric, error) {
	var taskName string
	var periodStart, periodEnd uint64
	var sampleCount uint32
	var d wire.TlsAggregateData
	var targetID sql.NullString
	err := s.db.QueryRow(`SELECT task_name, period_start, period_end, sample_count, success_rate_percent, avg_tcp_ms, avg_tls_ms, successful, failed, ssl_valid_percent, avg_days_to_expiry, target_id FROM agg_metric_tls WHERE id = ?`, rowID).
		Scan(&taskName, &periodStart, &periodEnd, &sampleCount, &d.SuccessRatePercent, &d.AvgTcpMs, &d.AvgTlsMs, &d.Successful, &d.Failed, &d.SslValidPercent, &d.AvgDaysToExpiry, &targetID)
	if err != nil {
		return wire.AggregatedMetric{}, err
	}
	if targetID.Valid {
		d.TargetID = &targetID.String
	}
	return marshalMetric(taskName, taskType, periodStart, periodEnd, sampleCount, d)
}

func (s *Store) loadHttpGetForSend(rowID int64, taskType string) (wire.AggregatedMetric, error) {
	var taskName string
	var periodStart, periodEnd uint64
	var sampleCount uint32
	var d wire.HttpGetAggregateData
	var distJSON sql.NullString
	var targetID sql.NullString
	err := s.db.QueryRow(`SELECT task_name, period_start, period_end, sample_count, success_rate_percent, avg_tcp_ms, avg_tls_ms, avg_ttfb_ms, avg_download_ms, avg_total_ms, max_total_ms, successful, failed, status_code_distribution, ssl_valid_percent, avg_days_to_expiry, target_id FROM agg_metric_httpget WHERE id = ?`, rowID).
		Scan(&taskName, &periodStart, &periodEnd, &sampleCount, &d.SuccessRatePercent, &d.AvgTcpMs, &d.AvgTlsMs, &d.AvgTtfbMs, &d.AvgDownloadMs, &d.AvgTotalMs, &d.MaxTotalMs, &d.Successful, &d.Failed, &distJSON, &d.SslValidPercent, &d.AvgDaysToExpiry, &targetID)
	if err != nil {
		return wire.AggregatedMetric{}, err
	}
	if distJSON.Valid && distJSON.String != "" {
		var dist map[int]int
		if err := json.Unmarshal([]byte(distJSON.String), &dist); err != nil {
			return wire.AggregatedMetric{}, fmt.Errorf("decode status_code_distribution: %w", err)
		}
		d.StatusCodeDistribution = wire.NewStatusCodeDistribution(dist)
	}
	if targetID.Valid {
		d.TargetID = &targetID.String
	}
	return marshalMetric(taskName, taskType, periodStart, periodEnd, sampleCount, d)
}

func (s *Store) loadHttpContentForSend(rowID int64, taskType string) (wire.AggregatedMetric, error) {
	var taskName string
	var periodStart, periodEnd uint64
	var sampleCount uint32
	var d wire.HttpContentAggregateData
	var targetID sql.NullString
	err := s.db.QueryRow(`SELECT task_name, period_start, period_end, sample_count, success_rate_percent, avg_total_ms, max_total_ms, avg_total_size, regexp_match_rate_percent, successful, failed, regexp_matched_count, target_id FROM agg_metric_httpcontent WHERE id = ?`, rowID).
		Scan(&taskName, &periodStart, &periodEnd, &sampleCount, &d.SuccessRatePercent, &d.AvgTotalMs, &d.MaxTotalMs, &d.AvgTotalSize, &d.RegexpMatchRatePercent, &d.Successful, &d.Failed, &d.RegexpMatchedCount, &targetID)
	if err != nil {
		return wire.AggregatedMetric{}, err
	}
	if targetID.Valid {
		d.TargetID = &targetID.String
	}
	return marshalMetric(taskName, taskType, periodStart, periodEnd, sampleCount, d)
}

func (s *Store) loadDnsForSend(rowID int64, taskType string) (wire.AggregatedMetric, error) {
	var taskName string
	var periodStart, periodEnd uint64
	var sampleCount uint32
	var d wire.DnsAggregateData
	var addrsJSON sql.NullString
	var targetID sql.NullString
	err := s.db.QueryRow(`SELECT task_name, period_start, period_end, sample_count, success_rate_percent, avg_query_time_ms, max_query_time_ms, successful_queries, failed_queries, all_resolved_addresses, domain_queried, correct_resolution_percent, target_id FROM agg_metric_dns WHERE id = ?`, rowID).
		Scan(&taskName, &periodStart, &periodEnd, &sampleCount, &d.SuccessRatePercent, &d.AvgQueryTimeMs, &d.MaxQueryTimeMs, &d.SuccessfulQueries, &d.FailedQueries, &addrsJSON, &d.DomainQueried, &d.CorrectResolutionPercent, &targetID)
	if err != nil {
		return wire.AggregatedMetric{}, err
	}
	if addrsJSON.Valid && addrsJSON.String != "" {
		addrs, err := decodeStringSlice(addrsJSON.String)
		if err != nil {
			return wire.AggregatedMetric{}, err
		}
		d.AllResolvedAddresses = addrs
	}
	if targetID.Valid {
		d.TargetID = &targetID.String
	}
	return marshalMetric(taskName, taskType, periodStart, periodEnd, sampleCount, d)
}

func (s *Store) loadSnmpForSend(rowID int64, taskType string) (wire.AggregatedMetric, error) {
	var taskName string
	var periodStart, periodEnd uint64
	var sampleCount uint32
	var d wire.SnmpAggregateData
	var firstValue, firstValueType sql.NullString
	err := s.db.QueryRow(`SELECT task_name, period_start, period_end, sample_count, success_rate_percent, avg_response_ms, successful, failed, first_value, first_value_type, oid_queried FROM agg_metric_snmp WHERE id = ?`, rowID).
		Scan(&taskName, &periodStart, &periodEnd, &sampleCount, &d.SuccessRatePercent, &d.AvgResponseMs, &d.Successful, &d.Failed, &firstValue, &firstValueType, &d.OidQueried)
	if err != nil {
		return wire.AggregatedMetric{}, err
	}
	if firstValue.Valid {
		d.FirstValue = &firstValue.String
	}
	if firstValueType.Valid {
		d.FirstValueType = &firstValueType.String
	}
	return marshalMetric(taskName, taskType, periodStart, periodEnd, sampleCount, d)
}

func (s *Store) loadBandwidthForSend(rowID int64, taskType string) (wire.AggregatedMetric, error) {
	var taskName string
	var periodStart, periodEnd uint64
	var sampleCount uint32
	var d wire.BandwidthAggregateData
	err := s.db.QueryRow(`SELECT task_name, period_start, period_end, sample_count, avg_bandwidth_mbps, max_bandwidth_mbps, min_bandwidth_mbps, successful, failed FROM agg_metric_bandwidth WHERE id = ?`, rowID).
		Scan(&taskName, &periodStart, &periodEnd, &sampleCount, &d.AvgBandwidthMbps, &d.MaxBandwidthMbps, &d.MinBandwidthMbps, &d.Successful, &d.Failed)
	if err != nil {
		return wire.AggregatedMetric{}, err
	}
	return marshalMetric(taskName, taskType, periodStart, periodEnd, sampleCount, d)
}
