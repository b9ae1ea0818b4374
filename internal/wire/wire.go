// Package wire holds the JSON types exchanged between agent and server.
//
// Discriminator strings mirror the Rust reference implementation's
// `shared::api` module. The config verify/upload/error request types
// use their own field names (e.g. config_checksum, error), so they are
// not interchangeable with that module's versions.
package wire

import "encoding/json"

// ConfigStatus reports whether the caller's config checksum matches the
// server-held one.
type ConfigStatus string

const (
	ConfigUpToDate ConfigStatus = "up_to_date"
	ConfigStale    ConfigStatus = "stale"
)

// BandwidthTestAction tells an agent whether it may start its download now.
type BandwidthTestAction string

const (
	BandwidthProceed BandwidthTestAction = "proceed"
	BandwidthDelay   BandwidthTestAction = "delay"
)

// Header and endpoint names shared by client and server.
const (
	HeaderAPIKey  = "X-API-Key"
	HeaderAgentID = "X-Agent-Id"

	EndpointMetrics           = "/api/v1/metrics"
	EndpointConfigs           = "/api/v1/configs"
	EndpointConfigError       = "/api/v1/config/error"
	EndpointConfigVerify      = "/api/v1/config/verify"
	EndpointConfigUpload      = "/api/v1/config/upload"
	EndpointBandwidthTest     = "/api/v1/bandwidth_test"
	EndpointBandwidthDownload = "/api/v1/bandwidth_download"
)

// MetricsRequest is the body of POST /api/v1/metrics.
type MetricsRequest struct {
	AgentID        string             `json:"agent_id"`
	TimestampUTC   string             `json:"timestamp_utc"`
	ConfigChecksum string             `json:"config_checksum"`
	Metrics        []AggregatedMetric `json:"metrics"`
	AgentVersion   *string            `json:"agent_version,omitempty"`
}

// MetricsResponse is the response to a metrics submission.
type MetricsResponse struct {
	Status       string       `json:"status"`
	ConfigStatus ConfigStatus `json:"config_status"`
}

func UpToDateMetricsResponse() MetricsResponse {
	return MetricsResponse{Status: "ok", ConfigStatus: ConfigUpToDate}
}

func StaleMetricsResponse() MetricsResponse {
	return MetricsResponse{Status: "ok", ConfigStatus: ConfigStale}
}

// BandwidthTestRequest is the body of POST /api/v1/bandwidth_test.
type BandwidthTestRequest struct {
	AgentID      string `json:"agent_id"`
	TimestampUTC string `json:"timestamp_utc"`
}

// BandwidthTestResponse tells the requesting agent whether to proceed or wait.
type BandwidthTestResponse struct {
	Status         string              `json:"status"`
	Action         BandwidthTestAction `json:"action"`
	DelaySeconds   *uint32             `json:"delay_seconds,omitempty"`
	DataSizeBytes  *uint64             `json:"data_size_bytes,omitempty"`
}

func ProceedResponse(dataSizeBytes uint64) BandwidthTestResponse {
	return BandwidthTestResponse{Status: "ok", Action: BandwidthProceed, DataSizeBytes: &dataSizeBytes}
}

func DelayResponse(delaySeconds uint32) BandwidthTestResponse {
	return BandwidthTestResponse{Status: "ok", Action: BandwidthDelay, DelaySeconds: &delaySeconds}
}

// ConfigsResponse carries base64-encoded configuration file contents.
type ConfigsResponse struct {
	AgentTOML string `json:"agent_toml"`
	TasksTOML string `json:"tasks_toml"`
}

// ConfigVerifyRequest asks the server whether a checksum is current.
type ConfigVerifyRequest struct {
	AgentID        string `json:"agent_id"`
	ConfigChecksum string `json:"config_checksum"`
}

// ConfigVerifyResponse optionally carries a gzipped+base64 tasks file when stale.
type ConfigVerifyResponse struct {
	ConfigStatus    ConfigStatus `json:"config_status"`
	TasksTOMLGzip   *string      `json:"tasks_toml_gzip,omitempty"`
}

// ConfigUploadRequest lets an agent push a new tasks file.
type ConfigUploadRequest struct {
	AgentID   string `json:"agent_id"`
	TasksTOML string `json:"tasks_toml"`
}

// ConfigUploadResponse acknowledges a config upload.
type ConfigUploadResponse struct {
	Status string `json:"status"`
}

// ConfigErrorRequest lets an agent report a local config problem.
type ConfigErrorRequest struct {
	AgentID      string `json:"agent_id"`
	Error        string `json:"error"`
	TimestampUTC string `json:"timestamp_utc"`
}

// StatusCodeDistribution serializes as an array of [code, count] pairs,
// never as a string-keyed object — see spec note on HashMap key
// serialization. Preserve this shape verbatim on the wire.
type StatusCodeDistribution [][2]int

func NewStatusCodeDistribution(counts map[int]int) StatusCodeDistribution {
	pairs := make(StatusCodeDistribution, 0, len(counts))
	for code, count := range counts {
		pairs = append(pairs, [2]int{code, count})
	}
	return pairs
}

func (d StatusCodeDistribution) ToMap() map[int]int {
	m := make(map[int]int, len(d))
	for _, pair := range d {
		m[pair[0]] = pair[1]
	}
	return m
}

// AggregatedMetric is the tagged-union wire form of one aggregate row.
// Data holds the kind-specific payload (one of the *AggregateData types
// below) as raw JSON, selected by TaskType.
type AggregatedMetric struct {
	TaskName     string          `json:"task_name"`
	TaskType     string          `json:"task_type"`
	PeriodStart  uint64          `json:"period_start"`
	PeriodEnd    uint64          `json:"period_end"`
	SampleCount  uint32          `json:"sample_count"`
	Data         json.RawMessage `json:"data"`
}

// PingAggregateData is the wire payload for TaskType "ping".
type PingAggregateData struct {
	AvgLatencyMs      float64 `json:"avg_latency_ms"`
	MaxLatencyMs      float64 `json:"max_latency_ms"`
	MinLatencyMs      float64 `json:"min_latency_ms"`
	PacketLossPercent float64 `json:"packet_loss_percent"`
	SuccessfulPings   uint32  `json:"successful_pings"`
	FailedPings       uint32  `json:"failed_pings"`
	Domain            *string `json:"domain,omitempty"`
	TargetID          *string `json:"target_id,omitempty"`
}

// TcpAggregateData is the wire payload for TaskType "tcp".
type TcpAggregateData struct {
	AvgConnectMs    float64 `json:"avg_connect_ms"`
	MaxConnectMs    float64 `json:"max_connect_ms"`
	MinConnectMs    float64 `json:"min_connect_ms"`
	Successful      uint32  `json:"successful"`
	Failed          uint32  `json:"failed"`
	FailurePercent  float64 `json:"failure_percent"`
	Host            *string `json:"host,omitempty"`
	TargetID        *string `json:"target_id,omitempty"`
}

// TlsAggregateData is the wire payload for TaskType "tls_handshake".
type TlsAggregateData struct {
	SuccessRatePercent float64 `json:"success_rate_percent"`
	AvgTcpMs           float64 `json:"avg_tcp_ms"`
	AvgTlsMs           float64 `json:"avg_tls_ms"`
	Successful         uint32  `json:"successful"`
	Failed             uint32  `json:"failed"`
	SslValidPercent    float64 `json:"ssl_valid_percent"`
	AvgDaysToExpiry    float64 `json:"avg_days_to_expiry"`
	TargetID           *string `json:"target_id,omitempty"`
}

// HttpGetAggregateData is the wire payload for TaskType "http_get".
type HttpGetAggregateData struct {
	SuccessRatePercent    float64                `json:"success_rate_percent"`
	AvgTcpMs              float64                `json:"avg_tcp_ms"`
	AvgTlsMs              float64                `json:"avg_tls_ms"`
	AvgTtfbMs             float64                `json:"avg_ttfb_ms"`
	AvgDownloadMs         float64                `json:"avg_download_ms"`
	AvgTotalMs            float64                `json:"avg_total_ms"`
	MaxTotalMs            float64                `json:"max_total_ms"`
	Successful            uint32                 `json:"successful"`
	Failed                uint32                 `json:"failed"`
	StatusCodeDistribution StatusCodeDistribution `json:"status_code_distribution"`
	SslValidPercent       float64                `json:"ssl_valid_percent"`
	AvgDaysToExpiry       float64                `json:"avg_days_to_expiry"`
	TargetID              *string                `json:"target_id,omitempty"`
}

// HttpContentAggregateData is the wire payload for TaskType "http_content".
type HttpContentAggregateData struct {
	SuccessRatePercent     float64 `json:"success_rate_percent"`
	AvgTotalMs             float64 `json:"avg_total_ms"`
	MaxTotalMs             float64 `json:"max_total_ms"`
	AvgTotalSize           float64 `json:"avg_total_size"`
	RegexpMatchRatePercent float64 `json:"regexp_match_rate_percent"`
	Successful             uint32  `json:"successful"`
	Failed                 uint32  `json:"failed"`
	RegexpMatchedCount     uint32  `json:"regexp_matched_count"`
	TargetID               *string `json:"target_id,omitempty"`
}

// DnsAggregateData is the wire payload for TaskType "dns_query"/"dns_query_doh".
type DnsAggregateData struct {
	SuccessRatePercent       float64  `json:"success_rate_percent"`
	AvgQueryTimeMs           float64  `json:"avg_query_time_ms"`
	MaxQueryTimeMs           float64  `json:"max_query_time_ms"`
	SuccessfulQueries        uint32   `json:"successful_queries"`
	FailedQueries            uint32   `json:"failed_queries"`
	AllResolvedAddresses     []string `json:"all_resolved_addresses"`
	DomainQueried            string   `json:"domain_queried"`
	CorrectResolutionPercent float64  `json:"correct_resolution_percent"`
	TargetID                 *string  `json:"target_id,omitempty"`
}

// SnmpAggregateData is the wire payload for TaskType "snmp".
type SnmpAggregateData struct {
	SuccessRatePercent float64 `json:"success_rate_percent"`
	AvgResponseMs      float64 `json:"avg_response_ms"`
	Successful         uint32  `json:"successful"`
	Failed             uint32  `json:"failed"`
	FirstValue         *string `json:"first_value,omitempty"`
	FirstValueType     *string `json:"first_value_type,omitempty"`
	OidQueried         string  `json:"oid_queried"`
}

// BandwidthAggregateData is the wire payload for TaskType "bandwidth".
type BandwidthAggregateData struct {
	AvgBandwidthMbps float64 `json:"avg_bandwidth_mbps"`
	MaxBandwidthMbps float64 `json:"max_bandwidth_mbps"`
	MinBandwidthMbps float64 `json:"min_bandwidth_mbps"`
	Successful       uint32  `json:"successful"`
	Failed           uint32  `json:"failed"`
}

// SqlAggregateData is the wire payload for TaskType "sql_query".
type SqlAggregateData struct {
	SuccessRatePercent float64  `json:"success_rate_percent"`
	AvgTotalMs         float64  `json:"avg_total_ms"`
	MaxTotalMs         float64  `json:"max_total_ms"`
	AvgRowCount        float64  `json:"avg_row_count"`
	MaxRowCount        float64  `json:"max_row_count"`
	AvgValue           *float64 `json:"avg_value,omitempty"`
	MinValue           *float64 `json:"min_value,omitempty"`
	MaxValue           *float64 `json:"max_value,omitempty"`
	Successful         uint32   `json:"successful"`
	Failed             uint32   `json:"failed"`
	JsonTruncatedCount uint32   `json:"json_truncated_count"`
}
