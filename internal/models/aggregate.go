package models

// AggregateKey identifies one aggregate row within an agent's store.
type AggregateKey struct {
	TaskName    string
	PeriodStart uint64
	PeriodEnd   uint64
}

type PingAggregate struct {
	TaskName          string
	PeriodStart       uint64
	PeriodEnd         uint64
	SampleCount       uint32
	AvgLatencyMs      float64
	MaxLatencyMs      float64
	MinLatencyMs      float64
	PacketLossPercent float64
	SuccessfulPings   uint32
	FailedPings       uint32
	Domain            *string
	TargetID          *string
}

type TcpAggregate struct {
	TaskName       string
	PeriodStart    uint64
	PeriodEnd      uint64
	SampleCount    uint32
	AvgConnectMs   float64
	MaxConnectMs   float64
	MinConnectMs   float64
	Successful     uint32
	Failed         uint32
	FailurePercent float64
	Host           *string
	TargetID       *string
}

type TlsAggregate struct {
	TaskName           string
	PeriodStart        uint64
	PeriodEnd          uint64
	SampleCount        uint32
	SuccessRatePercent float64
	AvgTcpMs           float64
	AvgTlsMs           float64
	Successful         uint32
	Failed             uint32
	SslValidPercent    float64
	AvgDaysToExpiry    float64
	TargetID           *string
}

type HttpGetAggregate struct {
	TaskName               string
	PeriodStart            uint64
	PeriodEnd              uint64
	SampleCount            uint32
	SuccessRatePercent     float64
	AvgTcpMs               float64
	AvgTlsMs               float64
	AvgTtfbMs              float64
	AvgDownloadMs          float64
	AvgTotalMs             float64
	MaxTotalMs             float64
	Successful             uint32
	Failed                 uint32
	StatusCodeDistribution map[int]int
	SslValidPercent        float64
	AvgDaysToExpiry        float64
	TargetID               *string
}

type HttpContentAggregate struct {
	TaskName               string
	PeriodStart            uint64
	PeriodEnd              uint64
	SampleCount            uint32
	SuccessRatePercent     float64
	AvgTotalMs             float64
	MaxTotalMs             float64
	AvgTotalSize           float64
	RegexpMatchRatePercent float64
	Successful             uint32
	Failed                 uint32
	RegexpMatchedCount     uint32
	TargetID               *string
}

type DnsAggregate struct {
	TaskName                 string
	PeriodStart              uint64
	PeriodEnd                uint64
	SampleCount              uint32
	SuccessRatePercent       float64
	AvgQueryTimeMs           float64
	MaxQueryTimeMs           float64
	SuccessfulQueries        uint32
	FailedQueries            uint32
	AllResolvedAddresses     []string
	DomainQueried            string
	CorrectResolutionPercent float64
	TargetID                 *string
}

type SnmpAggregate struct {
	TaskName           string
	PeriodStart        uint64
	PeriodEnd          uint64
	SampleCount        uint32
	SuccessRatePercent float64
	AvgResponseMs      float64
	Successful         uint32
	Failed             uint32
	FirstValue         *string
	FirstValueType     *string
	OidQueried         string
}

type BandwidthAggregate struct {
	TaskName         string
	PeriodStart      uint64
	PeriodEnd        uint64
	SampleCount      uint32
	AvgBandwidthMbps float64
	MaxBandwidthMbps float64
	MinBandwidthMbps float64
	Successful       uint32
	Failed           uint32
}

type SqlAggregate struct {
	TaskName           string
	PeriodStart        uint64
	PeriodEnd          uint64
	SampleCount        uint32
	SuccessRatePercent float64
	AvgTotalMs         float64
	MaxTotalMs         float64
	AvgRowCount        float64
	MaxRowCount        float64
	AvgValue           *float64
	MinValue           *float64
	MaxValue           *float64
	Successful         uint32
	Failed             uint32
	JSONTruncatedCount uint32
}

// RatePercent implements the spec's zero-denominator rule: 0 when total
// is 0, otherwise 100*numerator/total.
func RatePercent(numerator, total uint32) float64 {
	if total == 0 {
		return 0
	}
	return 100.0 * float64(numerator) / float64(total)
}

// DefaultCorrectResolutionPercent is the spec's one named exception to
// RatePercent's zero-default rule.
const DefaultCorrectResolutionPercent = 100.0
