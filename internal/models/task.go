// Package models holds the task configuration, raw-sample, and
// aggregate record types shared by the probe executors, the local
// store, and the aggregator.
package models

import "time"

// TaskType enumerates the probe kinds a TaskConfig can select.
type TaskType string

const (
	TaskPing        TaskType = "ping"
	TaskTcp         TaskType = "tcp"
	TaskTlsHandshake TaskType = "tls_handshake"
	TaskHttpGet     TaskType = "http_get"
	TaskHttpContent TaskType = "http_content"
	TaskDnsQuery    TaskType = "dns_query"
	TaskDnsQueryDoh TaskType = "dns_query_doh"
	TaskSnmp        TaskType = "snmp"
	TaskBandwidth   TaskType = "bandwidth"
	TaskSqlQuery    TaskType = "sql_query"
)

// WindowSeconds is the store-wide fixed aggregation window (W in the
// glossary): every aggregate covers the half-open interval
// [k*WindowSeconds, (k+1)*WindowSeconds).
const WindowSeconds uint64 = 60

// SnmpVersion selects the SNMP protocol revision for a Snmp task.
type SnmpVersion string

const (
	SnmpV1  SnmpVersion = "v1"
	SnmpV2c SnmpVersion = "v2c"
	SnmpV3  SnmpVersion = "v3"
)

// SnmpAuthProtocol names the v3 authentication digest.
type SnmpAuthProtocol string

const (
	SnmpAuthMD5    SnmpAuthProtocol = "MD5"
	SnmpAuthSHA1   SnmpAuthProtocol = "SHA1"
	SnmpAuthSHA224 SnmpAuthProtocol = "SHA224"
	SnmpAuthSHA256 SnmpAuthProtocol = "SHA256"
	SnmpAuthSHA384 SnmpAuthProtocol = "SHA384"
	SnmpAuthSHA512 SnmpAuthProtocol = "SHA512"
)

// SnmpSecurityLevel selects the v3 security level; only the two levels
// the spec names are supported.
type SnmpSecurityLevel string

const (
	SnmpNoAuthNoPriv SnmpSecurityLevel = "noAuthNoPriv"
	SnmpAuthNoPriv   SnmpSecurityLevel = "authNoPriv"
)

// DnsRecordType selects the record type a DnsQuery/DnsQueryDoh task asks for.
type DnsRecordType string

const (
	DnsA     DnsRecordType = "A"
	DnsAAAA  DnsRecordType = "AAAA"
	DnsMX    DnsRecordType = "MX"
	DnsCNAME DnsRecordType = "CNAME"
	DnsTXT   DnsRecordType = "TXT"
	DnsNS    DnsRecordType = "NS"
)

// TaskParams is the kind-specific parameter record for a TaskConfig.
// Exactly the fields relevant to TaskType are populated; the rest are
// zero-valued.
type TaskParams struct {
	// Ping, Tcp, TlsHandshake
	Host string
	Port uint16

	// TlsHandshake
	TlsInsecureSkipVerify bool

	// HttpGet, HttpContent
	URL string

	// HttpContent
	Regexp              string
	HttpResponseMaxSizeMB int

	// DnsQuery / DnsQueryDoh
	RecordType DnsRecordType
	Server     string // "host:port" for plain DNS
	ServerURL  string // DoH endpoint
	ExpectedIP string

	// Snmp
	OID              string
	SnmpVersion      SnmpVersion
	SnmpCommunity    string
	SnmpUsername     string
	SnmpAuthProtocol SnmpAuthProtocol
	SnmpAuthPassword string
	SnmpSecurityLevel SnmpSecurityLevel

	// Bandwidth
	BandwidthTestSizeMB int
	MaxRetries          int

	// SqlQuery
	DatabaseType string
	DatabaseURL  string
	Query        string
	ScalarMode   bool
	SqlMaxRows   int
	SqlJsonMaxSize int

	// Shared
	TargetID string
}

// TaskConfig describes one scheduled probe.
type TaskConfig struct {
	Name             string
	Type             TaskType
	ScheduleSeconds  uint32
	TimeoutOverride  *time.Duration
	Params           TaskParams
}

// Timeout resolves the effective per-invocation timeout: the override
// if set, otherwise the kind default.
func (t TaskConfig) Timeout() time.Duration {
	if t.TimeoutOverride != nil {
		return *t.TimeoutOverride
	}
	return DefaultTimeout(t.Type)
}

// DefaultTimeout returns the built-in timeout for a probe kind when no
// override is configured.
func DefaultTimeout(kind TaskType) time.Duration {
	switch kind {
	case TaskPing:
		return 5 * time.Second
	case TaskTcp:
		return 10 * time.Second
	case TaskTlsHandshake:
		return 10 * time.Second
	case TaskHttpGet, TaskHttpContent:
		return 15 * time.Second
	case TaskDnsQuery, TaskDnsQueryDoh:
		return 5 * time.Second
	case TaskSnmp:
		return 10 * time.Second
	case TaskBandwidth:
		return 60 * time.Second
	case TaskSqlQuery:
		return 15 * time.Second
	default:
		return 10 * time.Second
	}
}
