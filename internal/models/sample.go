package models

// Every raw row carries these fields regardless of kind (spec.md §3).
type SampleBase struct {
	TaskName  string
	Timestamp uint64
	Success   bool
	Error     *string
	TargetID  *string
}

type RawPingSample struct {
	SampleBase
	RttMs     *float64
	IPAddress string
	Domain    *string
}

type RawTcpSample struct {
	SampleBase
	ConnectMs *float64
	Host      string
}

type RawTlsSample struct {
	SampleBase
	TcpMs            *float64
	TlsMs            *float64
	SslValid         *bool
	DaysUntilExpiry  *int64
	Host             string
}

type RawHttpGetSample struct {
	SampleBase
	TcpMs       *float64
	TlsMs       *float64
	TtfbMs      *float64
	DownloadMs  *float64
	TotalMs     *float64
	StatusCode  *int
	SslValid    *bool
	DaysUntilExpiry *int64
	URL         string
}

type RawHttpContentSample struct {
	SampleBase
	TotalMs      *float64
	TotalSize    *int64
	RegexpMatch  *bool
	URL          string
}

type RawDnsSample struct {
	SampleBase
	QueryTimeMs        *float64
	RecordCount        *int
	ResolvedAddresses  []string
	DomainQueried      string
	ExpectedIP         *string
	ResolvedIP         *string
	CorrectResolution  bool
}

type RawSnmpSample struct {
	SampleBase
	ResponseMs     *float64
	FirstValue     *string
	FirstValueType *string
	OidQueried     string
}

type RawBandwidthSample struct {
	SampleBase
	BandwidthMbps *float64
}

type RawSqlSample struct {
	SampleBase
	TotalMs         *float64
	RowCount        *int
	ScalarValue     *float64
	JSONResult      *string
	JSONTruncated   bool
}
