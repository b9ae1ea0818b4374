package localstore

// metric kind keys used as metric_send_queue.metric_type and as the
// table-family discriminator everywhere in this package. These are
// deliberately coarser than models.TaskType: dns_query and dns_query_doh
// share one raw/agg table pair and therefore one kind key.
const (
	kindPing        = "ping"
	kindTcp         = "tcp"
	kindTls         = "tls"
	kindHttpGet     = "http_get"
	kindHttpContent = "http_content"
	kindDns         = "dns"
	kindSnmp        = "snmp"
	kindBandwidth   = "bandwidth"
	kindSql         = "sql"
)

// kindTable names the raw/agg table pair for one storage kind.
type kindTable struct {
	kind     string
	rawTable string
	aggTable string
}

// kindTables lists every always-built kind's tables; the sql kind
// registers itself here too, from sql.go's init, only when the
// sqlprobe build tag is present.
var kindTables = []kindTable{
	{kindPing, "raw_metric_ping", "agg_metric_ping"},
	{kindTcp, "raw_metric_tcp", "agg_metric_tcp"},
	{kindTls, "raw_metric_tls", "agg_metric_tls"},
	{kindHttpGet, "raw_metric_httpget", "agg_metric_httpget"},
	{kindHttpContent, "raw_metric_httpcontent", "agg_metric_httpcontent"},
	{kindDns, "raw_metric_dns", "agg_metric_dns"},
	{kindSnmp, "raw_metric_snmp", "agg_metric_snmp"},
	{kindBandwidth, "raw_metric_bandwidth", "agg_metric_bandwidth"},
}

// kindForTaskType maps a task type to its storage kind key.
func kindForTaskType(t string) (string, bool) {
	switch t {
	case "ping":
		return kindPing, true
	case "tcp":
		return kindTcp, true
	case "tls_handshake":
		return kindTls, true
	case "http_get":
		return kindHttpGet, true
	case "http_content":
		return kindHttpContent, true
	case "dns_query", "dns_query_doh":
		return kindDns, true
	case "snmp":
		return kindSnmp, true
	case "bandwidth":
		return kindBandwidth, true
	case "sql_query":
		return kindSql, true
	default:
		return "", false
	}
}

// defaultTaskTypeForKind is kindForTaskType's inverse, used as a
// fallback when a queue entry's task has since been removed from the
// running config and the sender can no longer resolve its exact
// TaskType (dns's two task types both collapse to "dns_query").
func defaultTaskTypeForKind(kind string) string {
	switch kind {
	case kindPing:
		return "ping"
	case kindTcp:
		return "tcp"
	case kindTls:
		return "tls_handshake"
	case kindHttpGet:
		return "http_get"
	case kindHttpContent:
		return "http_content"
	case kindDns:
		return "dns_query"
	case kindSnmp:
		return "snmp"
	case kindBandwidth:
		return "bandwidth"
	case kindSql:
		return "sql_query"
	default:
		return kind
	}
}
