package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/netprobe/fleet/internal/models"
)

// Snmp supports v1, v2c, and v3 (noAuthNoPriv/authNoPriv only). For v3,
// engine discovery runs before the first GET. Only the first varbind's
// printable value and type name are recorded.
func Snmp(ctx context.Context, task models.TaskConfig) models.RawSnmpSample {
	base := models.SampleBase{TaskName: task.Name, Timestamp: uint64(time.Now().Unix()), TargetID: nilIfEmpty(task.Params.TargetID)}
	timeout := task.Timeout()
	oid := task.Params.OID
	if oid == "" {
		return models.RawSnmpSample{SampleBase: withError(base, "empty oid"), OidQueried: oid}
	}

	g := &gosnmp.GoSNMP{
		Target:    task.Params.Host,
		Port:      161,
		Timeout:   timeout,
		Retries:   0,
		MaxOids:   1,
		Context:   ctx,
	}
	if task.Params.Port != 0 {
		g.Port = task.Params.Port
	}

	switch task.Params.SnmpVersion {
	case models.SnmpV1:
		g.Version = gosnmp.Version1
		g.Community = task.Params.SnmpCommunity
	case models.SnmpV3:
		g.Version = gosnmp.Version3
		secLevel := gosnmp.NoAuthNoPriv
		var authProto gosnmp.SnmpV3AuthProtocol = gosnmp.NoAuth
		if task.Params.SnmpSecurityLevel == models.SnmpAuthNoPriv {
			secLevel = gosnmp.AuthNoPriv
			authProto = snmpAuthProtocol(task.Params.SnmpAuthProtocol)
		}
		g.MsgFlags = secLevel
		g.SecurityModel = gosnmp.UserSecurityModel
		g.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 task.Params.SnmpUsername,
			AuthenticationProtocol:   authProto,
			AuthenticationPassphrase: task.Params.SnmpAuthPassword,
		}
	default: // v2c
		g.Version = gosnmp.Version2c
		g.Community = task.Params.SnmpCommunity
	}

	start := time.Now()
	if err := g.Connect(); err != nil {
		return models.RawSnmpSample{SampleBase: withError(base, fmt.Sprintf("connect failed: %v", err)), OidQueried: oid}
	}
	defer g.Conn.Close()

	result, err := g.Get([]string{oid})
	elapsed := msSince(start)
	if err != nil {
		if ctx.Err() != nil {
			return models.RawSnmpSample{SampleBase: withError(base, timeoutError(timeout.Seconds())), OidQueried: oid}
		}
		return models.RawSnmpSample{SampleBase: withError(base, fmt.Sprintf("get failed: %v", err)), OidQueried: oid}
	}
	if len(result.Variables) == 0 {
		return models.RawSnmpSample{SampleBase: withError(base, "no varbinds returned"), OidQueried: oid}
	}

	v := result.Variables[0]
	return models.RawSnmpSample{
		SampleBase:     withSuccess(base),
		ResponseMs:     floatPtr(elapsed),
		FirstValue:     strPtr(formatSnmpValue(v)),
		FirstValueType: strPtr(snmpTypeName(v.Type)),
		OidQueried:     oid,
	}
}

func snmpAuthProtocol(p models.SnmpAuthProtocol) gosnmp.SnmpV3AuthProtocol {
	switch p {
	case models.SnmpAuthMD5:
		return gosnmp.MD5
	case models.SnmpAuthSHA1:
		return gosnmp.SHA
	case models.SnmpAuthSHA224:
		return gosnmp.SHA224
	case models.SnmpAuthSHA256:
		return gosnmp.SHA256
	case models.SnmpAuthSHA384:
		return gosnmp.SHA384
	case models.SnmpAuthSHA512:
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func snmpTypeName(t gosnmp.Asn1BER) string {
	switch t {
	case gosnmp.Integer:
		return "Integer"
	case gosnmp.OctetString:
		return "OctetString"
	case gosnmp.IPAddress:
		return "IPAddress"
	case gosnmp.Counter32:
		return "Counter32"
	case gosnmp.Gauge32:
		return "Gauge32"
	case gosnmp.TimeTicks:
		return "TimeTicks"
	case gosnmp.Counter64:
		return "Counter64"
	default:
		return "Unknown"
	}
}

func formatSnmpValue(v gosnmp.SnmpPDU) string {
	switch v.Type {
	case gosnmp.OctetString:
		if b, ok := v.Value.([]byte); ok {
			return string(b)
		}
		return fmt.Sprintf("%v", v.Value)
	default:
		return fmt.Sprintf("%v", v.Value)
	}
}
