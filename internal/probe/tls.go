package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/netprobe/fleet/internal/models"
)

// TlsHandshake connects over TCP, then completes a TLS handshake to the
// SNI derived from host, measuring the two phases separately. Peer
// certificate expiry is reported as a whole-day count (negative if
// already expired). Chain verification follows the caller-supplied
// config so self-signed endpoints can be monitored deliberately.
func TlsHandshake(ctx context.Context, task models.TaskConfig, insecureSkipVerify bool) models.RawTlsSample {
	base := models.SampleBase{TaskName: task.Name, Timestamp: uint64(time.Now().Unix()), TargetID: nilIfEmpty(task.Params.TargetID)}
	timeout := task.Timeout()
	port := task.Params.Port
	if port == 0 {
		port = 443
	}
	addr := net.JoinHostPort(task.Params.Host, strconv.Itoa(int(port)))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tcpStart := time.Now()
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	tcpMs := msSince(tcpStart)
	if err != nil {
		if ctx.Err() != nil {
			return models.RawTlsSample{SampleBase: withError(base, timeoutError(timeout.Seconds())), Host: task.Params.Host}
		}
		return models.RawTlsSample{SampleBase: withError(base, fmt.Sprintf("connect failed: %v", err)), Host: task.Params.Host}
	}
	defer conn.Close()

	tlsStart := time.Now()
	tlsConn := tls.Client(conn, &tls.Config{
		ServerName:         task.Params.Host,
		InsecureSkipVerify: insecureSkipVerify,
	})
	if deadline, ok := ctx.Deadline(); ok {
		_ = tlsConn.SetDeadline(deadline)
	}
	err = tlsConn.Handshake()
	tlsMs := msSince(tlsStart)
	if err != nil {
		if ctx.Err() != nil {
			return models.RawTlsSample{SampleBase: withError(base, timeoutError(timeout.Seconds())), Host: task.Params.Host, TcpMs: floatPtr(tcpMs)}
		}
		return models.RawTlsSample{SampleBase: withError(base, fmt.Sprintf("tls handshake failed: %v", err)), Host: task.Params.Host, TcpMs: floatPtr(tcpMs)}
	}
	defer tlsConn.Close()

	state := tlsConn.ConnectionState()
	sample := models.RawTlsSample{
		SampleBase: withSuccess(base),
		Host:       task.Params.Host,
		TcpMs:      floatPtr(tcpMs),
		TlsMs:      floatPtr(tlsMs),
	}
	if len(state.PeerCertificates) > 0 {
		cert := state.PeerCertificates[0]
		valid := time.Now().Before(cert.NotAfter)
		days := int64(time.Until(cert.NotAfter).Hours() / 24)
		sample.SslValid = boolPtr(valid)
		sample.DaysUntilExpiry = int64Ptr(days)
	}
	return sample
}
