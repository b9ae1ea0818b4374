package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/netprobe/fleet/internal/models"
)

// HttpGet performs TCP -> (TLS if https) -> request -> read status and
// headers -> stream the body to io.Discard, measuring tcp, tls,
// time-to-first-byte, download, and total phases via an httptrace
// hook, using the shared process-wide client.
func HttpGet(ctx context.Context, task models.TaskConfig) models.RawHttpGetSample {
	base := models.SampleBase{TaskName: task.Name, Timestamp: uint64(time.Now().Unix()), TargetID: nilIfEmpty(task.Params.TargetID)}
	timeout := task.Timeout()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var tcpStart, tlsStart, reqStart, firstByte time.Time
	var tcpMs, tlsMs, ttfbMs float64

	trace := &httptrace.ClientTrace{
		ConnectStart: func(string, string) { tcpStart = time.Now() },
		ConnectDone: func(string, string, error) {
			if !tcpStart.IsZero() {
				tcpMs = msSince(tcpStart)
			}
		},
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone: func(_ tls.ConnectionState, _ error) {
			if !tlsStart.IsZero() {
				tlsMs = msSince(tlsStart)
			}
		},
		GotFirstResponseByte: func() {
			firstByte = time.Now()
			if !reqStart.IsZero() {
				ttfbMs = msSince(reqStart)
			}
		},
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, task.Params.URL, nil)
	if err != nil {
		return models.RawHttpGetSample{SampleBase: withError(base, fmt.Sprintf("invalid url: %v", err)), URL: task.Params.URL}
	}

	reqStart = time.Now()
	resp, err := Client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return models.RawHttpGetSample{SampleBase: withError(base, timeoutError(timeout.Seconds())), URL: task.Params.URL}
		}
		return models.RawHttpGetSample{SampleBase: withError(base, fmt.Sprintf("request failed: %v", err)), URL: task.Params.URL}
	}
	defer resp.Body.Close()

	downloadStart := time.Now()
	if firstByte.IsZero() {
		firstByte = downloadStart
		ttfbMs = msSince(reqStart)
	}
	n, err := io.Copy(io.Discard, resp.Body)
	_ = n
	downloadMs := msSince(downloadStart)
	totalMs := msSince(reqStart)

	statusCode := resp.StatusCode
	success := statusCode >= 200 && statusCode < 300
	if err != nil {
		success = false
	}

	sample := models.RawHttpGetSample{
		SampleBase: base,
		URL:        task.Params.URL,
		StatusCode: intPtr(statusCode),
	}
	sample.Success = success
	if !success {
		msg := fmt.Sprintf("non-2xx status: %d", statusCode)
		if err != nil {
			msg = fmt.Sprintf("body read failed: %v", err)
		}
		sample.Error = strPtr(msg)
	}
	if tcpMs > 0 {
		sample.TcpMs = floatPtr(tcpMs)
	}
	if tlsMs > 0 {
		sample.TlsMs = floatPtr(tlsMs)
	}
	sample.TtfbMs = floatPtr(ttfbMs)
	sample.DownloadMs = floatPtr(downloadMs)
	sample.TotalMs = floatPtr(totalMs)

	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		cert := resp.TLS.PeerCertificates[0]
		valid := time.Now().Before(cert.NotAfter)
		days := int64(time.Until(cert.NotAfter).Hours() / 24)
		sample.SslValid = boolPtr(valid)
		sample.DaysUntilExpiry = int64Ptr(days)
	}
	return sample
}
