package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/netprobe/fleet/internal/models"
)

// Tcp resolves host:port and measures wall time from connect start to
// connect complete. The connection is closed immediately on success.
func Tcp(ctx context.Context, task models.TaskConfig) models.RawTcpSample {
	base := models.SampleBase{TaskName: task.Name, Timestamp: uint64(time.Now().Unix()), TargetID: nilIfEmpty(task.Params.TargetID)}
	timeout := task.Timeout()
	addr := net.JoinHostPort(task.Params.Host, strconv.Itoa(int(task.Params.Port)))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	elapsed := msSince(start)
	if err != nil {
		if ctx.Err() != nil {
			return models.RawTcpSample{SampleBase: withError(base, timeoutError(timeout.Seconds())), Host: task.Params.Host}
		}
		return models.RawTcpSample{SampleBase: withError(base, fmt.Sprintf("connect failed: %v", err)), Host: task.Params.Host}
	}
	_ = conn.Close()

	return models.RawTcpSample{
		SampleBase: withSuccess(base),
		ConnectMs:  floatPtr(elapsed),
		Host:       task.Params.Host,
	}
}
