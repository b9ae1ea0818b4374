package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/netprobe/fleet/internal/models"
	"github.com/netprobe/fleet/internal/wire"
)

// BandwidthClient performs the agent side of the bandwidth-arbitration
// handshake against a server. Grounded in
// original_source/agent/src/task_bandwidth.rs: request permission with
// a fixed 10s timeout, retry on Delay while the remaining budget still
// covers the proposed delay, then stream the download without
// buffering the whole body.
type BandwidthClient struct {
	IngestURL string
	AgentID   string
	APIKey    string
}

const bandwidthPermissionTimeout = 10 * time.Second

// Run executes one bandwidth task end to end against the overall task
// timeout.
func (c *BandwidthClient) Run(ctx context.Context, task models.TaskConfig) models.RawBandwidthSample {
	base := models.SampleBase{TaskName: task.Name, Timestamp: uint64(time.Now().Unix()), TargetID: nilIfEmpty(task.Params.TargetID)}
	totalTimeout := task.Timeout()
	maxRetries := task.Params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	deadline := time.Now().Add(totalTimeout)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return models.RawBandwidthSample{SampleBase: withError(base, timeoutError(totalTimeout.Seconds()))}
		}

		resp, err := c.requestPermission(ctx)
		if err != nil {
			return models.RawBandwidthSample{SampleBase: withError(base, fmt.Sprintf("permission request failed: %v", err))}
		}

		if resp.Action == wire.BandwidthProceed {
			dataSize := uint64(0)
			if resp.DataSizeBytes != nil {
				dataSize = *resp.DataSizeBytes
			}
			mbps, err := c.download(ctx, dataSize, time.Until(deadline))
			if err != nil {
				return models.RawBandwidthSample{SampleBase: withError(base, fmt.Sprintf("download failed: %v", err))}
			}
			return models.RawBandwidthSample{SampleBase: withSuccess(base), BandwidthMbps: floatPtr(mbps)}
		}

		delay := time.Duration(0)
		if resp.DelaySeconds != nil {
			delay = time.Duration(*resp.DelaySeconds) * time.Second
		}
		if time.Until(deadline) <= delay {
			return models.RawBandwidthSample{SampleBase: withError(base, "would exceed overall timeout waiting for bandwidth lease")}
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return models.RawBandwidthSample{SampleBase: withError(base, timeoutError(totalTimeout.Seconds()))}
		}
	}
	return models.RawBandwidthSample{SampleBase: withError(base, "exceeded max retries waiting for bandwidth lease")}
}

func (c *BandwidthClient) requestPermission(ctx context.Context) (wire.BandwidthTestResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, bandwidthPermissionTimeout)
	defer cancel()

	body, _ := json.Marshal(wire.BandwidthTestRequest{
		AgentID:      c.AgentID,
		TimestampUTC: time.Now().UTC().Format(time.RFC3339),
	})
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.IngestURL+wire.EndpointBandwidthTest, bytesReader(body))
	if err != nil {
		return wire.BandwidthTestResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(wire.HeaderAPIKey, c.APIKey)
	req.Header.Set(wire.HeaderAgentID, c.AgentID)

	resp, err := Client().Do(req)
	if err != nil {
		return wire.BandwidthTestResponse{}, err
	}
	defer resp.Body.Close()

	var out wire.BandwidthTestResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return wire.BandwidthTestResponse{}, err
	}
	return out, nil
}

func (c *BandwidthClient) download(ctx context.Context, dataSizeBytes uint64, budget time.Duration) (float64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	u, err := url.Parse(c.IngestURL + wire.EndpointBandwidthDownload)
	if err != nil {
		return 0, err
	}
	q := u.Query()
	q.Set("agent_id", c.AgentID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set(wire.HeaderAPIKey, c.APIKey)
	req.Header.Set(wire.HeaderAgentID, c.AgentID)

	start := time.Now()
	resp, err := Client().Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("bandwidth download returned status %d", resp.StatusCode)
	}

	bytesDownloaded, err := io.Copy(io.Discard, resp.Body)
	duration := time.Since(start)
	if err != nil {
		return 0, err
	}
	_ = dataSizeBytes

	seconds := duration.Seconds()
	if seconds <= 0 {
		return 0, nil
	}
	return float64(bytesDownloaded) * 8.0 / seconds / 1_000_000.0, nil
}
