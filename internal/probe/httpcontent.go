package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/netprobe/fleet/internal/models"
)

// HttpContent reuses HttpGet's transport but additionally validates a
// size cap before and after reading the body and runs a regex over the
// content. A regex compile failure is a hard failure of the probe
// invocation (it never produces a sample), matching spec.md §4.1.
func HttpContent(ctx context.Context, task models.TaskConfig) (models.RawHttpContentSample, error) {
	re, err := regexp.Compile(task.Params.Regexp)
	if err != nil {
		return models.RawHttpContentSample{}, fmt.Errorf("invalid regexp: %w", err)
	}

	base := models.SampleBase{TaskName: task.Name, Timestamp: uint64(time.Now().Unix()), TargetID: nilIfEmpty(task.Params.TargetID)}
	timeout := task.Timeout()
	maxBytes := int64(task.Params.HttpResponseMaxSizeMB) * 1024 * 1024
	if maxBytes <= 0 {
		maxBytes = 100 * 1024 * 1024
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.Params.URL, nil)
	if err != nil {
		return models.RawHttpContentSample{SampleBase: withError(base, fmt.Sprintf("invalid url: %v", err)), URL: task.Params.URL}, nil
	}

	start := time.Now()
	resp, err := Client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return models.RawHttpContentSample{SampleBase: withError(base, timeoutError(timeout.Seconds())), URL: task.Params.URL}, nil
		}
		return models.RawHttpContentSample{SampleBase: withError(base, fmt.Sprintf("request failed: %v", err)), URL: task.Params.URL}, nil
	}
	defer resp.Body.Close()

	if resp.ContentLength > maxBytes {
		totalMs := msSince(start)
		return models.RawHttpContentSample{
			SampleBase: withError(base, fmt.Sprintf("content length %d exceeds maximum %d bytes", resp.ContentLength, maxBytes)),
			URL:        task.Params.URL,
			TotalMs:    floatPtr(totalMs),
			TotalSize:  int64Ptr(resp.ContentLength),
		}, nil
	}

	limited := io.LimitReader(resp.Body, maxBytes+1)
	body, err := io.ReadAll(limited)
	totalMs := msSince(start)
	if err != nil {
		return models.RawHttpContentSample{SampleBase: withError(base, fmt.Sprintf("body read failed: %v", err)), URL: task.Params.URL, TotalMs: floatPtr(totalMs)}, nil
	}
	if int64(len(body)) > maxBytes {
		return models.RawHttpContentSample{
			SampleBase: withError(base, fmt.Sprintf("body exceeds maximum %d bytes", maxBytes)),
			URL:        task.Params.URL,
			TotalMs:    floatPtr(totalMs),
			TotalSize:  int64Ptr(int64(len(body))),
		}, nil
	}

	matched := re.Match(body)
	return models.RawHttpContentSample{
		SampleBase:  withSuccess(base),
		URL:         task.Params.URL,
		TotalMs:     floatPtr(totalMs),
		TotalSize:   int64Ptr(int64(len(body))),
		RegexpMatch: boolPtr(matched),
	}, nil
}
