package probe

import (
	"bytes"
	"fmt"
	"io"
	"time"
)

// msSince returns the elapsed time in fractional milliseconds, matching
// the teacher's microsecond-then-divide pattern in measurement.go.
func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func int64Ptr(v int64) *int64     { return &v }
func boolPtr(v bool) *bool        { return &v }
func strPtr(v string) *string     { return &v }

// timeoutError formats the spec-mandated "*timed out*" message; callers
// match on this substring per spec.md §7.
func timeoutError(timeoutSeconds float64) string {
	return fmt.Sprintf("operation timed out after %.0fs", timeoutSeconds)
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
