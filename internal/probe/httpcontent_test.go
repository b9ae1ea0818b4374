package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/netprobe/fleet/internal/models"
)

func TestHttpContentMatchesRegexp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("status: healthy, version 1.2.3"))
	}))
	defer srv.Close()

	task := models.TaskConfig{
		Name: "content-check",
		Type: models.TaskHttpContent,
		Params: models.TaskParams{
			URL:    srv.URL,
			Regexp: `status: healthy`,
		},
	}

	sample, err := HttpContent(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	if !sample.Success {
		t.Fatalf("expected probe success, got error: %v", sample.Error)
	}
	if sample.RegexpMatch == nil || !*sample.RegexpMatch {
		t.Fatal("expected regexp to match response body")
	}
}

func TestHttpContentNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("status: degraded"))
	}))
	defer srv.Close()

	task := models.TaskConfig{
		Name: "content-check",
		Type: models.TaskHttpContent,
		Params: models.TaskParams{
			URL:    srv.URL,
			Regexp: `status: healthy`,
		},
	}

	sample, err := HttpContent(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	if !sample.Success {
		t.Fatalf("expected probe success (the fetch itself succeeded), got error: %v", sample.Error)
	}
	if sample.RegexpMatch == nil || *sample.RegexpMatch {
		t.Fatal("expected regexp not to match response body")
	}
}

func TestHttpContentInvalidRegexpFailsHard(t *testing.T) {
	task := models.TaskConfig{
		Name: "bad-regexp",
		Type: models.TaskHttpContent,
		Params: models.TaskParams{
			URL:    "http://example.invalid",
			Regexp: `(unterminated`,
		},
	}

	if _, err := HttpContent(context.Background(), task); err == nil {
		t.Fatal("expected an error for an invalid regexp")
	}
}
