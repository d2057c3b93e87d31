package amint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/isa-group/harvey/internal/config"
)

func testClient(baseURL string) *Client {
	return NewClient(config.AMint{
		BaseURL:          baseURL,
		Model:            "gpt-4o",
		MaxTries:         5,
		Temperature:      0.7,
		PollInterval:     time.Millisecond,
		TransformTimeout: 2 * time.Second,
	})
}

func TestTransformSubmitsAndPollsUntilYAML(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/transform":
			var payload struct {
				URL      string  `json:"url"`
				Model    string  `json:"model"`
				MaxTries int     `json:"max_tries"`
				Temp     float64 `json:"temperature"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("bad submit payload: %v", err)
			}
			if payload.URL != "https://example.com/pricing" || payload.Model != "gpt-4o" || payload.MaxTries != 5 {
				t.Errorf("unexpected payload %+v", payload)
			}
			writeJSON(w, map[string]string{"task_id": "task-1"})
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/v1/transform/status/"):
			if polls.Add(1) < 3 {
				writeJSON(w, map[string]string{"status": "running"})
				return
			}
			w.Header().Set("Content-Type", "application/x-yaml")
			_, _ = w.Write([]byte("saasName: Acme\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	yaml, err := testClient(srv.URL).Transform(context.Background(), "https://example.com/pricing")
	if err != nil {
		t.Fatal(err)
	}
	if yaml != "saasName: Acme\n" {
		t.Errorf("unexpected yaml %q", yaml)
	}
	if polls.Load() < 3 {
		t.Errorf("expected at least 3 polls, got %d", polls.Load())
	}
}

func TestTransformSurfacesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJSON(w, map[string]string{"task_id": "task-2"})
			return
		}
		writeJSON(w, map[string]string{"status": "failed", "error": "no pricing table found"})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Transform(context.Background(), "https://example.com/pricing")
	if err == nil || !strings.Contains(err.Error(), "no pricing table found") {
		t.Fatalf("expected the failure cause, got %v", err)
	}
}

func TestTransformDownloadsResultFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			writeJSON(w, map[string]string{"task_id": "task-3"})
		case strings.HasPrefix(r.URL.Path, "/api/v1/transform/status/"):
			writeJSON(w, map[string]string{"status": "completed", "result_file": "/files/task-3.yaml"})
		case r.URL.Path == "/files/task-3.yaml":
			_, _ = w.Write([]byte("saasName: FromFile\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	yaml, err := testClient(srv.URL).Transform(context.Background(), "https://example.com/pricing")
	if err != nil {
		t.Fatal(err)
	}
	if yaml != "saasName: FromFile\n" {
		t.Errorf("unexpected yaml %q", yaml)
	}
}

func TestTransformHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJSON(w, map[string]string{"task_id": "task-4"})
			return
		}
		writeJSON(w, map[string]string{"status": "running"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := testClient(srv.URL).Transform(ctx, "https://example.com/pricing")
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected a cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatal("transform did not stop after cancellation")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
