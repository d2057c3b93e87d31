// Package analysis provides the HTTP client for the pricing analysis API:
// synchronous summaries and asynchronous CSP analysis jobs polled with
// exponential backoff.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/isa-group/harvey/internal/adapter/httperr"
	"github.com/isa-group/harvey/internal/config"
	domainanalysis "github.com/isa-group/harvey/internal/domain/analysis"
	"github.com/isa-group/harvey/internal/port/analysisapi"
	"github.com/isa-group/harvey/internal/resilience"
)

// Client talks to the pricing analysis API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
	retry      resilience.RetryPolicy

	pollInitial  time.Duration
	pollCap      time.Duration
	pollDeadline time.Duration

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates an analysis API client from config.
func NewClient(cfg config.Analysis) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		retry:        resilience.DefaultRetryPolicy(),
		pollInitial:  cfg.PollInitial,
		pollCap:      cfg.PollCap,
		pollDeadline: cfg.PollDeadline,
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

func (c *Client) execute(call func() error) error {
	if c.breaker != nil {
		return c.breaker.Execute(call)
	}
	return call()
}

// Health reports whether the analysis service answers.
func (c *Client) Health(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, httperr.Transport("analysis health", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode < 400, nil
}

// Summary posts the YAML as a multipart file and returns the summary JSON.
func (c *Client) Summary(ctx context.Context, yaml []byte) (json.RawMessage, error) {
	var result json.RawMessage
	err := c.retry.Retry(ctx, httperr.Retryable, func() error {
		return c.execute(func() error {
			body, contentType, err := multipartYAML(yaml, nil)
			if err != nil {
				return err
			}
			data, err := c.post(ctx, "/pricing/summary", body, contentType)
			if err != nil {
				return err
			}
			result = data
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Analyze submits an analysis job and polls it to a terminal state. A
// failed job returns *analysis.SolverError; on poll deadline the remote job
// is abandoned, not cancelled server-side.
func (c *Client) Analyze(ctx context.Context, req analysisapi.JobRequest) (json.RawMessage, error) {
	job, err := c.submit(ctx, req)
	if err != nil {
		return nil, err
	}

	slog.Info("analysis job submitted",
		"job_id", job.JobID,
		"operation", req.Operation,
		"solver", req.Solver,
	)

	return c.pollJob(ctx, job.JobID)
}

func (c *Client) submit(ctx context.Context, req analysisapi.JobRequest) (*domainanalysis.Job, error) {
	fields := map[string]string{
		"operation": string(req.Operation),
		"solver":    req.Solver,
	}
	if req.Objective != "" {
		fields["objective"] = req.Objective
	}
	if !req.Filters.IsZero() {
		filtersJSON, err := json.Marshal(req.Filters)
		if err != nil {
			return nil, fmt.Errorf("marshal filters: %w", err)
		}
		fields["filters"] = string(filtersJSON)
	}

	var job domainanalysis.Job
	err := c.retry.Retry(ctx, httperr.Retryable, func() error {
		return c.execute(func() error {
			body, contentType, err := multipartYAML(req.YAML, fields)
			if err != nil {
				return err
			}
			data, err := c.post(ctx, "/pricing/analysis", body, contentType)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(data, &job); err != nil {
				return httperr.Decode("analysis submit", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if job.JobID == "" {
		return nil, httperr.Decode("analysis submit", fmt.Errorf("response has no jobId"))
	}
	return &job, nil
}

// pollJob polls the job with 200ms·2^k backoff capped at pollCap until the
// job reaches a terminal state or the wall-clock deadline expires.
func (c *Client) pollJob(ctx context.Context, jobID string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollDeadline)
	defer cancel()

	sleep := c.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	delay := c.pollInitial
	for {
		job, err := c.status(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch job.Status {
		case domainanalysis.StatusCompleted:
			return job.Result, nil
		case domainanalysis.StatusFailed:
			msg := job.Error
			if msg == "" {
				msg = "analysis job failed"
			}
			return nil, &domainanalysis.SolverError{Message: msg}
		}

		if err := sleep(ctx, delay); err != nil {
			// Deadline or cancellation: the remote job keeps running and
			// the handle is abandoned.
			slog.Warn("analysis job abandoned", "job_id", jobID, "reason", err)
			return nil, httperr.Transport("analysis poll", err)
		}
		delay *= 2
		if delay > c.pollCap {
			delay = c.pollCap
		}
	}
}

func (c *Client) status(ctx context.Context, jobID string) (*domainanalysis.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pricing/analysis/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, httperr.Transport("analysis status", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, httperr.Transport("analysis status", err)
	}
	if resp.StatusCode >= 400 {
		return nil, httperr.Status("analysis status", resp.StatusCode, string(body))
	}

	var job domainanalysis.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, httperr.Decode("analysis status", err)
	}
	return &job, nil
}

func (c *Client) post(ctx context.Context, path string, body *bytes.Buffer, contentType string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, httperr.Transport("analysis post "+path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, httperr.Transport("analysis post "+path, err)
	}
	if resp.StatusCode >= 400 {
		return nil, httperr.Status("analysis post "+path, resp.StatusCode, string(data))
	}
	return data, nil
}

// multipartYAML builds a multipart body with the YAML as the "file" part
// plus any extra form fields.
func multipartYAML(yaml []byte, fields map[string]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "pricing.yaml")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(yaml); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
