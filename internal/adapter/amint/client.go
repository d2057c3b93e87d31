// Package amint provides the HTTP client for the A-MINT extraction
// pipeline, which turns SaaS pricing pages into Pricing2Yaml documents.
// Transformations are asynchronous on the A-MINT side: a submit call
// returns a task id which is polled until the YAML body arrives.
package amint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/isa-group/harvey/internal/adapter/httperr"
	"github.com/isa-group/harvey/internal/config"
	"github.com/isa-group/harvey/internal/resilience"
)

// Client talks to the A-MINT transform API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
	retry      resilience.RetryPolicy

	model            string
	maxTries         int
	temperature      float64
	pollInterval     time.Duration
	transformTimeout time.Duration
}

// NewClient creates an A-MINT client from config.
func NewClient(cfg config.AMint) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		retry:            resilience.DefaultRetryPolicy(),
		model:            cfg.Model,
		maxTries:         cfg.MaxTries,
		temperature:      cfg.Temperature,
		pollInterval:     cfg.PollInterval,
		transformTimeout: cfg.TransformTimeout,
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Health reports whether the A-MINT service answers.
func (c *Client) Health(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, httperr.Transport("amint health", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode < 400, nil
}

// Transform submits url for extraction and polls until the Pricing2Yaml
// document is available. The whole operation is bounded by the configured
// transformation timeout.
func (c *Client) Transform(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.transformTimeout)
	defer cancel()

	slog.Info("amint transform request", "url", url)

	taskID, err := c.submit(ctx, url)
	if err != nil {
		return "", err
	}

	slog.Info("amint transform accepted", "url", url, "task_id", taskID)
	return c.poll(ctx, taskID)
}

func (c *Client) submit(ctx context.Context, url string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"url":         url,
		"model":       c.model,
		"max_tries":   c.maxTries,
		"temperature": c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal transform request: %w", err)
	}

	var taskID string
	err = c.retry.Retry(ctx, httperr.Retryable, func() error {
		return c.execute(func() error {
			req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/transform", bytes.NewReader(payload))
			if reqErr != nil {
				return fmt.Errorf("create request: %w", reqErr)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json, application/x-yaml")

			resp, doErr := c.httpClient.Do(req)
			if doErr != nil {
				return httperr.Transport("amint transform", doErr)
			}
			defer func() { _ = resp.Body.Close() }()

			body, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return httperr.Transport("amint transform", readErr)
			}
			if resp.StatusCode >= 400 {
				return httperr.Status("amint transform", resp.StatusCode, string(body))
			}

			var accepted struct {
				TaskID string `json:"task_id"`
			}
			if decodeErr := json.Unmarshal(body, &accepted); decodeErr != nil {
				return httperr.Decode("amint transform", decodeErr)
			}
			if accepted.TaskID == "" {
				return httperr.Decode("amint transform", fmt.Errorf("response has no task_id"))
			}
			taskID = accepted.TaskID
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return taskID, nil
}

// poll checks the task status until the YAML body arrives or the task
// fails. Some deployments answer the status endpoint with the YAML
// directly; others return a metadata object pointing at a result file.
func (c *Client) poll(ctx context.Context, taskID string) (string, error) {
	statusURL := c.baseURL + "/api/v1/transform/status/" + taskID

	for {
		yaml, done, err := c.checkStatus(ctx, statusURL)
		if err != nil {
			return "", err
		}
		if done {
			slog.Info("amint transform completed", "task_id", taskID)
			return yaml, nil
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", httperr.Transport("amint poll", ctx.Err())
		case <-timer.C:
		}
	}
}

func (c *Client) checkStatus(ctx context.Context, statusURL string) (yaml string, done bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, httperr.Transport("amint poll", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, httperr.Transport("amint poll", err)
	}
	if resp.StatusCode >= 400 {
		return "", false, httperr.Status("amint poll", resp.StatusCode, string(body))
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/x-yaml") || strings.Contains(contentType, "text/yaml") {
		return string(body), true, nil
	}

	var status struct {
		Status     string `json:"status"`
		Error      string `json:"error"`
		ResultFile string `json:"result_file"`
	}
	if decodeErr := json.Unmarshal(body, &status); decodeErr != nil {
		return "", false, httperr.Decode("amint poll", decodeErr)
	}

	switch status.Status {
	case "failed":
		msg := status.Error
		if msg == "" {
			msg = "unknown error"
		}
		return "", false, fmt.Errorf("transformation failed: %s", msg)
	case "completed", "success":
		if status.ResultFile != "" {
			content, dlErr := c.download(ctx, status.ResultFile)
			if dlErr != nil {
				return "", false, dlErr
			}
			return content, true, nil
		}
	}
	return "", false, nil
}

func (c *Client) download(ctx context.Context, path string) (string, error) {
	url := path
	if strings.HasPrefix(path, "/") {
		url = c.baseURL + path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", httperr.Transport("amint download", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", httperr.Transport("amint download", err)
	}
	if resp.StatusCode >= 400 {
		return "", httperr.Status("amint download", resp.StatusCode, string(body))
	}
	return string(body), nil
}

func (c *Client) execute(call func() error) error {
	if c.breaker != nil {
		return c.breaker.Execute(call)
	}
	return call()
}
