package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "harvey"

// Metrics holds all Harvey metric instruments.
type Metrics struct {
	SessionsStarted   metric.Int64Counter
	SessionsCompleted metric.Int64Counter
	SessionsFailed    metric.Int64Counter
	ToolCalls         metric.Int64Counter
	StepDuration      metric.Float64Histogram
	CacheHits         metric.Int64Counter
	CacheMisses       metric.Int64Counter
	CacheJoins        metric.Int64Counter
	TransformDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SessionsStarted, err = meter.Int64Counter("harvey.sessions.started",
		metric.WithDescription("Number of agent sessions started"))
	if err != nil {
		return nil, err
	}

	m.SessionsCompleted, err = meter.Int64Counter("harvey.sessions.completed",
		metric.WithDescription("Number of agent sessions that produced an answer"))
	if err != nil {
		return nil, err
	}

	m.SessionsFailed, err = meter.Int64Counter("harvey.sessions.failed",
		metric.WithDescription("Number of agent sessions that failed"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("harvey.toolcalls",
		metric.WithDescription("Number of tool calls dispatched"))
	if err != nil {
		return nil, err
	}

	m.StepDuration, err = meter.Float64Histogram("harvey.step.duration_seconds",
		metric.WithDescription("Agent step duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("harvey.cache.hits",
		metric.WithDescription("Pricing cache fresh hits"))
	if err != nil {
		return nil, err
	}

	m.CacheMisses, err = meter.Int64Counter("harvey.cache.misses",
		metric.WithDescription("Pricing cache misses that started a transformation"))
	if err != nil {
		return nil, err
	}

	m.CacheJoins, err = meter.Int64Counter("harvey.cache.joins",
		metric.WithDescription("Waiters joined onto an in-flight transformation"))
	if err != nil {
		return nil, err
	}

	m.TransformDuration, err = meter.Float64Histogram("harvey.transform.duration_seconds",
		metric.WithDescription("URL transformation duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
