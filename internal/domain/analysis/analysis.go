// Package analysis defines the remote analysis-job envelope returned by the
// pricing analysis API. The envelope is carried verbatim; the agent polls
// job status with backoff until a terminal state.
package analysis

import (
	"encoding/json"
	"time"
)

// Operation selects what the analysis API computes over a pricing model.
type Operation string

const (
	OpSummary       Operation = "summary"
	OpSubscriptions Operation = "subscriptions"
	OpOptimal       Operation = "optimal"
	OpValidate      Operation = "validate"
	OpFilter        Operation = "filter"
)

// JobStatus is the lifecycle state of a remote analysis job.
type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusRunning   JobStatus = "RUNNING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
)

// Terminal reports whether the status will not change again.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the remote job handle and envelope.
type Job struct {
	JobID       string          `json:"jobId"`
	Status      JobStatus       `json:"status"`
	SubmittedAt time.Time       `json:"submittedAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// SolverError reports a job that terminated in the failed state. The
// message comes from the solver and is surfaced to the LLM as an
// observation rather than terminating the loop.
type SolverError struct {
	Message string
}

func (e *SolverError) Error() string {
	return "solver error: " + e.Message
}
