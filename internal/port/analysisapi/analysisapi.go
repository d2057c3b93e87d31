// Package analysisapi defines the port for the pricing analysis service:
// summary statistics and CSP analysis jobs over Pricing2Yaml documents.
package analysisapi

import (
	"context"
	"encoding/json"

	"github.com/isa-group/harvey/internal/domain/analysis"
	"github.com/isa-group/harvey/internal/domain/pricing"
)

// JobRequest describes one analysis job submission.
type JobRequest struct {
	YAML      []byte
	Operation analysis.Operation
	Solver    string
	Filters   *pricing.FilterCriteria
	Objective string
}

// Client talks to the analysis API. Analyze submits a job and polls it to a
// terminal state, returning the completed result or a *analysis.SolverError
// when the job failed.
type Client interface {
	Summary(ctx context.Context, yaml []byte) (json.RawMessage, error)
	Analyze(ctx context.Context, req JobRequest) (json.RawMessage, error)
}
