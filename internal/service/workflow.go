package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/isa-group/harvey/internal/domain/analysis"
	"github.com/isa-group/harvey/internal/domain/pricing"
	"github.com/isa-group/harvey/internal/domain/tool"
	"github.com/isa-group/harvey/internal/port/analysisapi"
)

// Workflow implements the built-in tool semantics over the pricing cache,
// the grounding layer and the analysis API. Every filter and solver that
// reaches the analysis API has been grounded against the authoritative
// YAML first.
type Workflow struct {
	cache     *PricingCache
	analysis  analysisapi.Client
	grounding *Grounding
}

// NewWorkflow wires the workflow service.
func NewWorkflow(cache *PricingCache, analysisClient analysisapi.Client, grounding *Grounding) *Workflow {
	return &Workflow{
		cache:     cache,
		analysis:  analysisClient,
		grounding: grounding,
	}
}

// source is the resolved pricing input of one tool call.
type source struct {
	yaml string
	url  string // canonical URL, or an uploaded:// alias
	from string // "amint" | "upload"
}

// resolveSource turns the url/yaml pair into YAML text. URL inputs resolve
// through the cache's single-flight path; refresh invalidates first.
func (w *Workflow) resolveSource(ctx context.Context, args tool.SourceArgs) (*source, error) {
	if args.PricingYAML != "" {
		return &source{yaml: args.PricingYAML, url: args.PricingURL, from: "upload"}, nil
	}

	key, err := pricing.CanonicalURL(args.PricingURL)
	if err != nil {
		return nil, err
	}
	if args.Refresh {
		w.cache.Invalidate(ctx, key)
	}
	yamlText, err := w.cache.ResolveCanonical(ctx, key)
	if err != nil {
		return nil, err
	}
	return &source{yaml: yamlText, url: key, from: "amint"}, nil
}

// groundFilters parses the YAML and rewrites the criteria onto canonical
// names. Solver values are validated here as well so no unknown solver
// name reaches the analysis API.
func (w *Workflow) groundFilters(src *source, filters *pricing.FilterCriteria, solver string) (*pricing.FilterCriteria, error) {
	if solver != tool.SolverMiniZinc && solver != tool.SolverChoco {
		return nil, &tool.ArgumentError{Path: "solver", Reason: "must be \"minizinc\" or \"choco\""}
	}
	if filters.IsZero() {
		return filters, nil
	}
	doc, err := ParseDocument(src.yaml)
	if err != nil {
		return nil, err
	}
	grounded, err := w.grounding.Ground(doc, filters)
	if err != nil {
		return nil, err
	}
	slog.Debug("filters grounded", "url", src.url, "features", grounded.Features)
	return grounded, nil
}

// IPricing returns the canonical Pricing2Yaml document.
func (w *Workflow) IPricing(ctx context.Context, req tool.IPricingRequest) (json.RawMessage, error) {
	src, err := w.resolveSource(ctx, req.SourceArgs)
	if err != nil {
		return nil, err
	}
	return marshalEnvelope(map[string]any{
		"request":      map[string]any{"url": src.url, "refresh": req.Refresh},
		"pricing_yaml": src.yaml,
		"source":       src.from,
	})
}

// Summary returns catalogue counts and statistics for the pricing.
func (w *Workflow) Summary(ctx context.Context, req tool.SummaryRequest) (json.RawMessage, error) {
	src, err := w.resolveSource(ctx, req.SourceArgs)
	if err != nil {
		return nil, err
	}
	summary, err := w.analysis.Summary(ctx, []byte(src.yaml))
	if err != nil {
		return nil, err
	}
	return marshalEnvelope(map[string]any{
		"request": map[string]any{"url": src.url, "refresh": req.Refresh},
		"summary": summary,
	})
}

// Subscriptions enumerates the configuration space, optionally filtered.
func (w *Workflow) Subscriptions(ctx context.Context, req tool.SubscriptionsRequest) (json.RawMessage, error) {
	src, err := w.resolveSource(ctx, req.SourceArgs)
	if err != nil {
		return nil, err
	}
	solver := defaultSolver(req.Solver)
	grounded, err := w.groundFilters(src, req.Filters, solver)
	if err != nil {
		return nil, err
	}

	operation := analysis.OpSubscriptions
	if !grounded.IsZero() {
		operation = analysis.OpFilter
	}
	result, err := w.analysis.Analyze(ctx, analysisapi.JobRequest{
		YAML:      []byte(src.yaml),
		Operation: operation,
		Solver:    solver,
		Filters:   grounded,
	})
	if err != nil {
		return nil, err
	}
	return marshalEnvelope(map[string]any{
		"request": map[string]any{"url": src.url, "filters": grounded, "solver": solver},
		"result":  result,
	})
}

// Optimal computes the best configuration under the objective.
func (w *Workflow) Optimal(ctx context.Context, req tool.OptimalRequest) (json.RawMessage, error) {
	src, err := w.resolveSource(ctx, req.SourceArgs)
	if err != nil {
		return nil, err
	}
	solver := defaultSolver(req.Solver)
	objective := req.Objective
	if objective == "" {
		objective = tool.ObjectiveMinimize
	}
	if objective != tool.ObjectiveMinimize && objective != tool.ObjectiveMaximize {
		return nil, &tool.ArgumentError{Path: "objective", Reason: "must be \"minimize\" or \"maximize\""}
	}
	grounded, err := w.groundFilters(src, req.Filters, solver)
	if err != nil {
		return nil, err
	}

	result, err := w.analysis.Analyze(ctx, analysisapi.JobRequest{
		YAML:      []byte(src.yaml),
		Operation: analysis.OpOptimal,
		Solver:    solver,
		Filters:   grounded,
		Objective: objective,
	})
	if err != nil {
		return nil, err
	}
	return marshalEnvelope(map[string]any{
		"request": map[string]any{"url": src.url, "filters": grounded, "solver": solver, "objective": objective},
		"result":  result,
	})
}

// Validate checks the pricing model with the selected solver.
func (w *Workflow) Validate(ctx context.Context, req tool.ValidateRequest) (json.RawMessage, error) {
	src, err := w.resolveSource(ctx, req.SourceArgs)
	if err != nil {
		return nil, err
	}
	solver := defaultSolver(req.Solver)
	if _, err := w.groundFilters(src, nil, solver); err != nil {
		return nil, err
	}

	result, err := w.analysis.Analyze(ctx, analysisapi.JobRequest{
		YAML:      []byte(src.yaml),
		Operation: analysis.OpValidate,
		Solver:    solver,
	})
	if err != nil {
		return nil, err
	}
	return marshalEnvelope(map[string]any{
		"request": map[string]any{"url": src.url, "solver": solver, "refresh": req.Refresh},
		"result":  result,
	})
}

// Filter narrows the configuration space by the given criteria.
func (w *Workflow) Filter(ctx context.Context, req tool.FilterRequest) (json.RawMessage, error) {
	src, err := w.resolveSource(ctx, req.SourceArgs)
	if err != nil {
		return nil, err
	}
	solver := defaultSolver(req.Solver)
	grounded, err := w.groundFilters(src, req.Filters, solver)
	if err != nil {
		return nil, err
	}

	result, err := w.analysis.Analyze(ctx, analysisapi.JobRequest{
		YAML:      []byte(src.yaml),
		Operation: analysis.OpFilter,
		Solver:    solver,
		Filters:   grounded,
	})
	if err != nil {
		return nil, err
	}
	return marshalEnvelope(map[string]any{
		"request": map[string]any{"url": src.url, "filters": grounded, "solver": solver},
		"result":  result,
	})
}

func defaultSolver(s string) string {
	if s == "" {
		return tool.SolverMiniZinc
	}
	return s
}

func marshalEnvelope(v map[string]any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return data, nil
}
