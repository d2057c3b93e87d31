package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/isa-group/harvey/internal/config"
	"github.com/isa-group/harvey/internal/domain/pricing"
	"github.com/isa-group/harvey/internal/domain/tool"
	"github.com/isa-group/harvey/internal/port/analysisapi"
)

// spyAnalysis records job submissions.
type spyAnalysis struct {
	mu       sync.Mutex
	jobs     []analysisapi.JobRequest
	result   json.RawMessage
	err      error
	summary  json.RawMessage
	sumCalls int
}

func (s *spyAnalysis) Summary(context.Context, []byte) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sumCalls++
	if s.summary == nil {
		return json.RawMessage(`{"numberOfFeatures":3}`), nil
	}
	return s.summary, nil
}

func (s *spyAnalysis) Analyze(_ context.Context, req analysisapi.JobRequest) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, req)
	if s.err != nil {
		return nil, s.err
	}
	if s.result == nil {
		return json.RawMessage(`{"cardinality":2}`), nil
	}
	return s.result, nil
}

func (s *spyAnalysis) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func newTestWorkflow(t *testing.T, analysisClient *spyAnalysis) *Workflow {
	t.Helper()
	ext := &spyExtractor{yaml: testYAML}
	cache := NewPricingCache(testCacheConfig(), missStore{}, ext, nil)
	grounding := NewGrounding(config.Grounding{Fuzzy: true, MaxDistance: 3})
	return NewWorkflow(cache, analysisClient, grounding)
}

func TestOptimalGroundsFiltersBeforeDispatch(t *testing.T) {
	spy := &spyAnalysis{}
	w := newTestWorkflow(t, spy)

	result, err := w.Optimal(context.Background(), tool.OptimalRequest{
		SourceArgs: tool.SourceArgs{PricingYAML: testYAML},
		Filters: &pricing.FilterCriteria{
			Features:    []string{"sso"},
			UsageLimits: []map[string]float64{{"seats": 10}},
		},
		Objective: tool.ObjectiveMinimize,
	})
	if err != nil {
		t.Fatal(err)
	}

	if spy.jobCount() != 1 {
		t.Fatalf("expected one analysis job, got %d", spy.jobCount())
	}
	job := spy.jobs[0]
	if job.Filters.Features[0] != "SSO" {
		t.Errorf("feature not grounded to canonical name: %v", job.Filters.Features)
	}
	if _, ok := job.Filters.UsageLimits[0]["Seats"]; !ok {
		t.Errorf("usage limit not grounded: %v", job.Filters.UsageLimits)
	}
	if job.Objective != tool.ObjectiveMinimize || job.Solver != tool.SolverMiniZinc {
		t.Errorf("unexpected job parameters %+v", job)
	}

	var envelope struct {
		Request struct {
			Filters pricing.FilterCriteria `json:"filters"`
		} `json:"request"`
	}
	if err := json.Unmarshal(result, &envelope); err != nil {
		t.Fatal(err)
	}
	if len(envelope.Request.Filters.Features) != 1 || envelope.Request.Filters.Features[0] != "SSO" {
		t.Errorf("result envelope should echo the grounded filter, got %+v", envelope.Request.Filters)
	}
}

func TestUnknownFeatureNeverReachesAnalysis(t *testing.T) {
	spy := &spyAnalysis{}
	w := newTestWorkflow(t, spy)

	_, err := w.Optimal(context.Background(), tool.OptimalRequest{
		SourceArgs: tool.SourceArgs{PricingYAML: testYAML},
		Filters:    &pricing.FilterCriteria{Features: []string{"SsoPlusUltraMega"}},
	})
	var unknown *pricing.UnknownFeatureError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownFeatureError, got %v", err)
	}
	if spy.jobCount() != 0 {
		t.Error("grounding failures must short-circuit before the analysis API")
	}
}

func TestUnitMismatchNeverReachesAnalysis(t *testing.T) {
	spy := &spyAnalysis{}
	w := newTestWorkflow(t, spy)

	_, err := w.Subscriptions(context.Background(), tool.SubscriptionsRequest{
		SourceArgs: tool.SourceArgs{PricingYAML: testYAML},
		Filters:    &pricing.FilterCriteria{UsageLimits: []map[string]float64{{"Support window": 5}}},
	})
	var mismatch *pricing.UnitMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected UnitMismatchError, got %v", err)
	}
	if spy.jobCount() != 0 {
		t.Error("unit mismatch must not produce an analysis call")
	}
}

func TestSubscriptionsUsesFilterOperationWhenFiltered(t *testing.T) {
	spy := &spyAnalysis{}
	w := newTestWorkflow(t, spy)
	ctx := context.Background()

	if _, err := w.Subscriptions(ctx, tool.SubscriptionsRequest{
		SourceArgs: tool.SourceArgs{PricingYAML: testYAML},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Subscriptions(ctx, tool.SubscriptionsRequest{
		SourceArgs: tool.SourceArgs{PricingYAML: testYAML},
		Filters:    &pricing.FilterCriteria{Features: []string{"SSO"}},
	}); err != nil {
		t.Fatal(err)
	}

	if string(spy.jobs[0].Operation) != "subscriptions" {
		t.Errorf("unfiltered call should use subscriptions, got %s", spy.jobs[0].Operation)
	}
	if string(spy.jobs[1].Operation) != "filter" {
		t.Errorf("filtered call should use filter, got %s", spy.jobs[1].Operation)
	}
}

func TestInvalidSolverRejected(t *testing.T) {
	spy := &spyAnalysis{}
	w := newTestWorkflow(t, spy)

	_, err := w.Validate(context.Background(), tool.ValidateRequest{
		SourceArgs: tool.SourceArgs{PricingYAML: testYAML},
		Solver:     "z3",
	})
	var argErr *tool.ArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("expected ArgumentError for unknown solver, got %v", err)
	}
	if spy.jobCount() != 0 {
		t.Error("invalid solver must not reach the analysis API")
	}
}

func TestIPricingResolvesThroughCache(t *testing.T) {
	spy := &spyAnalysis{}
	ext := &spyExtractor{yaml: testYAML}
	cache := NewPricingCache(testCacheConfig(), missStore{}, ext, nil)
	w := NewWorkflow(cache, spy, NewGrounding(config.Grounding{Fuzzy: true, MaxDistance: 3}))
	ctx := context.Background()

	result, err := w.IPricing(ctx, tool.IPricingRequest{
		SourceArgs: tool.SourceArgs{PricingURL: "https://Example.com/Pricing"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var envelope struct {
		PricingYAML string `json:"pricing_yaml"`
		Source      string `json:"source"`
	}
	if err := json.Unmarshal(result, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.PricingYAML != testYAML {
		t.Error("iPricing should return the transformed document")
	}
	if envelope.Source != "amint" {
		t.Errorf("expected amint source, got %s", envelope.Source)
	}

	// Second call is served from cache.
	if _, err := w.IPricing(ctx, tool.IPricingRequest{
		SourceArgs: tool.SourceArgs{PricingURL: "https://example.com/pricing"},
	}); err != nil {
		t.Fatal(err)
	}
	if ext.callCount() != 1 {
		t.Errorf("expected one extractor call across both requests, got %d", ext.callCount())
	}
}

func TestSummaryUsesUploadedYAMLDirectly(t *testing.T) {
	spy := &spyAnalysis{}
	w := newTestWorkflow(t, spy)

	if _, err := w.Summary(context.Background(), tool.SummaryRequest{
		SourceArgs: tool.SourceArgs{PricingYAML: testYAML},
	}); err != nil {
		t.Fatal(err)
	}
	if spy.sumCalls != 1 {
		t.Errorf("expected one summary call, got %d", spy.sumCalls)
	}
}
