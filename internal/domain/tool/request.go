package tool

import (
	"encoding/json"
	"fmt"

	"github.com/isa-group/harvey/internal/domain/pricing"
)

// Built-in tool names. These are contractual: the frontend, the planner
// prompts and the MCP surface all refer to them verbatim.
const (
	NameIPricing      = "iPricing"
	NameSummary       = "summary"
	NameSubscriptions = "subscriptions"
	NameOptimal       = "optimal"
	NameValidate      = "validate"
	NameFilter        = "filter"
)

// Solver and objective enumerations shared by the analysis tools.
const (
	SolverMiniZinc = "minizinc"
	SolverChoco    = "choco"

	ObjectiveMinimize = "minimize"
	ObjectiveMaximize = "maximize"
)

// Request is the tagged sum over the known tool argument shapes. Adding a
// tool forces a new variant and a new case in ParseRequest.
type Request interface {
	toolName() string
}

// SourceArgs is the pricing-source pair shared by every built-in tool: at
// least one of PricingURL and PricingYAML must be supplied. When both are,
// the workflow uses PricingYAML.
type SourceArgs struct {
	PricingURL  string `json:"pricing_url,omitempty"`
	PricingYAML string `json:"pricing_yaml,omitempty"`
	Refresh     bool   `json:"refresh,omitempty"`
}

// Validate rejects arguments that name no pricing source. Supplying both
// sources is not rejected.
func (s *SourceArgs) Validate() error {
	if s.PricingURL == "" && s.PricingYAML == "" {
		return &ArgumentError{Path: "pricing_url", Reason: "either pricing_url or pricing_yaml is required"}
	}
	return nil
}

// IPricingRequest fetches the canonical Pricing2Yaml document.
type IPricingRequest struct {
	SourceArgs
}

// SummaryRequest returns catalogue counts and statistics.
type SummaryRequest struct {
	SourceArgs
}

// SubscriptionsRequest enumerates the valid configuration space.
type SubscriptionsRequest struct {
	SourceArgs
	Filters *pricing.FilterCriteria `json:"filters,omitempty"`
	Solver  string                  `json:"solver,omitempty"`
}

// OptimalRequest finds one optimal configuration under an objective.
type OptimalRequest struct {
	SourceArgs
	Filters   *pricing.FilterCriteria `json:"filters,omitempty"`
	Solver    string                  `json:"solver,omitempty"`
	Objective string                  `json:"objective,omitempty"`
}

// ValidateRequest checks the pricing model against a solver.
type ValidateRequest struct {
	SourceArgs
	Solver string `json:"solver,omitempty"`
}

// FilterRequest narrows the configuration space by criteria.
type FilterRequest struct {
	SourceArgs
	Filters *pricing.FilterCriteria `json:"filters"`
	Solver  string                  `json:"solver,omitempty"`
}

func (IPricingRequest) toolName() string      { return NameIPricing }
func (SummaryRequest) toolName() string       { return NameSummary }
func (SubscriptionsRequest) toolName() string { return NameSubscriptions }
func (OptimalRequest) toolName() string       { return NameOptimal }
func (ValidateRequest) toolName() string      { return NameValidate }
func (FilterRequest) toolName() string        { return NameFilter }

// ParseRequest decodes raw tool arguments into the typed variant for the
// given tool name. Dispatch is exhaustive over the built-in names.
func ParseRequest(name string, args json.RawMessage) (Request, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	decode := func(dst any) error {
		if err := json.Unmarshal(args, dst); err != nil {
			return &ArgumentError{Path: ".", Reason: fmt.Sprintf("malformed arguments: %v", err)}
		}
		return nil
	}

	switch name {
	case NameIPricing:
		var req IPricingRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		return req, req.Validate()
	case NameSummary:
		var req SummaryRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		return req, req.Validate()
	case NameSubscriptions:
		var req SubscriptionsRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		return req, req.Validate()
	case NameOptimal:
		var req OptimalRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		return req, req.Validate()
	case NameValidate:
		var req ValidateRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		return req, req.Validate()
	case NameFilter:
		var req FilterRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		if req.Filters.IsZero() {
			return nil, &ArgumentError{Path: "filters", Reason: "filter requires a non-empty filters object"}
		}
		return req, req.Validate()
	default:
		return nil, &NotFoundError{Name: name}
	}
}
