package service

import (
	"context"
	"encoding/json"

	"github.com/isa-group/harvey/internal/domain/tool"
)

// RegisterBuiltins registers the six contractual pricing tools on the
// registry and seals it.
func RegisterBuiltins(reg *Registry, w *Workflow) {
	for _, b := range builtinDescriptors() {
		reg.Register(b, dispatcher(w, b.Name))
	}
	reg.Seal()
}

// dispatcher decodes arguments into the tagged request variant for name and
// dispatches exhaustively. A new tool name fails to compile here until a
// case is added.
func dispatcher(w *Workflow, name string) ToolFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		req, err := tool.ParseRequest(name, args)
		if err != nil {
			return nil, err
		}
		switch r := req.(type) {
		case tool.IPricingRequest:
			return w.IPricing(ctx, r)
		case tool.SummaryRequest:
			return w.Summary(ctx, r)
		case tool.SubscriptionsRequest:
			return w.Subscriptions(ctx, r)
		case tool.OptimalRequest:
			return w.Optimal(ctx, r)
		case tool.ValidateRequest:
			return w.Validate(ctx, r)
		case tool.FilterRequest:
			return w.Filter(ctx, r)
		default:
			return nil, &tool.NotFoundError{Name: name}
		}
	}
}

// builtinDescriptors declares the schemas for the contractual tool names.
func builtinDescriptors() []tool.Descriptor {
	zero := 0.0
	sourceParams := func() map[string]tool.Param {
		return map[string]tool.Param{
			"pricing_url": {
				Type:        tool.TypeString,
				Optional:    true,
				Description: "Pricing page URL; transformed through the A-MINT pipeline",
			},
			"pricing_yaml": {
				Type:        tool.TypeString,
				Optional:    true,
				Description: "Raw Pricing2Yaml content; used instead of a URL when present",
			},
			"refresh": {
				Type:        tool.TypeBoolean,
				Optional:    true,
				Description: "Bypass the cache and re-run the transformation",
			},
		}
	}
	filtersParam := tool.Param{
		Type:        tool.TypeObject,
		Optional:    true,
		Description: "FilterCriteria: minPrice, maxPrice, features, usageLimits",
		Nested: map[string]tool.Param{
			"minPrice": {Type: tool.TypeNumber, Optional: true, Minimum: &zero},
			"maxPrice": {Type: tool.TypeNumber, Optional: true, Minimum: &zero},
			"features": {
				Type:     tool.TypeArray,
				Optional: true,
				Items:    &tool.Param{Type: tool.TypeString},
			},
			"usageLimits": {
				Type:     tool.TypeArray,
				Optional: true,
				Items:    &tool.Param{Type: tool.TypeObject},
			},
		},
	}
	solverParam := tool.Param{
		Type:        tool.TypeString,
		Optional:    true,
		Enum:        []string{tool.SolverMiniZinc, tool.SolverChoco},
		Description: "CSP solver backing the analysis",
	}

	ipricing := tool.Descriptor{
		Name:        tool.NameIPricing,
		Description: "Return the canonical Pricing2Yaml (iPricing) document for a pricing URL or uploaded YAML",
		Input:       sourceParams(),
		Effect:      tool.EffectNetwork,
	}

	summary := tool.Descriptor{
		Name:        tool.NameSummary,
		Description: "Return catalogue counts and statistics (features, limits, add-ons) for a pricing",
		Input:       sourceParams(),
		Effect:      tool.EffectNetwork,
	}

	subsInput := sourceParams()
	subsInput["filters"] = filtersParam
	subsInput["solver"] = solverParam
	subscriptions := tool.Descriptor{
		Name:        tool.NameSubscriptions,
		Description: "Enumerate every valid subscription configuration and the configuration-space cardinality",
		Input:       subsInput,
		Effect:      tool.EffectNetwork,
	}

	optimalInput := sourceParams()
	optimalInput["filters"] = filtersParam
	optimalInput["solver"] = solverParam
	optimalInput["objective"] = tool.Param{
		Type:        tool.TypeString,
		Optional:    true,
		Enum:        []string{tool.ObjectiveMinimize, tool.ObjectiveMaximize},
		Description: "Optimisation direction over subscription cost",
	}
	optimal := tool.Descriptor{
		Name:        tool.NameOptimal,
		Description: "Compute the cheapest or most expensive subscription configuration under the filters",
		Input:       optimalInput,
		Effect:      tool.EffectNetwork,
	}

	validateInput := sourceParams()
	validateInput["solver"] = solverParam
	validate := tool.Descriptor{
		Name:        tool.NameValidate,
		Description: "Validate the pricing model against the selected solver",
		Input:       validateInput,
		Effect:      tool.EffectNetwork,
	}

	filterInput := sourceParams()
	requiredFilters := filtersParam
	requiredFilters.Optional = false
	filterInput["filters"] = requiredFilters
	filterInput["solver"] = solverParam
	filter := tool.Descriptor{
		Name:        tool.NameFilter,
		Description: "Narrow the configuration space by filter criteria",
		Input:       filterInput,
		Effect:      tool.EffectNetwork,
	}

	return []tool.Descriptor{ipricing, summary, subscriptions, optimal, validate, filter}
}
