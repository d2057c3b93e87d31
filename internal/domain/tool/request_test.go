package tool

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseRequestVariants(t *testing.T) {
	req, err := ParseRequest(NameOptimal, json.RawMessage(`{"pricing_url":"https://x.example/pricing","objective":"maximize","filters":{"maxPrice":100}}`))
	if err != nil {
		t.Fatal(err)
	}
	optimal, ok := req.(OptimalRequest)
	if !ok {
		t.Fatalf("expected OptimalRequest, got %T", req)
	}
	if optimal.Objective != "maximize" {
		t.Errorf("unexpected objective %s", optimal.Objective)
	}
	if optimal.Filters == nil || optimal.Filters.MaxPrice == nil || *optimal.Filters.MaxPrice != 100 {
		t.Errorf("filters not decoded: %+v", optimal.Filters)
	}
}

func TestParseRequestRequiresSource(t *testing.T) {
	_, err := ParseRequest(NameSummary, json.RawMessage(`{}`))
	var argErr *ArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}

func TestParseRequestUnknownTool(t *testing.T) {
	_, err := ParseRequest("teleport", json.RawMessage(`{}`))
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.Name != "teleport" {
		t.Errorf("unexpected name %s", nf.Name)
	}
}

func TestParseRequestFilterRequiresFilters(t *testing.T) {
	_, err := ParseRequest(NameFilter, json.RawMessage(`{"pricing_yaml":"saasName: X"}`))
	var argErr *ArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}

func TestParseRequestMalformedArguments(t *testing.T) {
	_, err := ParseRequest(NameIPricing, json.RawMessage(`[1,2]`))
	var argErr *ArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}

func TestCanonicalJSONStableKeyOrder(t *testing.T) {
	a := CanonicalJSON(json.RawMessage(`{"b":1,"a":{"d":4,"c":3}}`))
	b := CanonicalJSON(json.RawMessage(`{"a":{"c":3,"d":4},"b":1}`))
	if string(a) != string(b) {
		t.Errorf("canonical forms differ: %s vs %s", a, b)
	}
	if string(a) != `{"a":{"c":3,"d":4},"b":1}` {
		t.Errorf("unexpected canonical form %s", a)
	}
}

func TestSchemaJSONMarksRequiredAndBounds(t *testing.T) {
	zero := 0.0
	desc := Descriptor{
		Name: "demo",
		Input: map[string]Param{
			"count": {Type: TypeNumber, Minimum: &zero},
			"mode":  {Type: TypeString, Optional: true, Enum: []string{"a", "b"}},
		},
	}

	var schema struct {
		Type                 string         `json:"type"`
		Required             []string       `json:"required"`
		AdditionalProperties bool           `json:"additionalProperties"`
		Properties           map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(SchemaJSON(desc), &schema); err != nil {
		t.Fatal(err)
	}
	if schema.Type != "object" {
		t.Errorf("unexpected type %s", schema.Type)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "count" {
		t.Errorf("unexpected required %v", schema.Required)
	}
	if schema.AdditionalProperties {
		t.Error("expected additionalProperties false")
	}
	if _, ok := schema.Properties["mode"]; !ok {
		t.Error("mode missing from properties")
	}
}
