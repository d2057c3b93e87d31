package service

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/isa-group/harvey/internal/config"
	"github.com/isa-group/harvey/internal/domain/pricing"
)

// Grounding normalises user-supplied filter names and value types against
// the authoritative Pricing2Yaml document before anything reaches the
// solver. No name that is absent from the YAML survives grounding.
type Grounding struct {
	fuzzy       bool
	maxDistance int
}

// NewGrounding creates the grounding layer with the configured match policy.
func NewGrounding(cfg config.Grounding) *Grounding {
	return &Grounding{
		fuzzy:       cfg.Fuzzy,
		maxDistance: cfg.MaxDistance,
	}
}

// rawPricingDoc is the subset of Pricing2Yaml the grounding layer reads.
type rawPricingDoc struct {
	SaaSName string `yaml:"saasName"`
	Currency string `yaml:"currency"`
	Features map[string]struct {
		ValueType string `yaml:"valueType"`
	} `yaml:"features"`
	UsageLimits map[string]struct {
		ValueType string `yaml:"valueType"`
		Unit      string `yaml:"unit"`
	} `yaml:"usageLimits"`
	Plans  map[string]yaml.Node `yaml:"plans"`
	AddOns map[string]yaml.Node `yaml:"addOns"`
}

// ParseDocument extracts the canonical catalogues from a Pricing2Yaml text.
func ParseDocument(yamlText string) (*pricing.Document, error) {
	var raw rawPricingDoc
	if err := yaml.Unmarshal([]byte(yamlText), &raw); err != nil {
		return nil, fmt.Errorf("parse pricing yaml: %w", err)
	}

	doc := &pricing.Document{
		SaaSName: raw.SaaSName,
		Currency: raw.Currency,
	}
	for name, f := range raw.Features {
		doc.Features = append(doc.Features, pricing.Feature{
			Name:      name,
			ValueType: valueTypeOf(f.ValueType),
		})
	}
	for name, l := range raw.UsageLimits {
		doc.UsageLimits = append(doc.UsageLimits, pricing.UsageLimit{
			Name:      name,
			ValueType: valueTypeOf(l.ValueType),
			Unit:      l.Unit,
		})
	}
	for name := range raw.Plans {
		doc.Plans = append(doc.Plans, name)
	}
	for name := range raw.AddOns {
		doc.AddOns = append(doc.AddOns, name)
	}
	return doc, nil
}

func valueTypeOf(s string) pricing.ValueType {
	switch strings.ToUpper(s) {
	case "NUMERIC":
		return pricing.ValueNumeric
	case "TEXT":
		return pricing.ValueText
	default:
		return pricing.ValueBoolean
	}
}

// Ground rewrites the filter criteria onto canonical names. The returned
// criteria reference only names present in doc; any unresolvable name or
// incompatible value fails with the matching grounding error.
func (g *Grounding) Ground(doc *pricing.Document, filters *pricing.FilterCriteria) (*pricing.FilterCriteria, error) {
	if filters.IsZero() {
		return filters, nil
	}
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	out := &pricing.FilterCriteria{
		MinPrice: filters.MinPrice,
		MaxPrice: filters.MaxPrice,
	}

	featureNames := make([]string, len(doc.Features))
	for i, f := range doc.Features {
		featureNames[i] = f.Name
	}
	for _, name := range filters.Features {
		canonical, ok := g.match(name, featureNames)
		if !ok {
			return nil, &pricing.UnknownFeatureError{Name: name}
		}
		out.Features = append(out.Features, canonical)
	}

	limitNames := make([]string, len(doc.UsageLimits))
	limitsByName := make(map[string]pricing.UsageLimit, len(doc.UsageLimits))
	for i, l := range doc.UsageLimits {
		limitNames[i] = l.Name
		limitsByName[l.Name] = l
	}
	for _, entry := range filters.UsageLimits {
		for name, value := range entry {
			canonical, ok := g.match(name, limitNames)
			if !ok {
				return nil, &pricing.UnknownUsageLimitError{Name: name}
			}
			limit := limitsByName[canonical]
			switch limit.ValueType {
			case pricing.ValueBoolean:
				// Presence means "required true"; any other number is a
				// type mismatch against a boolean limit.
				if value != 0 && value != 1 {
					return nil, &pricing.UnitMismatchError{
						Name:     canonical,
						Expected: "boolean (0 or 1)",
						Provided: fmt.Sprintf("%v", value),
					}
				}
				out.UsageLimits = append(out.UsageLimits, map[string]float64{canonical: 1})
			case pricing.ValueNumeric:
				out.UsageLimits = append(out.UsageLimits, map[string]float64{canonical: value})
			default:
				return nil, &pricing.UnitMismatchError{
					Name:     canonical,
					Expected: string(limit.ValueType),
					Provided: "number",
				}
			}
		}
	}

	return out, nil
}

// match resolves a user-supplied name to a canonical one: exact first, then
// case-insensitive, then normalized (non-alphanumerics stripped), then the
// closest Levenshtein candidate within the distance cap when fuzzy matching
// is enabled.
func (g *Grounding) match(name string, candidates []string) (string, bool) {
	for _, c := range candidates {
		if c == name {
			return c, true
		}
	}
	for _, c := range candidates {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	normalized := normalizeName(name)
	for _, c := range candidates {
		if normalizeName(c) == normalized {
			return c, true
		}
	}

	if !g.fuzzy {
		return "", false
	}

	best := ""
	bestDistance := g.maxDistance + 1
	for _, c := range candidates {
		d := levenshtein(normalized, normalizeName(c))
		if d < bestDistance {
			best = c
			bestDistance = d
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// normalizeName lowercases and strips non-alphanumeric runes.
func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
