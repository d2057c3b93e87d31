// Package pricing defines domain types for pricing contexts: the items a
// conversation works over, canonical URL forms used as cache keys, and the
// filter criteria accepted by the analysis tools.
package pricing

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/isa-group/harvey/internal/domain"
)

// ItemKind identifies what a context item carries.
type ItemKind string

const (
	KindURL  ItemKind = "url"
	KindYAML ItemKind = "yaml"
)

// ItemOrigin records who placed an item into the working set.
type ItemOrigin string

const (
	OriginUser     ItemOrigin = "user"
	OriginDetected ItemOrigin = "detected"
	OriginPreset   ItemOrigin = "preset"
	OriginAgent    ItemOrigin = "agent"
	OriginSphere   ItemOrigin = "sphere"
)

// TransformState tracks the URL→YAML transformation of a url item.
type TransformState string

const (
	TransformNotStarted TransformState = "not-started"
	TransformPending    TransformState = "pending"
	TransformDone       TransformState = "done"
	TransformFailed     TransformState = "failed"
)

// ContextItem is one entry in a session's pricing working set. Kind and
// Origin never change after creation; url items additionally move through
// the TransformState lifecycle.
type ContextItem struct {
	ID             string         `json:"id"`
	Kind           ItemKind       `json:"kind"`
	Origin         ItemOrigin     `json:"origin"`
	Value          string         `json:"value"`
	Transform      TransformState `json:"transform,omitempty"`
	TransformError string         `json:"transform_error,omitempty"`
	ArtifactRef    string         `json:"artifact_ref,omitempty"`
	Label          string         `json:"label,omitempty"`
	Uploaded       bool           `json:"uploaded,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Validate checks the item invariants: yaml items carry a non-empty value,
// url items in the done state carry an artifact reference.
func (i *ContextItem) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("%w: item id is required", domain.ErrValidation)
	}
	switch i.Kind {
	case KindYAML:
		if strings.TrimSpace(i.Value) == "" {
			return fmt.Errorf("%w: yaml item requires content", domain.ErrValidation)
		}
	case KindURL:
		if i.Value == "" {
			return fmt.Errorf("%w: url item requires a url", domain.ErrValidation)
		}
		if i.Transform == TransformDone && i.ArtifactRef == "" {
			return fmt.Errorf("%w: transformed url item requires an artifact reference", domain.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown item kind %q", domain.ErrValidation, i.Kind)
	}
	return nil
}

// urlPattern matches http(s) URLs embedded in free text.
var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// DetectURLs extracts pricing URLs mentioned in a question.
func DetectURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// CanonicalURL normalises a raw URL into the cache-key form: scheme, host
// and path lowercased, default port stripped, fragment removed. Two raw
// strings with the same canonical form share one cache entry.
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: invalid url %q", domain.ErrValidation, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported url scheme %q", domain.ErrValidation, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: url %q has no host", domain.ErrValidation, raw)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}

	path := strings.ToLower(u.EscapedPath())
	path = strings.TrimSuffix(path, "/")

	canonical := scheme + "://" + host + path
	if u.RawQuery != "" {
		canonical += "?" + u.RawQuery
	}
	return canonical, nil
}

// UploadedAliasPrefix is the scheme used to reference uploaded YAML
// contexts instead of a live pricing URL.
const UploadedAliasPrefix = "uploaded://pricing"

// UploadedAlias returns the alias for the n-th uploaded YAML (0-based).
// The first upload keeps the bare prefix for backwards compatibility.
func UploadedAlias(n int) string {
	if n == 0 {
		return UploadedAliasPrefix
	}
	return fmt.Sprintf("%s/%d", UploadedAliasPrefix, n+1)
}

// FilterCriteria is the filter object accepted by the subscriptions,
// optimal and filter tools. Feature and usage-limit names must be grounded
// against the authoritative YAML before the criteria reach the solver.
type FilterCriteria struct {
	MinPrice    *float64             `json:"minPrice,omitempty"`
	MaxPrice    *float64             `json:"maxPrice,omitempty"`
	Features    []string             `json:"features,omitempty"`
	UsageLimits []map[string]float64 `json:"usageLimits,omitempty"`
}

// IsZero reports whether no criteria are set.
func (f *FilterCriteria) IsZero() bool {
	return f == nil ||
		(f.MinPrice == nil && f.MaxPrice == nil && len(f.Features) == 0 && len(f.UsageLimits) == 0)
}

// Validate rejects negative price bounds and inverted ranges.
func (f *FilterCriteria) Validate() error {
	if f == nil {
		return nil
	}
	if f.MinPrice != nil && *f.MinPrice < 0 {
		return &InvalidRangeError{Reason: "minPrice must not be negative"}
	}
	if f.MaxPrice != nil && *f.MaxPrice < 0 {
		return &InvalidRangeError{Reason: "maxPrice must not be negative"}
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return &InvalidRangeError{Reason: "minPrice exceeds maxPrice"}
	}
	for _, limit := range f.UsageLimits {
		if len(limit) != 1 {
			return &InvalidRangeError{Reason: "each usageLimits entry must hold exactly one name"}
		}
	}
	return nil
}

// ValueType classifies a feature or usage limit value in the YAML.
type ValueType string

const (
	ValueBoolean ValueType = "BOOLEAN"
	ValueNumeric ValueType = "NUMERIC"
	ValueText    ValueType = "TEXT"
)

// Feature is one canonical feature declared by a Pricing2Yaml document.
type Feature struct {
	Name      string
	ValueType ValueType
}

// UsageLimit is one canonical usage limit declared by a Pricing2Yaml document.
type UsageLimit struct {
	Name      string
	ValueType ValueType
	Unit      string
}

// Document is the parsed view of a Pricing2Yaml file that grounding works
// over. The YAML itself stays opaque beyond these catalogues.
type Document struct {
	SaaSName    string
	Currency    string
	Features    []Feature
	UsageLimits []UsageLimit
	Plans       []string
	AddOns      []string
}
