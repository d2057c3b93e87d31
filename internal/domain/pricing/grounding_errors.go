package pricing

import "fmt"

// UnknownFeatureError reports a filter feature name that has no
// counterpart in the authoritative YAML.
type UnknownFeatureError struct {
	Name string
}

func (e *UnknownFeatureError) Error() string {
	return fmt.Sprintf("unknown feature %q", e.Name)
}

// UnknownUsageLimitError reports a filter usage-limit name that has no
// counterpart in the authoritative YAML.
type UnknownUsageLimitError struct {
	Name string
}

func (e *UnknownUsageLimitError) Error() string {
	return fmt.Sprintf("unknown usage limit %q", e.Name)
}

// UnitMismatchError reports a numeric filter applied against a limit whose
// canonical unit does not match. No unit conversion is attempted.
type UnitMismatchError struct {
	Name     string
	Expected string
	Provided string
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("usage limit %q expects %s values, got %s", e.Name, e.Expected, e.Provided)
}

// InvalidRangeError reports a malformed price range or usage-limit entry.
type InvalidRangeError struct {
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return "invalid range: " + e.Reason
}
