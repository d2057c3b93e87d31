// Package extractor defines the port for the HTML→YAML transformation
// pipeline (A-MINT). Transformations may take minutes and are only invoked
// through the pricing cache's single-flight path.
package extractor

import "context"

// Client turns a pricing page URL into a Pricing2Yaml document.
type Client interface {
	Transform(ctx context.Context, url string) (string, error)
}
