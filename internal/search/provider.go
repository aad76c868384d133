// Package search provides context providers: collaborators that produce
// supplementary text for a query from an external or internal knowledge
// source. Providers never fail past their own boundary; any internal error
// degrades to an empty or placeholder string so the answer pipeline can
// proceed with impoverished context.
package search

import "context"

// Provider produces one formatted context block for a query. The returned
// text is consumed verbatim by the model prompt, so citation markers and
// quoting are baked in here.
type Provider interface {
	// Name identifies the provider in status updates and metrics.
	Name() string

	// Search returns the context block for the query. It never panics and
	// never reports an error; failures surface only as degraded content.
	Search(ctx context.Context, query string) string
}
