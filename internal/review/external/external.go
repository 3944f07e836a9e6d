// Package external declares the caller-provided collaborator interfaces
// spec.md §1 leaves out of scope: concrete search connectors, LLM
// providers, PDF retrieval, and manuscript writing. Only the contracts live
// here; conforming implementations are supplied by the host application.
package external

import (
	"context"

	"github.com/danshapiro/litreview/internal/review/review"
)

// SearchQuery is the uniform request shape every database connector must
// accept (spec.md §1: "treated as search providers conforming to a uniform
// query/result interface").
type SearchQuery struct {
	Topic             string
	Keywords          []string
	DateRangeStart    string
	DateRangeEnd      string
	MaxResults        int
}

// Searcher is implemented once per target database (PubMed, OpenAlex, ...).
type Searcher interface {
	// Name identifies the database this searcher queries, used as the
	// key in PRISMAState.Found and DatabaseBreakdown.
	Name() string
	Search(ctx context.Context, q SearchQuery) ([]review.Paper, error)
}

// CompletionRequest is a single LLM call, optionally constrained to a JSON
// schema response shape (spec.md §1: "complete(prompt, model, temperature,
// schema?) -> text").
type CompletionRequest struct {
	Prompt      string
	Model       string
	Tier        string // rate-limit tier key, e.g. "flash", "pro"
	Temperature float64
	Schema      map[string]any // JSON Schema; nil means unconstrained text
}

// LLM is the capability contract every model provider must satisfy.
type LLM interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// PDFRetriever fetches and extracts text from a paper's full text, given
// whatever identifying fields Paper carries (DOI, PDFURL, ...).
type PDFRetriever interface {
	Retrieve(ctx context.Context, p review.Paper) (fullText string, err error)
}

// Writer renders a manuscript section given accumulated state; callers
// supply one per section kind (introduction, methods, ...) or a single
// writer dispatching on kind.
type Writer interface {
	Write(ctx context.Context, kind string, state map[string]any) (string, error)
}
