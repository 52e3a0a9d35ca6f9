package websearch

import (
	"context"

	"github.com/ent0n29/cheapchat/internal/apperr"
)

const DefaultResults = 5

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher runs a web query and returns at most n results.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, n int) ([]Result, error)
}

// New returns the searcher for a provider name (duckduckgo, mock, off).
func New(provider string) Searcher {
	switch provider {
	case "mock":
		return NewMock()
	case "off", "disabled", "none":
		return Disabled{}
	default:
		return NewDuckDuckGo()
	}
}

// Disabled rejects every query.
type Disabled struct{}

func (Disabled) Name() string { return "off" }

func (Disabled) Search(context.Context, string, int) ([]Result, error) {
	return nil, apperr.Validation("web search disabled")
}

// Mock returns canned results derived from the query.
type Mock struct {
	Results []Result
}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Search(_ context.Context, query string, n int) ([]Result, error) {
	out := m.Results
	if out == nil {
		out = []Result{
			{Title: "About " + query, URL: "https://example.com/1", Snippet: "First result for " + query},
			{Title: "More on " + query, URL: "https://example.com/2", Snippet: "Second result for " + query},
		}
	}
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return append([]Result(nil), out...), nil
}
