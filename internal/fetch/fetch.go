package fetch

import (
	"context"
	"fmt"

	"newsdigest/internal/domain"
)

// Fetcher captures a single retrieval strategy (RSS, HTML, etc.).
type Fetcher interface {
	Type() string
	Fetch(ctx context.Context, url string) ([]domain.RawItem, error)
}

// Registry keeps a mapping from source types to their fetchers.
type Registry struct {
	fetchers map[string]Fetcher
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{fetchers: map[string]Fetcher{}}
}

// Register adds or replaces a fetcher implementation.
func (r *Registry) Register(f Fetcher) {
	if r.fetchers == nil {
		r.fetchers = map[string]Fetcher{}
	}
	r.fetchers[f.Type()] = f
}

// Resolve returns a fetcher by source type or an error if it is absent.
// Unknown types are expected for forward compatibility; callers skip them.
func (r *Registry) Resolve(sourceType string) (Fetcher, error) {
	if f, ok := r.fetchers[sourceType]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("fetcher %s is not registered", sourceType)
}
