// Package provider defines the LLM backend contract and the registry that
// resolves a backend by its public name.
package provider

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"docsearch/internal/domain"
)

// Adapter streams completions from one LLM backend.
//
// Stream never returns an error: failures arrive in-band as a single error
// token, and every stream ends with exactly one done token.
type Adapter interface {
	// Name is the public provider identifier ("deepseek", "groq", "ollama").
	Name() string

	// Stream sends prompt to model and yields the generated text incrementally.
	// Breaking out of the range closes the underlying connection.
	Stream(ctx context.Context, prompt, model string) iter.Seq[domain.StreamToken]

	// ListModels asks the backend which models it serves.
	ListModels(ctx context.Context) ([]string, error)

	// DefaultModels is the fallback list used when ListModels fails.
	DefaultModels() []string
}

// Registry is the closed set of configured adapters, keyed by name.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

// NewRegistry builds a registry. Later adapters replace earlier ones with the same name.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if _, ok := r.adapters[a.Name()]; !ok {
			r.order = append(r.order, a.Name())
		}
		r.adapters[a.Name()] = a
	}
	return r
}

// Get resolves an adapter by name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, name)
	}
	return a, nil
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string { return slices.Clone(r.order) }

// Adapters returns the adapters in registration order.
func (r *Registry) Adapters() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.adapters[n])
	}
	return out
}
