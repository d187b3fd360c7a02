package llm

import (
	"fmt"
	"sort"

	"github.com/taskmill/taskmill/internal/config"
	. "github.com/taskmill/taskmill/internal/logging"
)

// Registry holds the ordered set of registered providers and picks the best
// one for a given call. It is a plain value constructed by the caller; there
// is no package-level instance.
type Registry struct {
	providers []Provider
}

// NewRegistry builds a registry over an explicit provider list. Registration
// order is preserved and breaks priority ties.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// DefaultRegistry registers the standard provider set from config, skipping
// vendors the user disabled.
func DefaultRegistry(cfg *config.Config) *Registry {
	r := &Registry{}
	if !cfg.Provider.Anthropic.Disabled {
		r.providers = append(r.providers, NewAnthropicProvider(cfg.Provider.Anthropic))
	}
	if !cfg.Provider.OpenAI.Disabled {
		r.providers = append(r.providers, NewOpenAIProvider(cfg.Provider.OpenAI))
	}
	if !cfg.Provider.Perplexity.Disabled {
		r.providers = append(r.providers, NewPerplexityProvider(cfg.Provider.Perplexity))
	}
	if !cfg.Provider.Grok.Disabled {
		r.providers = append(r.providers, NewGrokProvider(cfg.Provider.Grok))
	}
	if !cfg.Provider.Ollama.Disabled {
		r.providers = append(r.providers, NewOllamaProvider(cfg.Provider.Ollama))
	}
	return r
}

// Providers returns the registered providers in registration order
func (r *Registry) Providers() []Provider {
	return r.providers
}

// SelectBest picks the highest-priority provider that is not excluded, has
// its credentials present, and initializes cleanly. Providers that fail
// initialization are excluded and the next candidate is tried. When no
// provider remains, the returned error wraps ErrNoProvider.
func (r *Registry) SelectBest(creds *config.Credentials, call CallContext) (Provider, error) {
	excluded := call.Excluded

	for {
		var candidates []Provider
		for _, p := range r.providers {
			if excluded.Has(p.Kind()) {
				continue
			}
			if !p.IsAvailable(creds) {
				L_debug("registry: provider lacks credentials", "provider", p.Kind())
				continue
			}
			candidates = append(candidates, p)
		}
		if len(candidates) == 0 {
			return nil, fmt.Errorf("no usable provider (excluded: %v): %w", excluded.Kinds(), ErrNoProvider)
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Priority(call) > candidates[j].Priority(call)
		})

		best := candidates[0]
		if err := best.Initialize(creds); err != nil {
			L_warn("registry: provider failed to initialize, trying next",
				"provider", best.Kind(), "error", err)
			excluded = excluded.with(best.Kind())
			continue
		}

		L_info("registry: selected provider",
			"provider", best.Kind(),
			"model", best.Model(),
			"priority", best.Priority(call))
		return best, nil
	}
}
