// Package llm provides unified LLM provider interfaces and implementations.
package llm

import (
	"context"

	"github.com/taskmill/taskmill/internal/config"
)

// Kind identifies a provider vendor. It is resolved once at registration
// time and never inferred from client object shape.
type Kind string

const (
	KindAnthropic  Kind = "anthropic"
	KindOpenAI     Kind = "openai"
	KindPerplexity Kind = "perplexity"
	KindGrok       Kind = "grok"
	KindOllama     Kind = "ollama"
)

// Provider is the unified interface for all LLM backends.
// Implementations: AnthropicProvider, OpenAIProvider, PerplexityProvider,
// GrokProvider, OllamaProvider.
type Provider interface {
	// Identity
	Kind() Kind    // Vendor tag, fixed at registration
	Model() string // Current model name

	// IsAvailable reports whether the required secret is present in the
	// credential source. Pure configuration check, no network I/O.
	IsAvailable(creds *config.Credentials) bool

	// Initialize constructs the vendor client from credentials. Fails with a
	// credential error when no secret is found. Never retried.
	Initialize(creds *config.Credentials) error

	// CallModel issues a streaming generation request built from the call
	// context, accumulating emitted text fragments in arrival order.
	// Transient vendor errors are retried locally up to MaxCallRetries
	// before a classified *ProviderError surfaces.
	CallModel(ctx context.Context, call CallContext) (*Result, error)

	// Priority ranks the provider for selection; higher wins. The score is
	// context-sensitive: it rises when a rival is known to be overloaded and
	// rises further when the call requires this provider's special
	// capability (e.g. web-connected research).
	Priority(call CallContext) int
}

// KindSet is an immutable set of provider kinds. Mutation happens only via
// with(), which clones, so call contexts can be copied freely.
type KindSet map[Kind]struct{}

// Has reports set membership
func (s KindSet) Has(k Kind) bool {
	_, ok := s[k]
	return ok
}

func (s KindSet) with(k Kind) KindSet {
	next := make(KindSet, len(s)+1)
	for key := range s {
		next[key] = struct{}{}
	}
	next[k] = struct{}{}
	return next
}

// Kinds returns the members in unspecified order
func (s KindSet) Kinds() []Kind {
	out := make([]Kind, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// CallContext carries one generation request through the selection/retry
// chain. It is passed by value; RetryCount, Excluded and OverloadedRivals
// change only through the With* copy helpers, so no two stages ever share
// mutable state.
type CallContext struct {
	SystemPrompt    string
	UserPrompt      string
	TargetTaskCount int
	RetryCount      int
	OutputFormat    string // "json" or "yaml", passed through to the output consumer

	Excluded         KindSet // Provider kinds the registry must not select
	OverloadedRivals KindSet // Kinds observed overloaded during this request

	ResearchRequired bool // Caller wants a web-connected provider

	MaxTokens   int     // Output limit override (0 = provider default)
	Temperature float64 // Sampling override (0 = provider default)

	// OnProgress receives fractional progress in [0,1] during streaming.
	// Nil is tolerated.
	OnProgress func(frac float64)
}

// WithRetryCount returns a copy with the retry counter set
func (c CallContext) WithRetryCount(n int) CallContext {
	c.RetryCount = n
	return c
}

// WithExcluded returns a copy whose exclusion set also contains k
func (c CallContext) WithExcluded(k Kind) CallContext {
	c.Excluded = c.Excluded.with(k)
	return c
}

// WithOverloadedRival returns a copy noting that k was observed overloaded
func (c CallContext) WithOverloadedRival(k Kind) CallContext {
	c.OverloadedRivals = c.OverloadedRivals.with(k)
	return c
}

func (c CallContext) reportProgress(frac float64) {
	if c.OnProgress == nil {
		return
	}
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	c.OnProgress(frac)
}

// effectiveTuning resolves the output limit and sampling temperature for one
// call: explicit call overrides win, otherwise the provider's configured
// defaults apply.
func effectiveTuning(cfgMax int, cfgTemp float64, call CallContext) (maxTokens int, temperature float64) {
	maxTokens = cfgMax
	if call.MaxTokens > 0 {
		maxTokens = call.MaxTokens
	}
	temperature = cfgTemp
	if call.Temperature > 0 {
		temperature = call.Temperature
	}
	return maxTokens, temperature
}

// Result is the normalized outcome of a successful model call.
type Result struct {
	Text         string // Accumulated streamed text, arrival order
	RetryCount   int    // Final attempt counter (0 = succeeded first try)
	InputTokens  int
	OutputTokens int
	Kind         Kind
	Model        string
}
