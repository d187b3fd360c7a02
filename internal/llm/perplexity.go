// Package llm provides LLM client implementations.
package llm

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/taskmill/taskmill/internal/config"
	. "github.com/taskmill/taskmill/internal/logging"
)

// Credential-source keys for the Perplexity adapter
const (
	EnvPerplexityAPIKey = "PERPLEXITY_API_KEY"
	EnvPerplexityModel  = "PERPLEXITY_MODEL"
)

const (
	defaultPerplexityBaseURL   = "https://api.perplexity.ai"
	defaultPerplexityModel     = "sonar-pro"
	defaultPerplexityMaxTokens = 8192
)

// PerplexityProvider implements Provider for Perplexity's OpenAI-compatible
// API. It carries the web-connected research capability: its priority jumps
// when the caller requires research-backed generation.
type PerplexityProvider struct {
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	baseURL     string
	client      *openai.Client
}

// NewPerplexityProvider creates the adapter from provider config
func NewPerplexityProvider(cfg config.ProviderConfig) *PerplexityProvider {
	model := cfg.Model
	if model == "" {
		model = defaultPerplexityModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultPerplexityMaxTokens
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultPerplexityBaseURL
	}
	return &PerplexityProvider{
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
		baseURL:     baseURL,
	}
}

// Kind returns the provider vendor tag
func (p *PerplexityProvider) Kind() Kind {
	return KindPerplexity
}

// Model returns the configured model name
func (p *PerplexityProvider) Model() string {
	return p.model
}

// IsAvailable reports whether the API key is present in the credential source
func (p *PerplexityProvider) IsAvailable(creds *config.Credentials) bool {
	return creds.Has(EnvPerplexityAPIKey)
}

// Initialize constructs the Perplexity client
func (p *PerplexityProvider) Initialize(creds *config.Credentials) error {
	key := creds.Get(EnvPerplexityAPIKey)
	if key == "" {
		return credentialError(KindPerplexity, EnvPerplexityAPIKey)
	}
	if m := creds.Get(EnvPerplexityModel); m != "" {
		p.model = m
	}
	p.client = newChatClient(key, p.baseURL, p.timeout)
	L_debug("perplexity: initialized", "model", p.model, "maxTokens", p.maxTokens)
	return nil
}

// Priority is low for plain generation but dominates when research is
// required, and rises when the cloud rivals are overloaded.
func (p *PerplexityProvider) Priority(call CallContext) int {
	score := 40
	if call.OverloadedRivals.Has(KindAnthropic) || call.OverloadedRivals.Has(KindOpenAI) {
		score += 30
	}
	if call.ResearchRequired {
		score += 120
	}
	return score
}

// CallModel streams a completion, retrying transient failures locally
func (p *PerplexityProvider) CallModel(ctx context.Context, call CallContext) (*Result, error) {
	if p.client == nil {
		return nil, credentialError(KindPerplexity, EnvPerplexityAPIKey)
	}
	return callWithRetry(ctx, call, KindPerplexity, p.model, func(ctx context.Context, call CallContext) (*Result, error) {
		return streamChatCompletion(ctx, p.client, KindPerplexity, p.model, p.maxTokens, p.temperature, call)
	})
}
