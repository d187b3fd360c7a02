// Package llm provides LLM client implementations.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	. "github.com/taskmill/taskmill/internal/logging"
	"github.com/taskmill/taskmill/internal/tokens"

	"github.com/taskmill/taskmill/internal/config"
)

// Credential-source keys for the Anthropic adapter
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvAnthropicModel  = "ANTHROPIC_MODEL"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-5"
	defaultAnthropicMaxTokens = 8192
	anthropicContextWindow    = 200000
)

// AnthropicProvider implements Provider for Anthropic's Claude API.
// Streaming only; text fragments are accumulated in arrival order.
type AnthropicProvider struct {
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	baseURL     string
	client      *anthropic.Client
}

// NewAnthropicProvider creates the adapter from provider config.
// The vendor client itself is built in Initialize.
func NewAnthropicProvider(cfg config.ProviderConfig) *AnthropicProvider {
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &AnthropicProvider{
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
		baseURL:     cfg.BaseURL,
	}
}

// Kind returns the provider vendor tag
func (p *AnthropicProvider) Kind() Kind {
	return KindAnthropic
}

// Model returns the configured model name
func (p *AnthropicProvider) Model() string {
	return p.model
}

// IsAvailable reports whether the API key is present in the credential source
func (p *AnthropicProvider) IsAvailable(creds *config.Credentials) bool {
	return creds.Has(EnvAnthropicAPIKey)
}

// Initialize constructs the Anthropic client. Fails without retry when the
// API key is absent.
func (p *AnthropicProvider) Initialize(creds *config.Credentials) error {
	key := creds.Get(EnvAnthropicAPIKey)
	if key == "" {
		return credentialError(KindAnthropic, EnvAnthropicAPIKey)
	}
	if m := creds.Get(EnvAnthropicModel); m != "" {
		p.model = m
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithHTTPClient(&http.Client{Timeout: p.timeout}),
	}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	client := anthropic.NewClient(opts...)
	p.client = &client

	L_debug("anthropic: initialized", "model", p.model, "maxTokens", p.maxTokens)
	return nil
}

// Priority ranks Anthropic as the primary generation provider
func (p *AnthropicProvider) Priority(call CallContext) int {
	return 100
}

// CallModel streams a completion, retrying transient failures locally
func (p *AnthropicProvider) CallModel(ctx context.Context, call CallContext) (*Result, error) {
	if p.client == nil {
		return nil, credentialError(KindAnthropic, EnvAnthropicAPIKey)
	}
	return callWithRetry(ctx, call, KindAnthropic, p.model, p.stream)
}

func (p *AnthropicProvider) stream(ctx context.Context, call CallContext) (*Result, error) {
	startTime := time.Now()

	maxTokens, temperature := effectiveTuning(p.maxTokens, p.temperature, call)
	estimator := tokens.Get()
	estimatedInput := estimator.Count(call.SystemPrompt) + estimator.Count(call.UserPrompt)
	maxTokens = tokens.CapMaxTokens(maxTokens, anthropicContextWindow, estimatedInput, 100)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(call.UserPrompt)),
		},
	}
	if call.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: call.SystemPrompt}}
	}
	if temperature > 0 {
		params.Temperature = anthropic.Float(temperature)
	}

	L_info("llm: request started", "provider", p.Kind(), "model", p.model, "maxTokens", maxTokens, "estimatedInput", estimatedInput)

	stream := p.client.Messages.NewStreaming(ctx, params)

	var acc strings.Builder
	message := anthropic.Message{}

	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("accumulate error: %w", err)
		}

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := eventVariant.Delta.AsAny().(anthropic.TextDelta); ok {
				acc.WriteString(delta.Text)
				call.reportProgress(streamFraction(acc.Len(), maxTokens))
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}

	call.reportProgress(1)
	L_info("llm: request completed",
		"provider", p.Kind(),
		"duration", time.Since(startTime).Round(time.Millisecond),
		"inputTokens", message.Usage.InputTokens,
		"outputTokens", message.Usage.OutputTokens)

	return &Result{
		Text:         acc.String(),
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}

// streamFraction estimates progress from accumulated bytes against the output
// token budget (chars/4 as the cheap per-delta token proxy). Caps below 1
// until the stream actually terminates.
func streamFraction(accumulatedBytes, maxTokens int) float64 {
	if maxTokens <= 0 {
		return 0
	}
	frac := float64(accumulatedBytes/4) / float64(maxTokens)
	if frac > 0.99 {
		frac = 0.99
	}
	return frac
}
