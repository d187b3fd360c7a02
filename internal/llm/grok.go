// Package llm provides LLM client implementations.
package llm

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/roelfdiedericks/xai-go"
	"github.com/taskmill/taskmill/internal/config"
	. "github.com/taskmill/taskmill/internal/logging"
)

// Credential-source keys for the Grok adapter
const (
	EnvXAIAPIKey = "XAI_API_KEY"
	EnvXAIModel  = "XAI_MODEL"
)

const (
	defaultGrokModel     = "grok-4-1-fast-non-reasoning"
	defaultGrokMaxTokens = 8192
)

// GrokProvider implements Provider for xAI's Grok API.
type GrokProvider struct {
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	client      *xai.Client
}

// NewGrokProvider creates the adapter from provider config
func NewGrokProvider(cfg config.ProviderConfig) *GrokProvider {
	model := cfg.Model
	if model == "" {
		model = defaultGrokModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultGrokMaxTokens
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &GrokProvider{
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
	}
}

// Kind returns the provider vendor tag
func (p *GrokProvider) Kind() Kind {
	return KindGrok
}

// Model returns the configured model name
func (p *GrokProvider) Model() string {
	return p.model
}

// IsAvailable reports whether the API key is present in the credential source
func (p *GrokProvider) IsAvailable(creds *config.Credentials) bool {
	return creds.Has(EnvXAIAPIKey)
}

// Initialize constructs the xAI client
func (p *GrokProvider) Initialize(creds *config.Credentials) error {
	key := creds.Get(EnvXAIAPIKey)
	if key == "" {
		return credentialError(KindGrok, EnvXAIAPIKey)
	}
	if m := creds.Get(EnvXAIModel); m != "" {
		p.model = strings.TrimPrefix(strings.ToLower(m), "xai/")
	}

	client, err := xai.New(xai.Config{
		APIKey:  xai.NewSecureString(key),
		Timeout: p.timeout,
	})
	if err != nil {
		return &ProviderError{Provider: KindGrok, Type: ErrorTypeCredential, Err: err}
	}
	p.client = client

	L_debug("grok: initialized", "model", p.model, "maxTokens", p.maxTokens)
	return nil
}

// Priority ranks Grok between OpenAI and Perplexity; it rises when the
// primary provider is known to be overloaded.
func (p *GrokProvider) Priority(call CallContext) int {
	score := 50
	if call.OverloadedRivals.Has(KindAnthropic) {
		score += 20
	}
	return score
}

// CallModel streams a completion, retrying transient failures locally
func (p *GrokProvider) CallModel(ctx context.Context, call CallContext) (*Result, error) {
	if p.client == nil {
		return nil, credentialError(KindGrok, EnvXAIAPIKey)
	}
	return callWithRetry(ctx, call, KindGrok, p.model, p.stream)
}

func (p *GrokProvider) stream(ctx context.Context, call CallContext) (*Result, error) {
	startTime := time.Now()

	maxTokens, temperature := effectiveTuning(p.maxTokens, p.temperature, call)

	req := xai.NewChatRequest().
		WithModel(p.model).
		WithMaxTokens(safeInt32(maxTokens))
	if temperature > 0 {
		req.WithTemperature(float32(temperature))
	}
	if call.SystemPrompt != "" {
		req.SystemMessage(xai.SystemContent{Text: call.SystemPrompt})
	}
	req.UserMessage(xai.UserContent{Text: call.UserPrompt})

	L_info("llm: request started", "provider", p.Kind(), "model", p.model, "maxTokens", maxTokens)

	stream, err := p.client.StreamChat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("grok stream: %w", err)
	}
	defer stream.Close()

	var acc strings.Builder
	var usage xai.Usage

	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("grok stream: %w", err)
		}
		if chunk.Delta != "" {
			acc.WriteString(chunk.Delta)
			call.reportProgress(streamFraction(acc.Len(), maxTokens))
		}
		usage = chunk.Usage
	}

	call.reportProgress(1)
	L_info("llm: request completed",
		"provider", p.Kind(),
		"duration", time.Since(startTime).Round(time.Millisecond),
		"inputTokens", usage.PromptTokens,
		"outputTokens", usage.CompletionTokens)

	return &Result{
		Text:         acc.String(),
		InputTokens:  int(usage.PromptTokens),
		OutputTokens: int(usage.CompletionTokens),
	}, nil
}

// safeInt32 converts int to int32 with bounds checking
func safeInt32(n int) int32 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	if n < math.MinInt32 {
		return math.MinInt32
	}
	return int32(n)
}
