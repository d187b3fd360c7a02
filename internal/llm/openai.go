// Package llm provides LLM client implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/taskmill/taskmill/internal/config"
	. "github.com/taskmill/taskmill/internal/logging"
)

// Credential-source keys for the OpenAI adapter
const (
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvOpenAIModel  = "OPENAI_MODEL"
)

const (
	defaultOpenAIModel     = "gpt-4o"
	defaultOpenAIMaxTokens = 8192
)

// OpenAIProvider implements Provider for OpenAI and OpenAI-compatible APIs.
type OpenAIProvider struct {
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	baseURL     string
	client      *openai.Client
}

// NewOpenAIProvider creates the adapter from provider config
func NewOpenAIProvider(cfg config.ProviderConfig) *OpenAIProvider {
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultOpenAIMaxTokens
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIProvider{
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
		baseURL:     cfg.BaseURL,
	}
}

// Kind returns the provider vendor tag
func (p *OpenAIProvider) Kind() Kind {
	return KindOpenAI
}

// Model returns the configured model name
func (p *OpenAIProvider) Model() string {
	return p.model
}

// IsAvailable reports whether the API key is present in the credential source
func (p *OpenAIProvider) IsAvailable(creds *config.Credentials) bool {
	return creds.Has(EnvOpenAIAPIKey)
}

// Initialize constructs the OpenAI client
func (p *OpenAIProvider) Initialize(creds *config.Credentials) error {
	key := creds.Get(EnvOpenAIAPIKey)
	if key == "" {
		return credentialError(KindOpenAI, EnvOpenAIAPIKey)
	}
	if m := creds.Get(EnvOpenAIModel); m != "" {
		p.model = m
	}
	p.client = newChatClient(key, p.baseURL, p.timeout)
	L_debug("openai: initialized", "model", p.model, "maxTokens", p.maxTokens)
	return nil
}

// Priority ranks OpenAI as the first fallback; the score rises when the
// primary provider is known to be overloaded.
func (p *OpenAIProvider) Priority(call CallContext) int {
	score := 60
	if call.OverloadedRivals.Has(KindAnthropic) {
		score += 25
	}
	return score
}

// CallModel streams a completion, retrying transient failures locally
func (p *OpenAIProvider) CallModel(ctx context.Context, call CallContext) (*Result, error) {
	if p.client == nil {
		return nil, credentialError(KindOpenAI, EnvOpenAIAPIKey)
	}
	return callWithRetry(ctx, call, KindOpenAI, p.model, func(ctx context.Context, call CallContext) (*Result, error) {
		return streamChatCompletion(ctx, p.client, KindOpenAI, p.model, p.maxTokens, p.temperature, call)
	})
}

// newChatClient builds a go-openai client for any OpenAI-compatible endpoint.
// Shared with the Perplexity adapter, which only differs in base URL.
func newChatClient(key, baseURL string, timeout time.Duration) *openai.Client {
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		// OpenAI-compatible APIs expect the /v1 suffix
		if !strings.HasSuffix(baseURL, "/v1") && !strings.HasSuffix(baseURL, "/v1/") {
			baseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
		}
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(cfg)
}

// streamChatCompletion issues one streaming chat-completions request and
// accumulates text deltas in arrival order.
func streamChatCompletion(
	ctx context.Context,
	client *openai.Client,
	kind Kind,
	model string,
	maxTokens int,
	temperature float64,
	call CallContext,
) (*Result, error) {
	startTime := time.Now()

	maxTokens, temperature = effectiveTuning(maxTokens, temperature, call)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if call.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: call.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: call.UserPrompt,
	})

	req := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  messages,
		Stream:    true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if temperature > 0 {
		req.Temperature = float32(temperature)
	}

	L_info("llm: request started", "provider", kind, "model", model, "maxTokens", maxTokens)

	stream, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s stream: %w", kind, err)
	}
	defer stream.Close()

	var acc strings.Builder
	var usage *openai.Usage

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s stream: %w", kind, err)
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			acc.WriteString(delta)
			call.reportProgress(streamFraction(acc.Len(), maxTokens))
		}
	}

	call.reportProgress(1)

	result := &Result{Text: acc.String()}
	if usage != nil {
		result.InputTokens = usage.PromptTokens
		result.OutputTokens = usage.CompletionTokens
	}

	L_info("llm: request completed",
		"provider", kind,
		"duration", time.Since(startTime).Round(time.Millisecond),
		"inputTokens", result.InputTokens,
		"outputTokens", result.OutputTokens)

	return result, nil
}
