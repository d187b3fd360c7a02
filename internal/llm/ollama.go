package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/taskmill/taskmill/internal/config"
	. "github.com/taskmill/taskmill/internal/logging"
)

// Credential-source keys for the Ollama adapter
const (
	EnvOllamaHost  = "OLLAMA_HOST"
	EnvOllamaModel = "OLLAMA_MODEL"
)

const (
	defaultOllamaModel     = "llama3.1"
	defaultOllamaMaxTokens = 8192
)

// OllamaProvider implements Provider for a local Ollama server. It speaks
// the plain HTTP chat API since there is no official Go SDK worth carrying.
type OllamaProvider struct {
	host        string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

// NewOllamaProvider creates the adapter from provider config
func NewOllamaProvider(cfg config.ProviderConfig) *OllamaProvider {
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultOllamaMaxTokens
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	return &OllamaProvider{
		host:        strings.TrimSuffix(cfg.Host, "/"),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

// Kind returns the provider vendor tag
func (p *OllamaProvider) Kind() Kind {
	return KindOllama
}

// Model returns the configured model name
func (p *OllamaProvider) Model() string {
	return p.model
}

// IsAvailable reports whether a host is configured. Local models need no
// API key, so host presence is the whole availability check.
func (p *OllamaProvider) IsAvailable(creds *config.Credentials) bool {
	return p.host != "" || creds.Has(EnvOllamaHost)
}

// Initialize resolves the host and model from the credential source
func (p *OllamaProvider) Initialize(creds *config.Credentials) error {
	if h := creds.Get(EnvOllamaHost); h != "" {
		p.host = strings.TrimSuffix(h, "/")
	}
	if p.host == "" {
		return credentialError(KindOllama, EnvOllamaHost)
	}
	if !strings.HasPrefix(p.host, "http://") && !strings.HasPrefix(p.host, "https://") {
		p.host = "http://" + p.host
	}
	if m := creds.Get(EnvOllamaModel); m != "" {
		p.model = m
	}

	L_debug("ollama: initialized", "host", p.host, "model", p.model)
	return nil
}

// Priority ranks Ollama last; a local model is the fallback of last resort
// for structured generation.
func (p *OllamaProvider) Priority(call CallContext) int {
	return 10
}

// CallModel streams a completion, retrying transient failures locally
func (p *OllamaProvider) CallModel(ctx context.Context, call CallContext) (*Result, error) {
	if p.host == "" {
		return nil, credentialError(KindOllama, EnvOllamaHost)
	}
	return callWithRetry(ctx, call, KindOllama, p.model, p.stream)
}

// ollamaChatRequest is the request body for the Ollama chat API
type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  *ollamaOptions      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// ollamaChatChunk is one NDJSON line of a streaming chat response
type ollamaChatChunk struct {
	Message         ollamaChatMessage `json:"message"`
	Done            bool              `json:"done"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
}

func (p *OllamaProvider) stream(ctx context.Context, call CallContext) (*Result, error) {
	startTime := time.Now()

	maxTokens, temperature := effectiveTuning(p.maxTokens, p.temperature, call)

	messages := []ollamaChatMessage{}
	if call.SystemPrompt != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: call.SystemPrompt})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: call.UserPrompt})

	reqBody := ollamaChatRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   true,
		Options: &ollamaOptions{
			NumPredict:  maxTokens,
			Temperature: temperature,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := p.host + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	L_debug("ollama: request prepared", "url", url, "model", p.model, "messageCount", len(messages))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var text strings.Builder
	var inputTokens, outputTokens int

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("decode chunk: %w", err)
		}
		if chunk.Message.Content != "" {
			text.WriteString(chunk.Message.Content)
			call.reportProgress(streamFraction(text.Len(), maxTokens))
		}
		if chunk.Done {
			inputTokens = chunk.PromptEvalCount
			outputTokens = chunk.EvalCount
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}

	call.reportProgress(1)

	L_info("llm: request completed",
		"provider", KindOllama,
		"model", p.model,
		"duration", time.Since(startTime).Round(time.Millisecond),
		"responseChars", text.Len())

	return &Result{
		Text:         text.String(),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}
