package llm

import (
	"errors"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want ErrorType
	}{
		// Rate limits
		{"http 429", "unexpected status 429 Too Many Requests", ErrorTypeRateLimit},
		{"anthropic rate_limit_error", `{"type":"error","error":{"type":"rate_limit_error"}}`, ErrorTypeRateLimit},
		{"openai quota", "You exceeded your current quota, please check your plan", ErrorTypeRateLimit},
		{"rpm limit", "Limit of 500 requests per minute reached", ErrorTypeRateLimit},

		// Overloaded
		{"anthropic overloaded_error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, ErrorTypeOverloaded},
		{"http 529", "unexpected status 529", ErrorTypeOverloaded},
		{"503 service unavailable", "503 Service Unavailable", ErrorTypeOverloaded},
		{"at capacity", "the model is at capacity right now", ErrorTypeOverloaded},

		// Credentials
		{"http 401", "401 Unauthorized", ErrorTypeCredential},
		{"invalid api key", "Incorrect API key provided: sk-proj-***", ErrorTypeCredential},
		{"missing env", "ANTHROPIC_API_KEY is not set", ErrorTypeCredential},

		// Timeout
		{"deadline", "context deadline exceeded", ErrorTypeTimeout},
		{"client timeout", "Client.Timeout exceeded while awaiting headers", ErrorTypeTimeout},
		{"http 504", "504 Gateway Timeout", ErrorTypeTimeout},

		// Network
		{"refused", "dial tcp 127.0.0.1:11434: connect: connection refused", ErrorTypeNetwork},
		{"dns", "dial tcp: lookup api.example.invalid: no such host", ErrorTypeNetwork},
		{"eof", "unexpected EOF", ErrorTypeNetwork},

		// Invalid request
		{"http 400", "400 Bad Request", ErrorTypeInvalidRequest},
		{"invalid_request_error without 401", `{"error":{"type":"invalid_request_error","message":"max_tokens too large"}}`, ErrorTypeInvalidRequest},

		// Unknown
		{"empty", "", ErrorTypeUnknown},
		{"unmatched", "something completely different happened", ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.msg); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	transient := []ErrorType{ErrorTypeOverloaded, ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeNetwork}
	fatal := []ErrorType{ErrorTypeCredential, ErrorTypeInvalidRequest, ErrorTypeUnknown}

	for _, et := range transient {
		if !IsTransient(et) {
			t.Errorf("IsTransient(%v) = false, want true", et)
		}
	}
	for _, et := range fatal {
		if IsTransient(et) {
			t.Errorf("IsTransient(%v) = true, want false", et)
		}
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	perr := &ProviderError{Provider: KindOpenAI, Model: "gpt-4o", Type: ErrorTypeOverloaded, Attempts: 3, Err: inner}

	if !errors.Is(perr, inner) {
		t.Error("ProviderError should unwrap to its inner error")
	}
	if msg := perr.Error(); !strings.Contains(msg, "after 3 retries") {
		t.Errorf("Error() = %q, want retry count in message", msg)
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string // substring
	}{
		{"credential", &ProviderError{Provider: KindAnthropic, Type: ErrorTypeCredential, Err: errors.New("401")}, "check your API key"},
		{"rate limit", &ProviderError{Provider: KindOpenAI, Type: ErrorTypeRateLimit, Err: errors.New("429")}, "rate limited"},
		{"overloaded", &ProviderError{Provider: KindAnthropic, Type: ErrorTypeOverloaded, Err: errors.New("529")}, "overloaded"},
		{"no provider", ErrNoProvider, "no LLM provider available"},
		{"plain error", errors.New("disk full"), "generation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); !strings.Contains(got, tt.want) {
				t.Errorf("UserMessage() = %q, want substring %q", got, tt.want)
			}
		})
	}
}
