// Package llm - error taxonomy and vendor error classification.
package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType categorizes LLM errors for retry and failover decisions.
type ErrorType string

const (
	ErrorTypeUnknown        ErrorType = "unknown"
	ErrorTypeCredential     ErrorType = "credential_missing"
	ErrorTypeOverloaded     ErrorType = "overloaded"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeNetwork        ErrorType = "network"
)

// ErrNoProvider is returned when the registry exhausts all candidates.
// Always fatal; reported to the caller verbatim.
var ErrNoProvider = errors.New("no LLM provider available: set ANTHROPIC_API_KEY, OPENAI_API_KEY, PERPLEXITY_API_KEY or XAI_API_KEY, or point OLLAMA_HOST at a local Ollama")

// ProviderError is a classified vendor failure surfaced after the adapter's
// local retry budget is exhausted (or immediately for non-transient types).
type ProviderError struct {
	Provider Kind
	Model    string
	Type     ErrorType
	Attempts int // Retries consumed before surfacing
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("%s (%s): %s after %d retries: %v", e.Provider, e.Model, e.Type, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s: %v", e.Provider, e.Model, e.Type, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// credentialError builds the non-retryable error for a missing secret
func credentialError(kind Kind, envKey string) *ProviderError {
	return &ProviderError{
		Provider: kind,
		Type:     ErrorTypeCredential,
		Err:      fmt.Errorf("%s is not set", envKey),
	}
}

// IsTransient reports whether an error type may clear on retry.
// Credential and request-shape problems never do.
func IsTransient(t ErrorType) bool {
	switch t {
	case ErrorTypeOverloaded, ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeNetwork:
		return true
	default:
		return false
	}
}

// Classify determines the error type from an error message.
// Returns ErrorTypeUnknown if the message doesn't match any known pattern.
func Classify(msg string) ErrorType {
	if msg == "" {
		return ErrorTypeUnknown
	}
	// Order matters: rate limit before overloaded (both mention capacity),
	// credential before invalid request (401 bodies carry invalid_request_error).
	switch {
	case isRateLimitMessage(msg):
		return ErrorTypeRateLimit
	case isOverloadedMessage(msg):
		return ErrorTypeOverloaded
	case isCredentialMessage(msg):
		return ErrorTypeCredential
	case isTimeoutMessage(msg):
		return ErrorTypeTimeout
	case isNetworkMessage(msg):
		return ErrorTypeNetwork
	case isInvalidRequestMessage(msg):
		return ErrorTypeInvalidRequest
	default:
		return ErrorTypeUnknown
	}
}

// UserMessage returns a single human-readable line for a fatal error.
func UserMessage(err error) string {
	var perr *ProviderError
	if !errors.As(err, &perr) {
		if errors.Is(err, ErrNoProvider) {
			return err.Error()
		}
		return fmt.Sprintf("generation failed: %v", err)
	}
	switch perr.Type {
	case ErrorTypeCredential:
		return fmt.Sprintf("%s: authentication failed - check your API key configuration", perr.Provider)
	case ErrorTypeRateLimit:
		return fmt.Sprintf("%s: rate limited - too many requests, try again shortly", perr.Provider)
	case ErrorTypeOverloaded:
		return fmt.Sprintf("%s: the service is temporarily overloaded, try again in a moment", perr.Provider)
	case ErrorTypeTimeout:
		return fmt.Sprintf("%s: request timed out", perr.Provider)
	case ErrorTypeNetwork:
		return fmt.Sprintf("%s: network failure reaching the API", perr.Provider)
	case ErrorTypeInvalidRequest:
		return fmt.Sprintf("%s: the API rejected the request shape: %v", perr.Provider, perr.Err)
	default:
		return fmt.Sprintf("%s: %v", perr.Provider, perr.Err)
	}
}

func isRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "429") {
		return true
	}
	return strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "quota exceeded") ||
		strings.Contains(lower, "exceeded your current quota") ||
		strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "requests per minute")
}

func isOverloadedMessage(msg string) bool {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "503") && (strings.Contains(lower, "service") || strings.Contains(lower, "unavailable")) {
		return true
	}
	if strings.Contains(lower, "529") {
		return true
	}
	return strings.Contains(lower, "overloaded_error") ||
		strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "server is busy") ||
		strings.Contains(lower, "temporarily unavailable") ||
		strings.Contains(lower, "at capacity")
}

func isCredentialMessage(msg string) bool {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "401") || strings.Contains(lower, "403") {
		return true
	}
	return strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid_api_key") ||
		strings.Contains(lower, "incorrect api key") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "authentication") ||
		strings.Contains(lower, "no api key found") ||
		strings.Contains(lower, "is not set")
}

func isTimeoutMessage(msg string) bool {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "408") || strings.Contains(lower, "504") {
		return true
	}
	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "deadline exceeded")
}

func isNetworkMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "network is unreachable") ||
		strings.Contains(lower, "broken pipe") ||
		strings.Contains(lower, "eof")
}

func isInvalidRequestMessage(msg string) bool {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "400") {
		return true
	}
	return strings.Contains(lower, "invalid_request_error") ||
		strings.Contains(lower, "invalid request") ||
		strings.Contains(lower, "malformed") ||
		strings.Contains(lower, "schema validation")
}
