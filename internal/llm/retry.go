// Package llm - shared bounded retry policy for adapter calls.
package llm

import (
	"context"
	"time"

	. "github.com/taskmill/taskmill/internal/logging"
)

// MaxCallRetries bounds the adapter-local retry budget. Initialize failures
// are never retried; only transient call failures consume this budget.
const MaxCallRetries = 3

// retrySleep is indirected so tests can skip the backoff.
var retrySleep = time.Sleep

// callWithRetry runs one streaming call through the bounded retry loop shared
// by all adapters. The attempt counter seeds from call.RetryCount so an
// orchestration-level retry does not reset the local budget. An explicit loop
// rather than self-recursion keeps the stack flat under repeated transient
// failures.
func callWithRetry(
	ctx context.Context,
	call CallContext,
	kind Kind,
	model string,
	fn func(context.Context, CallContext) (*Result, error),
) (*Result, error) {
	attempt := call.RetryCount
	for {
		res, err := fn(ctx, call.WithRetryCount(attempt))
		if err == nil {
			res.RetryCount = attempt
			res.Kind = kind
			res.Model = model
			return res, nil
		}

		errType := Classify(err.Error())
		if !IsTransient(errType) || attempt >= MaxCallRetries || ctx.Err() != nil {
			return nil, &ProviderError{
				Provider: kind,
				Model:    model,
				Type:     errType,
				Attempts: attempt,
				Err:      err,
			}
		}

		attempt++
		L_warn("llm: transient provider error, retrying",
			"provider", kind,
			"model", model,
			"type", errType,
			"attempt", attempt,
			"budget", MaxCallRetries,
			"error", err)
		retrySleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
}
