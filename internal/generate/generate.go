// Package generate orchestrates one end-to-end task generation: provider
// selection, the streaming model call, and response assembly, with failover
// and bounded retries between the stages.
package generate

import (
	"context"
	"errors"
	"fmt"

	"github.com/taskmill/taskmill/internal/config"
	"github.com/taskmill/taskmill/internal/llm"
	. "github.com/taskmill/taskmill/internal/logging"
	"github.com/taskmill/taskmill/internal/prompt"
	"github.com/taskmill/taskmill/internal/tasks"
)

// Request describes one generation run.
type Request struct {
	Document    string
	Source      string // Provenance label recorded in batch metadata
	NumTasks    int
	Research    bool // Prefer a web-connected provider
	Format      string
	MaxTokens   int     // 0 = provider default
	Temperature float64 // 0 = provider default
	OnProgress  func(frac float64)
}

// Generator runs requests against a fixed registry and credential source.
type Generator struct {
	registry *llm.Registry
	creds    *config.Credentials
}

func New(registry *llm.Registry, creds *config.Credentials) *Generator {
	return &Generator{registry: registry, creds: creds}
}

// Run executes the selection, call and assembly pipeline until a batch is
// accepted or a budget runs out. Provider failover and assembly retries are
// strictly sequential; no two providers are ever in flight at once.
func (g *Generator) Run(ctx context.Context, req Request) (*tasks.Batch, error) {
	if req.NumTasks <= 0 {
		return nil, fmt.Errorf("task count must be positive, got %d", req.NumTasks)
	}
	if req.Document == "" {
		return nil, errors.New("document is empty")
	}

	call := llm.CallContext{
		SystemPrompt:     prompt.System(req.NumTasks),
		UserPrompt:       prompt.User(req.Document, req.NumTasks),
		TargetTaskCount:  req.NumTasks,
		OutputFormat:     req.Format,
		ResearchRequired: req.Research,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		OnProgress:       req.OnProgress,
	}

	assemblyRetries := 0
	for {
		provider, err := g.registry.SelectBest(g.creds, call)
		if err != nil {
			return nil, err
		}

		res, err := provider.CallModel(ctx, call)
		if err != nil {
			next, ferr := g.failover(call, provider, err)
			if ferr != nil {
				return nil, ferr
			}
			call = next
			continue
		}

		assembler := tasks.NewAssembler()
		batch, retry, err := assembler.Process(res.Text, tasks.ProcessOptions{
			ExpectedCount: req.NumTasks,
			RetryCount:    assemblyRetries,
		})
		switch {
		case err != nil && errors.Is(err, tasks.ErrExtraction) && assemblyRetries < tasks.MaxAssemblyRetries:
			assemblyRetries++
			L_warn("generate: no payload in response, regenerating",
				"provider", res.Kind, "retryCount", assemblyRetries)
			call = call.WithRetryCount(0)
			continue
		case err != nil:
			return nil, err
		case retry != nil:
			assemblyRetries = retry.RetryCount
			L_warn("generate: regenerating after validation failure",
				"provider", res.Kind, "reason", retry.Reason, "retryCount", assemblyRetries)
			call = call.WithRetryCount(0)
			continue
		}

		batch.Meta = tasks.NewMeta(req.Source, res, len(batch.Tasks))
		L_info("generate: batch accepted",
			"provider", res.Kind,
			"model", res.Model,
			"tasks", len(batch.Tasks),
			"inputTokens", res.InputTokens,
			"outputTokens", res.OutputTokens,
			"retries", res.RetryCount)
		return batch, nil
	}
}

// failover decides whether a failed call moves on to another provider.
// Transient failures that survived the adapter's local budget exclude the
// provider and reselect; configuration and request-shape failures are fatal.
func (g *Generator) failover(call llm.CallContext, provider llm.Provider, err error) (llm.CallContext, error) {
	var perr *llm.ProviderError
	if !errors.As(err, &perr) || !llm.IsTransient(perr.Type) {
		return call, err
	}

	L_warn("generate: provider exhausted, failing over",
		"provider", provider.Kind(), "type", perr.Type, "attempts", perr.Attempts)

	next := call.WithExcluded(provider.Kind()).WithRetryCount(0)
	if perr.Type == llm.ErrorTypeOverloaded || perr.Type == llm.ErrorTypeRateLimit {
		next = next.WithOverloadedRival(provider.Kind())
	}
	return next, nil
}
