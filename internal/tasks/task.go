// Package tasks defines the generated task model and the assembler that
// turns raw model output into a validated task batch.
package tasks

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskmill/taskmill/internal/llm"
)

// Task priorities
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// StatusPending is the only status a freshly generated task can carry.
// Downstream tools move tasks through their own lifecycle.
const StatusPending = "pending"

// Record is one normalized task. IDs are positive and unique within a
// batch; dependencies reference lower IDs only, so the batch forms a DAG
// by construction.
type Record struct {
	ID           int    `json:"id" yaml:"id"`
	Title        string `json:"title" yaml:"title"`
	Description  string `json:"description" yaml:"description"`
	Status       string `json:"status" yaml:"status"`
	Dependencies []int  `json:"dependencies" yaml:"dependencies"`
	Priority     string `json:"priority,omitempty" yaml:"priority,omitempty"`
	Details      string `json:"details,omitempty" yaml:"details,omitempty"`
	TestStrategy string `json:"testStrategy,omitempty" yaml:"testStrategy,omitempty"`
}

// Meta describes how a batch was produced.
type Meta struct {
	ID          string    `json:"id" yaml:"id"`
	GeneratedAt time.Time `json:"generatedAt" yaml:"generatedAt"`
	Source      string    `json:"source,omitempty" yaml:"source,omitempty"`
	Provider    llm.Kind  `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model       string    `json:"model,omitempty" yaml:"model,omitempty"`
	TaskCount   int       `json:"taskCount" yaml:"taskCount"`
	RetryCount  int       `json:"retryCount" yaml:"retryCount"`
}

// Batch is the terminal artifact of one successful generation. It is never
// mutated after validation passes.
type Batch struct {
	Tasks []Record `json:"tasks" yaml:"tasks"`
	Meta  Meta     `json:"meta" yaml:"meta"`
}

// NewMeta stamps batch provenance
func NewMeta(source string, res *llm.Result, taskCount int) Meta {
	return Meta{
		ID:          uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Source:      source,
		Provider:    res.Kind,
		Model:       res.Model,
		TaskCount:   taskCount,
		RetryCount:  res.RetryCount,
	}
}
