package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	. "github.com/taskmill/taskmill/internal/logging"
)

// MaxAssemblyRetries bounds orchestration-level re-generation after a
// structurally bad response. Independent of the adapters' transport budget.
const MaxAssemblyRetries = 3

// Assembly failure sentinels
var (
	ErrExtraction = errors.New("no parseable task JSON found in model output")
	ErrValidation = errors.New("model output failed task validation")
)

// State tracks assembly progress for one raw response.
type State int

const (
	StateParsing State = iota
	StateValidating
	StateAccepted
	StateRetryRequested
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateParsing:
		return "parsing"
	case StateValidating:
		return "validating"
	case StateAccepted:
		return "accepted"
	case StateRetryRequested:
		return "retry_requested"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// RawRecord is a task as the model emitted it, before normalization.
// Dependencies stay untyped here because models emit them as integers,
// floats or numeric strings interchangeably.
type RawRecord struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	Dependencies []any  `json:"dependencies"`
	Priority     string `json:"priority"`
	Details      string `json:"details"`
	TestStrategy string `json:"testStrategy"`
}

// Payload is the structured object expected somewhere in the raw text.
type Payload struct {
	Tasks []RawRecord `json:"tasks"`
}

// RetrySignal asks the caller to re-run the whole selection, call and
// assembly pipeline with the incremented counter.
type RetrySignal struct {
	RetryCount int
	Reason     string
}

// ProcessOptions carries the validation target and the current
// orchestration retry counter into one assembly pass.
type ProcessOptions struct {
	ExpectedCount int
	RetryCount    int
}

// Assembler turns one raw streamed response into a validated batch.
// Create one per response; State reports where the last pass ended.
type Assembler struct {
	state State
}

func NewAssembler() *Assembler {
	return &Assembler{state: StateParsing}
}

// State reports the terminal state of the last Process call
func (a *Assembler) State() State {
	return a.state
}

// Process extracts, validates and normalizes the task payload. Exactly one
// of the three results is non-zero: an accepted batch, a retry signal when
// validation failed inside the retry budget, or an error.
func (a *Assembler) Process(rawText string, opts ProcessOptions) (*Batch, *RetrySignal, error) {
	a.state = StateParsing

	payload := ExtractPayload(rawText)
	if payload == nil {
		a.state = StateRejected
		return nil, nil, fmt.Errorf("%w (%d chars of output)", ErrExtraction, len(rawText))
	}

	a.state = StateValidating
	if err := Validate(payload, opts.ExpectedCount); err != nil {
		if opts.RetryCount < MaxAssemblyRetries {
			a.state = StateRetryRequested
			L_warn("assembler: validation failed, requesting retry",
				"reason", err, "retryCount", opts.RetryCount+1, "budget", MaxAssemblyRetries)
			return nil, &RetrySignal{RetryCount: opts.RetryCount + 1, Reason: err.Error()}, nil
		}
		a.state = StateRejected
		return nil, nil, fmt.Errorf("%w after %d attempts: %v", ErrValidation, opts.RetryCount, err)
	}

	a.state = StateAccepted
	return &Batch{Tasks: Normalize(payload.Tasks)}, nil, nil
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

// ExtractPayload finds the task payload in raw model output. It tries the
// whole text as JSON first, then fenced code blocks, then brace-delimited
// substrings, in textual order. The first candidate that parses and carries
// a tasks collection wins. Returns nil when nothing parses.
func ExtractPayload(rawText string) *Payload {
	text := strings.TrimSpace(rawText)
	if text == "" {
		return nil
	}

	if p := tryParse(text); p != nil {
		return p
	}

	for _, m := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		if p := tryParse(strings.TrimSpace(m[1])); p != nil {
			return p
		}
	}

	for _, candidate := range braceCandidates(text) {
		if p := tryParse(candidate); p != nil {
			return p
		}
	}

	return nil
}

// tryParse accepts a candidate only if it decodes as an object that
// actually has a tasks key; a nil Tasks slice means the key was absent.
func tryParse(candidate string) *Payload {
	var p Payload
	if err := json.Unmarshal([]byte(candidate), &p); err != nil {
		return nil
	}
	if p.Tasks == nil {
		return nil
	}
	return &p
}

// braceCandidates returns balanced top-level {...} substrings in textual
// order, tolerating braces inside JSON string literals.
func braceCandidates(text string) []string {
	var out []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					out = append(out, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return out
}

// Validate checks structural completeness: the batch must carry at least
// 80% of the requested task count (boundary inclusive), every record needs
// an id, title and description, and ids must be unique within the batch.
func Validate(payload *Payload, expectedCount int) error {
	if expectedCount > 0 {
		minCount := int(math.Ceil(0.8 * float64(expectedCount)))
		if len(payload.Tasks) < minCount {
			return fmt.Errorf("got %d tasks, need at least %d of %d requested", len(payload.Tasks), minCount, expectedCount)
		}
	} else if len(payload.Tasks) == 0 {
		return fmt.Errorf("got no tasks")
	}

	seen := make(map[int]struct{}, len(payload.Tasks))
	for i, rec := range payload.Tasks {
		if rec.ID <= 0 {
			return fmt.Errorf("task at index %d is missing a positive id", i)
		}
		if _, dup := seen[rec.ID]; dup {
			return fmt.Errorf("task id %d appears more than once", rec.ID)
		}
		seen[rec.ID] = struct{}{}
		if rec.Title == "" {
			return fmt.Errorf("task %d is missing a title", rec.ID)
		}
		if rec.Description == "" {
			return fmt.Errorf("task %d is missing a description", rec.ID)
		}
	}
	return nil
}

// Normalize converts raw records into the canonical form: dependencies
// coerced to integers with self and forward references dropped, status
// forced to pending, priority folded into the known set.
func Normalize(raw []RawRecord) []Record {
	out := make([]Record, 0, len(raw))
	for _, rec := range raw {
		out = append(out, Record{
			ID:           rec.ID,
			Title:        rec.Title,
			Description:  rec.Description,
			Status:       StatusPending,
			Dependencies: normalizeDeps(rec.ID, rec.Dependencies),
			Priority:     normalizePriority(rec.Priority),
			Details:      rec.Details,
			TestStrategy: rec.TestStrategy,
		})
	}
	return out
}

func normalizeDeps(ownID int, deps []any) []int {
	out := make([]int, 0, len(deps))
	for _, d := range deps {
		id, ok := coerceID(d)
		if !ok {
			L_debug("assembler: dropping non-numeric dependency", "task", ownID, "dep", d)
			continue
		}
		// Lower IDs only keeps the batch a DAG by construction.
		if id <= 0 || id >= ownID {
			L_debug("assembler: dropping forward or self dependency", "task", ownID, "dep", id)
			continue
		}
		out = append(out, id)
	}
	return out
}

func coerceID(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}
