package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestExtractPayloadWholeText(t *testing.T) {
	raw := `{"tasks":[{"id":1,"title":"Set up repo","description":"Initialize the project"}]}`

	p := ExtractPayload(raw)
	if p == nil {
		t.Fatal("ExtractPayload() = nil, want payload")
	}
	if len(p.Tasks) != 1 || p.Tasks[0].ID != 1 {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestExtractPayloadFencedBlock(t *testing.T) {
	// Scenario: model wraps the JSON in prose and a fenced code block.
	raw := "noise ```json\n{\"tasks\":[{\"id\":1,\"title\":\"t\",\"description\":\"d\"}]}\n``` trailing"

	p := ExtractPayload(raw)
	if p == nil {
		t.Fatal("ExtractPayload() = nil, want payload from fenced block")
	}
	if len(p.Tasks) != 1 || p.Tasks[0].Title != "t" {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestExtractPayloadBareBraces(t *testing.T) {
	raw := `Here are your tasks: {"tasks":[{"id":1,"title":"a {brace} title","description":"d"}]} hope that helps!`

	p := ExtractPayload(raw)
	if p == nil {
		t.Fatal("ExtractPayload() = nil, want payload from brace scan")
	}
	if p.Tasks[0].Title != "a {brace} title" {
		t.Errorf("brace inside string literal broke extraction: %+v", p.Tasks[0])
	}
}

func TestExtractPayloadSkipsNonTaskObjects(t *testing.T) {
	// An earlier JSON object without a tasks key must not shadow the real one.
	raw := `{"note":"preamble"} then {"tasks":[{"id":1,"title":"t","description":"d"}]}`

	p := ExtractPayload(raw)
	if p == nil {
		t.Fatal("ExtractPayload() = nil, want the second object")
	}
	if len(p.Tasks) != 1 {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestExtractPayloadNoCandidate(t *testing.T) {
	for _, raw := range []string{"", "plain prose with no JSON", `{"broken": `, `[1,2,3]`} {
		if p := ExtractPayload(raw); p != nil {
			t.Errorf("ExtractPayload(%q) = %+v, want nil", raw, p)
		}
	}
}

func TestExtractPayloadIdempotent(t *testing.T) {
	raw := "```json\n{\"tasks\":[{\"id\":2,\"title\":\"t\",\"description\":\"d\",\"dependencies\":[\"1\",1.0]}]}\n```"

	first := ExtractPayload(raw)
	if first == nil {
		t.Fatal("ExtractPayload() = nil on first pass")
	}
	serialized, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second := ExtractPayload(string(serialized))
	if second == nil {
		t.Fatal("ExtractPayload() = nil on re-parsed output")
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("re-parsing serialized payload changed it:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func makeRawTasks(n int) []RawRecord {
	out := make([]RawRecord, n)
	for i := range out {
		out[i] = RawRecord{
			ID:          i + 1,
			Title:       fmt.Sprintf("task %d", i+1),
			Description: "do the thing",
		}
	}
	return out
}

func TestValidateCountBoundary(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		expected int
		wantErr  bool
	}{
		{"exactly 80 percent accepted", 8, 10, false},
		{"below 80 percent rejected", 7, 10, true},
		{"full count accepted", 10, 10, false},
		{"over-delivery accepted", 12, 10, false},
		{"empty rejected", 0, 10, true},
		{"fractional boundary rounds up", 5, 7, true}, // 0.8*7 = 5.6
		{"fractional boundary accepted", 6, 7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&Payload{Tasks: makeRawTasks(tt.count)}, tt.expected)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%d tasks, expected %d) error = %v, wantErr %v", tt.count, tt.expected, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		rec  RawRecord
	}{
		{"missing id", RawRecord{Title: "t", Description: "d"}},
		{"missing title", RawRecord{ID: 1, Description: "d"}},
		{"missing description", RawRecord{ID: 1, Title: "t"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(&Payload{Tasks: []RawRecord{tt.rec}}, 1); err == nil {
				t.Errorf("Validate() = nil, want error for %s", tt.name)
			}
		})
	}
}

func TestValidateRejectsDuplicateIDs(t *testing.T) {
	payload := &Payload{Tasks: []RawRecord{
		{ID: 1, Title: "a", Description: "d"},
		{ID: 1, Title: "b", Description: "d"},
		{ID: 2, Title: "c", Description: "d"},
	}}

	if err := Validate(payload, 3); err == nil {
		t.Error("Validate() accepted a batch with a repeated task id")
	}
}

func TestProcessRetriesOnDuplicateIDs(t *testing.T) {
	// A repeated id is a structural failure like under-delivery: it must
	// produce a retry signal inside the budget, never an accepted batch.
	raw := `{"tasks":[` +
		`{"id":1,"title":"a","description":"d"},` +
		`{"id":1,"title":"b","description":"d"},` +
		`{"id":2,"title":"c","description":"d","dependencies":[1]}]}`

	a := NewAssembler()
	batch, retry, err := a.Process(raw, ProcessOptions{ExpectedCount: 3})
	if batch != nil {
		t.Fatalf("Process() accepted a batch with duplicate ids: %+v", batch.Tasks)
	}
	if err != nil {
		t.Fatalf("Process() error = %v, want retry signal", err)
	}
	if retry == nil || retry.RetryCount != 1 {
		t.Fatalf("retry = %+v, want RetryCount 1", retry)
	}
	if a.State() != StateRetryRequested {
		t.Errorf("State() = %v, want retry_requested", a.State())
	}
}

func TestNormalizeDependencyCoercion(t *testing.T) {
	raw := []RawRecord{
		{ID: 1, Title: "a", Description: "d"},
		{ID: 2, Title: "b", Description: "d", Dependencies: []any{"1"}},
		{ID: 3, Title: "c", Description: "d", Dependencies: []any{"1", float64(2)}},
	}

	recs := Normalize(raw)

	if recs[0].Dependencies == nil || len(recs[0].Dependencies) != 0 {
		t.Errorf("missing dependencies should normalize to empty slice, got %v", recs[0].Dependencies)
	}
	if !reflect.DeepEqual(recs[1].Dependencies, []int{1}) {
		t.Errorf("string dependency not coerced: %v", recs[1].Dependencies)
	}
	if !reflect.DeepEqual(recs[2].Dependencies, []int{1, 2}) {
		t.Errorf("mixed dependencies not coerced: %v", recs[2].Dependencies)
	}
}

func TestNormalizeDropsForwardAndSelfRefs(t *testing.T) {
	raw := []RawRecord{
		{ID: 2, Title: "t", Description: "d", Dependencies: []any{float64(1), float64(2), float64(5), "junk", float64(-1)}},
	}

	recs := Normalize(raw)
	if !reflect.DeepEqual(recs[0].Dependencies, []int{1}) {
		t.Errorf("Dependencies = %v, want only lower-ID reference [1]", recs[0].Dependencies)
	}
}

func TestNormalizeForcesStatusAndPriority(t *testing.T) {
	raw := []RawRecord{
		{ID: 1, Title: "t", Description: "d", Status: "done", Priority: "HIGH"},
		{ID: 2, Title: "t", Description: "d", Status: "", Priority: "urgent"},
	}

	recs := Normalize(raw)
	for _, r := range recs {
		if r.Status != StatusPending {
			t.Errorf("task %d status = %q, want pending", r.ID, r.Status)
		}
	}
	if recs[0].Priority != PriorityHigh {
		t.Errorf("priority = %q, want high", recs[0].Priority)
	}
	if recs[1].Priority != PriorityMedium {
		t.Errorf("unknown priority = %q, want medium fallback", recs[1].Priority)
	}
}

func TestProcessAcceptsFencedBatch(t *testing.T) {
	raw := "noise ```json\n{\"tasks\":[{\"id\":1,\"title\":\"t\",\"description\":\"d\"}]}\n``` trailing"

	a := NewAssembler()
	batch, retry, err := a.Process(raw, ProcessOptions{ExpectedCount: 1})
	if err != nil || retry != nil {
		t.Fatalf("Process() = (_, %v, %v), want accepted batch", retry, err)
	}
	if a.State() != StateAccepted {
		t.Errorf("State() = %v, want accepted", a.State())
	}
	if len(batch.Tasks) != 1 || batch.Tasks[0].Status != StatusPending {
		t.Errorf("unexpected batch: %+v", batch)
	}
}

func TestProcessRequestsRetryWithinBudget(t *testing.T) {
	short := `{"tasks":[{"id":1,"title":"t","description":"d"}]}`

	a := NewAssembler()
	batch, retry, err := a.Process(short, ProcessOptions{ExpectedCount: 10, RetryCount: 0})
	if err != nil {
		t.Fatalf("Process() error = %v, want retry signal", err)
	}
	if batch != nil {
		t.Fatal("Process() returned a batch for an under-sized task list")
	}
	if retry == nil || retry.RetryCount != 1 {
		t.Fatalf("retry = %+v, want RetryCount 1", retry)
	}
	if a.State() != StateRetryRequested {
		t.Errorf("State() = %v, want retry_requested", a.State())
	}
}

func TestProcessRejectsWhenBudgetExhausted(t *testing.T) {
	// Under-delivery at the final allowed retry must fail, not loop.
	short := `{"tasks":[{"id":1,"title":"t","description":"d"}]}`

	a := NewAssembler()
	_, retry, err := a.Process(short, ProcessOptions{ExpectedCount: 10, RetryCount: MaxAssemblyRetries})
	if retry != nil {
		t.Fatalf("retry = %+v, want nil once budget is exhausted", retry)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Process() error = %v, want ErrValidation", err)
	}
	if a.State() != StateRejected {
		t.Errorf("State() = %v, want rejected", a.State())
	}
}

func TestProcessExtractionFailure(t *testing.T) {
	a := NewAssembler()
	_, retry, err := a.Process("the model rambled and produced no JSON", ProcessOptions{ExpectedCount: 5})
	if retry != nil {
		t.Fatalf("retry = %+v, want nil for extraction failure", retry)
	}
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("Process() error = %v, want ErrExtraction", err)
	}
	if a.State() != StateRejected {
		t.Errorf("State() = %v, want rejected", a.State())
	}
}

func TestProcessValidationLoopTerminates(t *testing.T) {
	// Simulates the orchestration loop: validation keeps failing, retry
	// signals must stop arriving after the budget and an error surfaces.
	short := `{"tasks":[{"id":1,"title":"t","description":"d"}]}`

	retryCount := 0
	for i := 0; i < 10; i++ {
		a := NewAssembler()
		_, retry, err := a.Process(short, ProcessOptions{ExpectedCount: 10, RetryCount: retryCount})
		if err != nil {
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("terminal error = %v, want ErrValidation", err)
			}
			if retryCount != MaxAssemblyRetries {
				t.Errorf("failed after %d retries, want %d", retryCount, MaxAssemblyRetries)
			}
			return
		}
		retryCount = retry.RetryCount
	}
	t.Fatal("Process never exhausted the retry budget")
}

func TestPayloadRoundTripPreservesOrder(t *testing.T) {
	raw := `{"tasks":[{"id":1,"title":"first","description":"d"},{"id":2,"title":"second","description":"d","dependencies":[1]}]}`

	p := ExtractPayload(raw)
	if p == nil {
		t.Fatal("ExtractPayload() = nil")
	}
	recs := Normalize(p.Tasks)
	titles := make([]string, len(recs))
	for i, r := range recs {
		titles[i] = r.Title
	}
	if !reflect.DeepEqual(titles, []string{"first", "second"}) {
		t.Errorf("task order not preserved: %v", titles)
	}
}

func TestExtractPayloadPrefersWholeDocument(t *testing.T) {
	// A full-document parse wins even when fenced noise follows.
	whole := `{"tasks":[{"id":1,"title":"whole","description":"d"}]}`
	if p := ExtractPayload(whole + "\n"); p == nil || p.Tasks[0].Title != "whole" {
		t.Errorf("whole-document parse not preferred: %+v", p)
	}
	if !strings.Contains(whole, "tasks") {
		t.Fatal("test fixture broken")
	}
}
