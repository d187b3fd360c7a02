package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/taskmill/taskmill/internal/llm"
	"github.com/taskmill/taskmill/internal/tasks"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func batchAt(id string, at time.Time) *tasks.Batch {
	return &tasks.Batch{
		Tasks: []tasks.Record{{ID: 1, Title: "t", Description: "d", Status: tasks.StatusPending}},
		Meta: tasks.Meta{
			ID:          id,
			GeneratedAt: at,
			Source:      "prd.md",
			Provider:    llm.KindAnthropic,
			Model:       "claude-sonnet-4-5",
			TaskCount:   1,
			RetryCount:  2,
		},
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := testStore(t)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		if err := s.Record(batchAt(id, base.Add(time.Duration(i)*time.Hour)), "tasks.json"); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	runs, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	if runs[0].BatchID != "third" {
		t.Errorf("newest run = %q, want third", runs[0].BatchID)
	}
	if runs[0].Provider != "anthropic" || runs[0].RetryCount != 2 {
		t.Errorf("run metadata lost: %+v", runs[0])
	}
}

func TestRecentHonorsLimit(t *testing.T) {
	s := testStore(t)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := s.Record(batchAt("run", base.Add(time.Duration(i)*time.Minute)), ""); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	runs, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("got %d runs, want 2", len(runs))
	}
}

func TestRecentEmpty(t *testing.T) {
	s := testStore(t)

	runs, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("got %d runs from empty store, want 0", len(runs))
	}
}
