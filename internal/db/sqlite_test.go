package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/longmans/prompt-agent/internal/optimizer"
)

func newTestStore(t *testing.T, opts ...Option) Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", opts...)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testResponse(id string, created time.Time) optimizer.Response {
	return optimizer.Response{
		RunID:             id,
		Role:              "software developers",
		BasicRequirements: "write clean code",
		ModelType:         "gemini",
		OriginalExamples: []optimizer.Example{
			{Input: `{"function_name":"fib"}`, Output: "def fib(n): ..."},
		},
		GeneratedPrompt:     "You are a senior developer.",
		Evaluations:         []string{"clear role", "needs constraints"},
		AlternativePrompts:  []string{"alt one", "alt two is longer", "alt three"},
		FinalRecommendation: "alt two is longer",
		Step:                optimizer.StepCompleted,
		Fallbacks:           []optimizer.Stage{},
		CreatedAt:           created,
	}
}

// ─── Runs ─────────────────────────────────────────────────────────────────────

func TestRunSaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	resp := testResponse("run-001", time.Now().UTC().Round(time.Second))
	if err := s.SaveRun(ctx, resp); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-001")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.RunID != "run-001" {
		t.Errorf("expected run id run-001, got %s", got.RunID)
	}
	if got.FinalRecommendation != resp.FinalRecommendation {
		t.Errorf("expected recommendation %q, got %q", resp.FinalRecommendation, got.FinalRecommendation)
	}
	if len(got.AlternativePrompts) != optimizer.AlternativeCount {
		t.Errorf("expected %d alternatives, got %d", optimizer.AlternativeCount, len(got.AlternativePrompts))
	}
	if len(got.OriginalExamples) != 1 || got.OriginalExamples[0].Input != `{"function_name":"fib"}` {
		t.Errorf("examples not preserved: %+v", got.OriginalExamples)
	}
	if !got.CreatedAt.Equal(resp.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", resp.CreatedAt, got.CreatedAt)
	}
}

func TestRunUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	resp := testResponse("run-001", time.Now())
	if err := s.SaveRun(ctx, resp); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	resp.Step = optimizer.StepCompletedFallback
	resp.Fallbacks = []optimizer.Stage{optimizer.StagePrompt}
	if err := s.SaveRun(ctx, resp); err != nil {
		t.Fatalf("SaveRun update: %v", err)
	}

	n, err := s.CountRuns(ctx)
	if err != nil {
		t.Fatalf("CountRuns: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 run after upsert, got %d", n)
	}

	list, err := s.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(list))
	}
	if !list[0].Degraded {
		t.Error("expected degraded run")
	}
	if len(list[0].Fallbacks) != 1 || list[0].Fallbacks[0] != optimizer.StagePrompt {
		t.Errorf("expected fallbacks [prompt], got %v", list[0].Fallbacks)
	}
	if list[0].Step != optimizer.StepCompletedFallback {
		t.Errorf("expected step %s, got %s", optimizer.StepCompletedFallback, list[0].Step)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		resp := testResponse(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Second))
		if err := s.SaveRun(ctx, resp); err != nil {
			t.Fatalf("SaveRun %d: %v", i, err)
		}
	}

	list, err := s.ListRuns(ctx, 3, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 results, got %d", len(list))
	}
	if list[0].ID != "run-4" || list[2].ID != "run-2" {
		t.Errorf("unexpected order: %s, %s, %s", list[0].ID, list[1].ID, list[2].ID)
	}

	page, err := s.ListRuns(ctx, 3, 3)
	if err != nil {
		t.Fatalf("ListRuns page 2: %v", err)
	}
	if len(page) != 2 || page[1].ID != "run-0" {
		t.Errorf("unexpected second page: %+v", page)
	}
}

func TestListRunsEmpty(t *testing.T) {
	s := newTestStore(t)

	list, err := s.ListRuns(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", list)
	}
}

func TestHistoryLimitPrunesOldest(t *testing.T) {
	s := newTestStore(t, WithHistoryLimit(2))
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 4; i++ {
		if err := s.SaveRun(ctx, testResponse(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("SaveRun %d: %v", i, err)
		}
	}

	n, err := s.CountRuns(ctx)
	if err != nil {
		t.Fatalf("CountRuns: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 runs retained, got %d", n)
	}
	if _, err := s.GetRun(ctx, "run-0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected oldest run pruned, got %v", err)
	}
	if _, err := s.GetRun(ctx, "run-3"); err != nil {
		t.Errorf("expected newest run kept, got %v", err)
	}
}

func TestDeleteRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveRun(ctx, testResponse("del-001", time.Now())); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.DeleteRun(ctx, "del-001"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	_, err := s.GetRun(ctx, "del-001")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for deleted run, got %v", err)
	}
	if err := s.DeleteRun(ctx, "del-001"); err != nil {
		t.Errorf("deleting a missing run should not fail: %v", err)
	}
}

func TestSaveRunRequiresID(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveRun(context.Background(), testResponse("", time.Now())); err == nil {
		t.Error("expected error for run without id")
	}
}

func TestSaveRunDefaultsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	if err := s.SaveRun(ctx, testResponse("run-now", time.Time{})); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := s.GetRun(ctx, "run-now")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.CreatedAt.Before(before) {
		t.Errorf("expected created_at to default to now, got %v", got.CreatedAt)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s.SaveRun(context.Background(), testResponse("persisted", time.Now())); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if err := reopened.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, err := reopened.GetRun(context.Background(), "persisted"); err != nil {
		t.Errorf("expected run to survive reopen: %v", err)
	}
}

func TestParseTime(t *testing.T) {
	tests := []string{
		"2026-10-19T08:30:00Z",
		"2026-10-19T08:30:00.123456789Z",
		"2026-10-19 08:30:00",
		"2026-10-19 08:30:00+00:00",
	}
	for _, in := range tests {
		got, err := parseTime(in)
		if err != nil {
			t.Errorf("parseTime(%q): %v", in, err)
			continue
		}
		if got.Year() != 2026 || got.Hour() != 8 {
			t.Errorf("parseTime(%q) = %v", in, got)
		}
	}
	if _, err := parseTime("yesterday"); err == nil {
		t.Error("expected error for unrecognised format")
	}
}
