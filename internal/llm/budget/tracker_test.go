package budget

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRecordAndSummary(t *testing.T) {
	tr := NewTracker(nil) // unlimited
	ctx := WithRunID(context.Background(), "run-1")

	tr.Record(ctx, "anthropic", 1000, 500)
	tr.Record(ctx, "openai", 2000, 800)
	tr.Record(context.Background(), "openai", 100, 100)

	summary := tr.Summary()
	if summary.Total.InputTokens != 3100 {
		t.Errorf("expected 3100 input tokens, got %d", summary.Total.InputTokens)
	}
	if summary.Total.OutputTokens != 1400 {
		t.Errorf("expected 1400 output tokens, got %d", summary.Total.OutputTokens)
	}
	if summary.Total.Calls != 3 {
		t.Errorf("expected 3 calls, got %d", summary.Total.Calls)
	}
	if summary.ByProvider["openai"].Calls != 2 {
		t.Errorf("expected 2 openai calls, got %+v", summary.ByProvider["openai"])
	}
	wantCost := 0.003 + 0.0075 + 0.0003 + 0.00048 + 0.000015 + 0.00006
	if !approx(summary.Total.CostUSD, wantCost) {
		t.Errorf("expected cost %.6f, got %.6f", wantCost, summary.Total.CostUSD)
	}
	if summary.RemainingUSD != 0 || summary.NearLimit {
		t.Errorf("unlimited budget should report no remaining/near limit: %+v", summary)
	}

	run, ok := tr.RunUsage("run-1")
	if !ok || run.Calls != 2 || run.TotalTokens() != 4300 {
		t.Fatalf("unexpected run usage: %+v (found %v)", run, ok)
	}
	tr.ForgetRun("run-1")
	if _, ok := tr.RunUsage("run-1"); ok {
		t.Error("run usage should be dropped after ForgetRun")
	}
}

func TestOllamaIsFree(t *testing.T) {
	tr := NewTracker(nil)
	if cost := tr.EstimateCost("ollama", 10000, 10000); cost != 0 {
		t.Errorf("expected zero cost for ollama, got %f", cost)
	}
	if tr.EstimateCost("unknown", 1000, 1000) != tr.EstimateCost("custom", 1000, 1000) {
		t.Error("unknown providers should use custom pricing")
	}
}

func TestBudgetEnforcement(t *testing.T) {
	tr := NewTracker(&Config{DailyLimitUSD: 0.01, WarnThreshold: 0.5})
	ctx := context.Background()

	if err := tr.Enforce(ctx); err != nil {
		t.Fatalf("fresh budget should allow calls: %v", err)
	}
	tr.Record(ctx, "anthropic", 1000, 200) // $0.006
	if err := tr.Enforce(ctx); err != nil {
		t.Fatalf("budget not yet spent: %v", err)
	}
	if s := tr.Summary(); !s.NearLimit || !approx(s.RemainingUSD, 0.004) {
		t.Errorf("expected near limit with $0.004 remaining, got %+v", s)
	}

	tr.Record(ctx, "anthropic", 1000, 200)
	err := tr.Enforce(ctx)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}

	tr.Reset()
	if err := tr.Enforce(ctx); err != nil {
		t.Errorf("reset should clear spend: %v", err)
	}
}

func TestDailyRollover(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	tr := newTracker(&Config{DailyLimitUSD: 0.001}, func() time.Time { return now })
	ctx := context.Background()

	tr.Record(ctx, "openai", 10000, 0)
	if err := tr.Enforce(ctx); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected exceeded budget, got %v", err)
	}

	now = now.Add(2 * time.Hour)
	if err := tr.Enforce(ctx); err != nil {
		t.Fatalf("a new day should reset the spend: %v", err)
	}
	s := tr.Summary()
	if s.SpentTodayUSD != 0 || s.Total.InputTokens != 10000 {
		t.Errorf("totals survive the rollover, daily spend does not: %+v", s)
	}
	if !s.PeriodStart.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected period start %v", s.PeriodStart)
	}
}

func TestConcurrentRecord(t *testing.T) {
	tr := NewTracker(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record(WithRunID(context.Background(), "shared"), "gemini", 10, 10)
		}()
	}
	wg.Wait()

	run, _ := tr.RunUsage("shared")
	if run.Calls != 50 || run.TotalTokens() != 1000 {
		t.Errorf("unexpected usage after concurrent records: %+v", run)
	}
}

func TestRunIDFromContext(t *testing.T) {
	if RunIDFromContext(context.Background()) != "" {
		t.Error("empty context should have no run id")
	}
	if RunIDFromContext(WithRunID(context.Background(), "abc")) != "abc" {
		t.Error("run id not carried")
	}
}
