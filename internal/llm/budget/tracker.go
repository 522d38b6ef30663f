// Package budget tracks token usage and estimated spend across runs and
// enforces an optional daily spending cap.
//
// Usage is attributed to the run ID carried in the context (WithRunID);
// calls without one only count towards the totals. Cost is estimated from a
// per-provider price table in USD per 1K tokens.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBudgetExceeded is returned by Enforce once the daily limit is spent.
var ErrBudgetExceeded = errors.New("daily budget exceeded")

// providerPricing maps provider names to (input, output) cost per 1K tokens in USD.
var providerPricing = map[string][2]float64{
	"gemini":    {0.0001, 0.0004}, // gemini-2.0-flash
	"anthropic": {0.003, 0.015},   // claude-sonnet
	"openai":    {0.00015, 0.0006},
	"ollama":    {0.0, 0.0}, // local, free
	"custom":    {0.001, 0.002},
}

// Usage aggregates token consumption.
type Usage struct {
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"estimated_cost_usd"`
}

// TotalTokens returns input plus output tokens.
func (u Usage) TotalTokens() int { return u.InputTokens + u.OutputTokens }

func (u *Usage) add(in, out int, cost float64) {
	u.Calls++
	u.InputTokens += in
	u.OutputTokens += out
	u.CostUSD += cost
}

// Summary is the process-wide usage report.
type Summary struct {
	Total         Usage            `json:"total"`
	ByProvider    map[string]Usage `json:"by_provider"`
	DailyLimitUSD float64          `json:"daily_limit_usd"`
	SpentTodayUSD float64          `json:"spent_today_usd"`
	RemainingUSD  float64          `json:"remaining_usd,omitempty"`
	NearLimit     bool             `json:"near_limit"`
	PeriodStart   time.Time        `json:"period_start"`
}

// Config sets the spending limit.
type Config struct {
	// DailyLimitUSD caps estimated spend per UTC day. 0 = unlimited.
	DailyLimitUSD float64
	// WarnThreshold is the fraction of the limit that marks the summary as
	// near the limit (e.g. 0.8 = 80%).
	WarnThreshold float64
}

// DefaultConfig returns an unlimited budget.
func DefaultConfig() *Config {
	return &Config{
		DailyLimitUSD: 0,
		WarnThreshold: 0.80,
	}
}

// Tracker records usage and enforces the daily limit. Safe for concurrent use.
type Tracker interface {
	// Record attributes one model call to the run in ctx and the provider.
	Record(ctx context.Context, provider string, inputTokens, outputTokens int)

	// Enforce returns ErrBudgetExceeded once today's spend reaches the limit.
	Enforce(ctx context.Context) error

	// RunUsage returns the usage recorded for a run.
	RunUsage(runID string) (Usage, bool)

	// ForgetRun drops the per-run counters of a finished run.
	ForgetRun(runID string)

	// Summary returns the totals since the tracker was created or reset.
	Summary() Summary

	// EstimateCost prices a call without recording it.
	EstimateCost(provider string, inputTokens, outputTokens int) float64

	// Reset clears every counter.
	Reset()
}

type tracker struct {
	cfg *Config
	now func() time.Time

	mu          sync.Mutex
	total       Usage
	byProvider  map[string]Usage
	runs        map[string]*Usage
	periodStart time.Time
	spentToday  float64
}

// NewTracker creates an in-memory tracker. A nil cfg means unlimited.
func NewTracker(cfg *Config) Tracker {
	return newTracker(cfg, time.Now)
}

func newTracker(cfg *Config, now func() time.Time) *tracker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &tracker{
		cfg:         cfg,
		now:         now,
		byProvider:  make(map[string]Usage),
		runs:        make(map[string]*Usage),
		periodStart: startOfDay(now()),
	}
}

func (t *tracker) Record(ctx context.Context, provider string, inputTokens, outputTokens int) {
	cost := t.EstimateCost(provider, inputTokens, outputTokens)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked()

	t.total.add(inputTokens, outputTokens, cost)
	p := t.byProvider[provider]
	p.add(inputTokens, outputTokens, cost)
	t.byProvider[provider] = p
	t.spentToday += cost

	if runID := RunIDFromContext(ctx); runID != "" {
		u, ok := t.runs[runID]
		if !ok {
			u = &Usage{}
			t.runs[runID] = u
		}
		u.add(inputTokens, outputTokens, cost)
	}
}

func (t *tracker) Enforce(ctx context.Context) error {
	if t.cfg.DailyLimitUSD <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked()
	if t.spentToday >= t.cfg.DailyLimitUSD {
		return fmt.Errorf("%w: spent $%.4f of $%.4f", ErrBudgetExceeded, t.spentToday, t.cfg.DailyLimitUSD)
	}
	return nil
}

func (t *tracker) RunUsage(runID string) (Usage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.runs[runID]
	if !ok {
		return Usage{}, false
	}
	return *u, true
}

func (t *tracker) ForgetRun(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.runs, runID)
}

func (t *tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked()

	s := Summary{
		Total:         t.total,
		ByProvider:    make(map[string]Usage, len(t.byProvider)),
		DailyLimitUSD: t.cfg.DailyLimitUSD,
		SpentTodayUSD: t.spentToday,
		PeriodStart:   t.periodStart,
	}
	for k, v := range t.byProvider {
		s.ByProvider[k] = v
	}
	if t.cfg.DailyLimitUSD > 0 {
		s.RemainingUSD = t.cfg.DailyLimitUSD - t.spentToday
		s.NearLimit = t.spentToday >= t.cfg.DailyLimitUSD*t.cfg.WarnThreshold
	}
	return s
}

func (t *tracker) EstimateCost(provider string, inputTokens, outputTokens int) float64 {
	pricing, ok := providerPricing[provider]
	if !ok {
		pricing = providerPricing["custom"]
	}
	return (float64(inputTokens)/1000.0)*pricing[0] + (float64(outputTokens)/1000.0)*pricing[1]
}

func (t *tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = Usage{}
	t.byProvider = make(map[string]Usage)
	t.runs = make(map[string]*Usage)
	t.spentToday = 0
	t.periodStart = startOfDay(t.now())
}

// rollLocked starts a new period at UTC midnight.
func (t *tracker) rollLocked() {
	if day := startOfDay(t.now()); day.After(t.periodStart) {
		t.periodStart = day
		t.spentToday = 0
	}
}

func startOfDay(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

type runIDKey struct{}

// WithRunID attributes model calls made with ctx to runID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run ID set by WithRunID.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok {
		return id
	}
	return ""
}
