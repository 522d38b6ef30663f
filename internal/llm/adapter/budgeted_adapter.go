package adapter

import (
	"context"
	"fmt"

	"github.com/longmans/prompt-agent/internal/llm/budget"
	"github.com/longmans/prompt-agent/internal/llm/types"
	"github.com/longmans/prompt-agent/internal/metrics"
)

// budgetedAdapter wraps an LLMAdapter with a pre-flight budget check and
// post-call token recording. It satisfies LLMAdapter, so callers do not change.
type budgetedAdapter struct {
	LLMAdapter
	tracker budget.Tracker
}

// NewBudgetedAdapter wraps inner so every completion is checked against and
// recorded in tracker.
func NewBudgetedAdapter(inner LLMAdapter, tracker budget.Tracker) LLMAdapter {
	return &budgetedAdapter{LLMAdapter: inner, tracker: tracker}
}

// WithBudget wraps every handle built by factory in a budgeted adapter.
func WithBudget(factory Factory, tracker budget.Tracker) Factory {
	return func(ctx context.Context, provider ProviderType) (LLMAdapter, error) {
		h, err := factory(ctx, provider)
		if err != nil {
			return nil, err
		}
		return NewBudgetedAdapter(h, tracker), nil
	}
}

// Complete refuses the call once the budget is spent, then records the
// estimated tokens of a successful completion.
func (a *budgetedAdapter) Complete(ctx context.Context, prompt string, opts types.Options) (string, error) {
	provider := string(a.Provider())
	if err := a.tracker.Enforce(ctx); err != nil {
		metrics.BudgetRejectionsTotal.WithLabelValues(provider).Inc()
		return "", fmt.Errorf("%s: %w", provider, err)
	}

	text, err := a.LLMAdapter.Complete(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	a.tracker.Record(ctx, provider, a.CountTokens(prompt), a.CountTokens(text))
	return text, nil
}
