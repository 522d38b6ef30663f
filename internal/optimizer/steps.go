package optimizer

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/longmans/prompt-agent/internal/llm/types"
)

// Completer is the single capability the steps need from a model handle.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts types.Options) (string, error)
}

// StepFunc is the shape of one model-backed step.
type StepFunc func(ctx context.Context, s State) (State, error)

const systemInstruction = "You are an expert prompt engineer. Answer in the exact format requested."

// Steps binds the model-backed steps to one Completer.
type Steps struct {
	completer Completer
	provider  string
	options   types.Options
}

// NewSteps creates the step set. provider is only used to label errors.
func NewSteps(c Completer, provider string) *Steps {
	return &Steps{
		completer: c,
		provider:  provider,
		options:   types.Options{System: systemInstruction},
	}
}

func (st *Steps) invoke(ctx context.Context, stage Stage, s State) (string, error) {
	instruction, err := RenderInstruction(stage, s)
	if err != nil {
		return "", err
	}
	text, err := st.completer.Complete(ctx, instruction, st.options)
	if err != nil {
		return "", &ModelInvocationError{Provider: st.provider, Stage: stage, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &ModelInvocationError{Provider: st.provider, Stage: stage, Err: types.ErrEmptyResponse}
	}
	return text, nil
}

// GenerateGuide drafts a prompt engineering guide for the role.
func (st *Steps) GenerateGuide(ctx context.Context, s State) (State, error) {
	text, err := st.invoke(ctx, StageGuide, s)
	if err != nil {
		return State{}, err
	}
	next := s.clone()
	next.EngineeringGuide = strings.TrimSpace(text)
	next.Step = StepGuideGenerated
	return next, nil
}

// GeneratePrompt reverse-engineers a prompt from the examples.
func (st *Steps) GeneratePrompt(ctx context.Context, s State) (State, error) {
	text, err := st.invoke(ctx, StagePrompt, s)
	if err != nil {
		return State{}, err
	}
	prompt := ExtractPromptSection(text)
	if prompt == "" {
		return State{}, &ModelInvocationError{Provider: st.provider, Stage: StagePrompt, Err: types.ErrEmptyResponse}
	}
	next := s.clone()
	next.CurrentPrompt = prompt
	next.Step = StepPromptGenerated
	return next, nil
}

// GenerateEvaluationGuide drafts the evaluation rubric for the role.
func (st *Steps) GenerateEvaluationGuide(ctx context.Context, s State) (State, error) {
	text, err := st.invoke(ctx, StageEvaluationGuide, s)
	if err != nil {
		return State{}, err
	}
	next := s.clone()
	next.EvaluationGuide = strings.TrimSpace(text)
	next.Step = StepEvaluationGuideGenerated
	return next, nil
}

// EvaluatePrompt critiques CurrentPrompt and records one entry per finding.
func (st *Steps) EvaluatePrompt(ctx context.Context, s State) (State, error) {
	text, err := st.invoke(ctx, StageEvaluation, s)
	if err != nil {
		return State{}, err
	}
	findings := SplitFindings(text)
	if len(findings) == 0 {
		return State{}, &ParseError{Message: "evaluation response", Err: ErrNoFindings}
	}
	next := s.clone()
	next.Evaluations = append(next.Evaluations, findings...)
	next.Step = StepPromptEvaluated
	return next, nil
}

// ImprovePrompt produces exactly AlternativeCount revised prompts.
func (st *Steps) ImprovePrompt(ctx context.Context, s State) (State, error) {
	text, err := st.invoke(ctx, StageImprovement, s)
	if err != nil {
		return State{}, err
	}
	next := s.clone()
	next.AlternativePrompts = PadAlternatives(ExtractAlternatives(text), s.CurrentPrompt)
	next.Step = StepAlternativesGenerated
	return next, nil
}

// ─── Fallbacks ────────────────────────────────────────────────────────────────

// fallbackFor returns s with the fixed fallback value for stage substituted.
func fallbackFor(stage Stage, s State) State {
	next := s.clone()
	switch stage {
	case StageGuide:
		next.EngineeringGuide = FallbackGuide
		next.Step = StepGuideFallback
	case StagePrompt:
		next.CurrentPrompt = FallbackPrompt
		next.Step = StepPromptFallback
	case StageEvaluationGuide:
		next.EvaluationGuide = FallbackEvaluationGuide
		next.Step = StepEvaluationGuideFallback
	case StageEvaluation:
		next.Evaluations = append(next.Evaluations, FallbackEvaluation)
		next.Step = StepEvaluationFallback
	case StageImprovement:
		current := s.CurrentPrompt
		if strings.TrimSpace(current) == "" {
			current = FallbackPrompt
		}
		next.AlternativePrompts = PadAlternatives(nil, current)
		next.Step = StepImprovementFallback
	}
	next.Fallbacks = append(next.Fallbacks, stage)
	return next
}

// ─── Finalization ─────────────────────────────────────────────────────────────

// Selector picks the recommended prompt. An empty result means no
// alternative was usable.
type Selector interface {
	Select(s State) string
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(s State) string

func (f SelectorFunc) Select(s State) string { return f(s) }

// LongestSelector picks the alternative with the most characters; ties go to
// the earliest one.
type LongestSelector struct{}

func (LongestSelector) Select(s State) string {
	best, bestLen := "", 0
	for _, alt := range s.AlternativePrompts {
		if strings.TrimSpace(alt) == "" {
			continue
		}
		if n := utf8.RuneCountInString(alt); n > bestLen {
			best, bestLen = alt, n
		}
	}
	return best
}

// Finalize sets FinalRecommendation and the terminal step tag. It never
// calls the model.
func Finalize(s State, sel Selector) State {
	if sel == nil {
		sel = LongestSelector{}
	}
	next := s.clone()
	pick := sel.Select(s)
	if strings.TrimSpace(pick) == "" {
		pick = s.CurrentPrompt
	}
	if strings.TrimSpace(pick) == "" {
		pick = FallbackPrompt
	}
	next.FinalRecommendation = pick
	next.Step = StepCompleted
	if next.Degraded() {
		next.Step = StepCompletedFallback
	}
	return next
}
