package optimizer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/longmans/prompt-agent/internal/metrics"
	"github.com/longmans/prompt-agent/internal/tracing"
)

// StepEvent describes one finished step of a run.
type StepEvent struct {
	Stage    Stage
	Step     Step
	Index    int // 1-based
	Total    int
	Fallback bool
	Err      error
	Duration time.Duration
}

// Observer receives a StepEvent after every step. It runs on the sequencing
// goroutine and must not block.
type Observer func(StepEvent)

// Sequencer runs the fixed six-step sequence.
type Sequencer struct {
	steps    *Steps
	selector Selector
	observer Observer
	logger   *zap.Logger
}

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithSelector replaces the finalization heuristic.
func WithSelector(sel Selector) SequencerOption {
	return func(q *Sequencer) { q.selector = sel }
}

// WithObserver registers a progress callback.
func WithObserver(obs Observer) SequencerOption {
	return func(q *Sequencer) { q.observer = obs }
}

// WithLogger sets the logger used for step diagnostics.
func WithLogger(logger *zap.Logger) SequencerOption {
	return func(q *Sequencer) { q.logger = logger }
}

// NewSequencer creates a Sequencer whose model-backed steps call c.
func NewSequencer(c Completer, provider string, opts ...SequencerOption) *Sequencer {
	q := &Sequencer{
		steps:    NewSteps(c, provider),
		selector: LongestSelector{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

type stageDef struct {
	stage Stage
	run   StepFunc
}

func (q *Sequencer) stages() []stageDef {
	return []stageDef{
		{StageGuide, q.steps.GenerateGuide},
		{StagePrompt, q.steps.GeneratePrompt},
		{StageEvaluationGuide, q.steps.GenerateEvaluationGuide},
		{StageEvaluation, q.steps.EvaluatePrompt},
		{StageImprovement, q.steps.ImprovePrompt},
	}
}

// Run executes every step in order starting from s. A failed step is
// replaced by its fallback value and the run continues. Cancellation of ctx
// stops the run and returns ctx.Err() with no state.
func (q *Sequencer) Run(ctx context.Context, s State) (State, error) {
	stages := q.stages()
	total := len(stages) + 1

	for i, def := range stages {
		if err := ctx.Err(); err != nil {
			return State{}, err
		}

		stepCtx, span := tracing.StartSpan(ctx, "optimizer."+string(def.stage),
			attribute.String("optimizer.stage", string(def.stage)),
			attribute.Int("optimizer.step_index", i+1),
		)
		start := time.Now()
		next, err := def.run(stepCtx, s)
		elapsed := time.Since(start)

		if ctxErr := ctx.Err(); ctxErr != nil {
			tracing.EndSpan(span, ctxErr)
			return State{}, ctxErr
		}

		fallback := err != nil
		if fallback {
			next = fallbackFor(def.stage, s)
			metrics.StepFallbacksTotal.WithLabelValues(string(def.stage)).Inc()
			q.logger.Warn("step failed, using fallback",
				zap.String("stage", string(def.stage)),
				zap.Error(err),
			)
		}
		metrics.StepDuration.WithLabelValues(string(def.stage)).Observe(elapsed.Seconds())
		span.SetAttributes(
			attribute.String("optimizer.step", string(next.Step)),
			attribute.Bool("optimizer.fallback", fallback),
		)
		tracing.EndSpan(span, err)

		q.emit(StepEvent{
			Stage:    def.stage,
			Step:     next.Step,
			Index:    i + 1,
			Total:    total,
			Fallback: fallback,
			Err:      err,
			Duration: elapsed,
		})
		s = next
	}

	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	start := time.Now()
	s = Finalize(s, q.selector)
	elapsed := time.Since(start)
	metrics.StepDuration.WithLabelValues(string(StageFinalize)).Observe(elapsed.Seconds())
	q.emit(StepEvent{Stage: StageFinalize, Step: s.Step, Index: total, Total: total, Duration: elapsed})

	return s, nil
}

func (q *Sequencer) emit(ev StepEvent) {
	if q.observer != nil {
		q.observer(ev)
	}
}
