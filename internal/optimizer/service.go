package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/longmans/prompt-agent/internal/audit"
	"github.com/longmans/prompt-agent/internal/llm/adapter"
	"github.com/longmans/prompt-agent/internal/llm/budget"
	"github.com/longmans/prompt-agent/internal/metrics"
	"github.com/longmans/prompt-agent/internal/tracing"
)

// HandleSource resolves the model handle for a provider. *adapter.Registry
// satisfies it.
type HandleSource interface {
	Get(ctx context.Context, provider adapter.ProviderType) (adapter.LLMAdapter, error)
}

// ModelCatalog lists the model types a request may ask for.
type ModelCatalog interface {
	DefaultModel() string
	SupportedModels() []string
}

// RunStore persists completed runs.
type RunStore interface {
	SaveRun(ctx context.Context, r Response) error
}

// UsageSource reports the token usage recorded for a run.
// budget.Tracker satisfies it.
type UsageSource interface {
	RunUsage(runID string) (budget.Usage, bool)
	ForgetRun(runID string)
}

// Service validates requests and runs the sequence against the requested
// provider.
type Service struct {
	handles  HandleSource
	catalog  ModelCatalog
	store    RunStore
	audit    audit.Logger
	logger   *zap.Logger
	selector Selector
	usage    UsageSource
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRunStore enables run history.
func WithRunStore(store RunStore) ServiceOption {
	return func(s *Service) { s.store = store }
}

// WithAuditLogger sets the audit sink.
func WithAuditLogger(l audit.Logger) ServiceOption {
	return func(s *Service) { s.audit = l }
}

// WithServiceLogger sets the application logger.
func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithRecommendationSelector replaces the finalization heuristic for every run.
func WithRecommendationSelector(sel Selector) ServiceOption {
	return func(s *Service) { s.selector = sel }
}

// WithUsageTracker attaches per-run token usage to responses.
func WithUsageTracker(u UsageSource) ServiceOption {
	return func(s *Service) { s.usage = u }
}

// NewService creates the optimization service.
func NewService(handles HandleSource, catalog ModelCatalog, opts ...ServiceOption) *Service {
	s := &Service{
		handles:  handles,
		catalog:  catalog,
		audit:    audit.NewNopLogger(),
		logger:   zap.NewNop(),
		selector: LongestSelector{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Help returns the request format description.
func (s *Service) Help() string {
	return UsageHelp(s.catalog.DefaultModel(), s.catalog.SupportedModels())
}

// Prepare normalizes and validates req without running it.
func (s *Service) Prepare(req Request) (Request, error) {
	req = req.Normalize(s.catalog.DefaultModel())
	if err := req.Validate(s.catalog.SupportedModels()); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Optimize runs one request end to end. Only validation errors, an
// unavailable provider and cancellation are returned as errors; step failures
// degrade the result instead. obs may be nil.
func (s *Service) Optimize(ctx context.Context, req Request, obs Observer) (Response, error) {
	if audit.GetCorrelationID(ctx) == "" {
		ctx = audit.WithCorrelationID(ctx, audit.GenerateCorrelationID())
	}

	prepared, err := s.Prepare(req)
	if err != nil {
		metrics.RunsTotal.WithLabelValues(s.modelLabel(req), "rejected").Inc()
		_ = s.audit.Log(ctx, audit.RequestRejected(err))
		return Response{}, err
	}
	req = prepared

	provider, err := adapter.ParseProviderType(req.ModelType)
	if err != nil {
		return Response{}, &RequestValidationError{Field: "model_type", Message: err.Error()}
	}
	handle, err := s.handles.Get(ctx, provider)
	if err != nil {
		return Response{}, fmt.Errorf("resolve %s model handle: %w", provider, err)
	}
	if !handle.IsConfigured() {
		return Response{}, fmt.Errorf("%w: %s", adapter.ErrProviderNotConfigured, provider)
	}

	runID := uuid.NewString()
	logger := s.logger.With(
		zap.String("run_id", runID),
		zap.String("model_type", req.ModelType),
		zap.String("correlation_id", audit.GetCorrelationID(ctx)),
	)
	ctx = budget.WithRunID(ctx, runID)
	ctx, span := tracing.StartSpan(ctx, "optimizer.run",
		attribute.String("optimizer.run_id", runID),
		attribute.String("optimizer.model_type", req.ModelType),
		attribute.Int("optimizer.examples", len(req.Examples)),
	)

	_ = s.audit.Log(ctx, audit.RunStarted(runID, req.Role, req.ModelType))
	logger.Info("optimization run started", zap.String("role", req.Role), zap.Int("examples", len(req.Examples)))

	observer := func(ev StepEvent) {
		if ev.Fallback {
			_ = s.audit.Log(ctx, audit.StepFallback(runID, string(ev.Stage), ev.Err))
		}
		if obs != nil {
			obs(ev)
		}
	}
	seq := NewSequencer(handle, string(provider),
		WithSelector(s.selector),
		WithObserver(observer),
		WithLogger(logger),
	)

	start := s.now()
	final, err := seq.Run(ctx, NewState(req))
	elapsed := s.now().Sub(start)
	var usage *budget.Usage
	if s.usage != nil {
		if u, ok := s.usage.RunUsage(runID); ok {
			usage = &u
		}
		s.usage.ForgetRun(runID)
	}
	if err != nil {
		status := "failed"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = "cancelled"
		}
		metrics.RunsTotal.WithLabelValues(req.ModelType, status).Inc()
		_ = s.audit.Log(context.WithoutCancel(ctx), audit.RunFailed(runID, req.ModelType, err))
		logger.Warn("optimization run aborted", zap.Error(err))
		tracing.EndSpan(span, err)
		return Response{}, err
	}

	resp := NewResponse(final)
	resp.RunID = runID
	resp.CreatedAt = s.now().UTC()
	resp.Usage = usage

	if s.store != nil {
		if err := s.store.SaveRun(ctx, resp); err != nil {
			logger.Error("failed to save run", zap.Error(err))
		}
	}

	status := "completed"
	if final.Degraded() {
		status = "degraded"
	}
	metrics.RunsTotal.WithLabelValues(req.ModelType, status).Inc()
	metrics.RunDuration.WithLabelValues(req.ModelType).Observe(elapsed.Seconds())
	_ = s.audit.Log(ctx, audit.RunCompleted(runID, req.ModelType, final.Degraded(), elapsed))
	logger.Info("optimization run completed",
		zap.String("step", string(final.Step)),
		zap.Int("fallbacks", len(final.Fallbacks)),
		zap.Duration("duration", elapsed),
	)
	span.SetAttributes(attribute.String("optimizer.step", string(final.Step)))
	tracing.EndSpan(span, nil)

	return resp, nil
}

// modelLabel bounds the metric label to known model types.
func (s *Service) modelLabel(req Request) string {
	model := req.Normalize(s.catalog.DefaultModel()).ModelType
	for _, p := range adapter.Providers {
		if string(p) == model {
			return model
		}
	}
	return "unknown"
}
