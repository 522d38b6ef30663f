package audit

import (
	"fmt"
	"time"
)

// RunStarted records the start of an optimization run.
func RunStarted(runID, role, modelType string) *Event {
	return NewEvent(EventRunStarted).
		WithRunID(runID).
		WithRun(role, modelType).
		WithResult(ResultPending).
		WithDescription(fmt.Sprintf("Run %s started", runID))
}

// RunCompleted records a finished run. degraded marks runs in which at least
// one step used its fallback value.
func RunCompleted(runID, modelType string, degraded bool, duration time.Duration) *Event {
	result := ResultSuccess
	if degraded {
		result = ResultDegraded
	}
	return NewEvent(EventRunCompleted).
		WithRunID(runID).
		WithRun("", modelType).
		WithResult(result).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("Run %s completed", runID))
}

// RunFailed records a run that was aborted.
func RunFailed(runID, modelType string, err error) *Event {
	return NewEvent(EventRunFailed).
		WithRunID(runID).
		WithRun("", modelType).
		WithError(err, "run_error").
		WithDescription(fmt.Sprintf("Run %s failed", runID))
}

// StepFallback records a step that substituted its fallback value.
func StepFallback(runID, stage string, err error) *Event {
	return NewEvent(EventStepFallback).
		WithRunID(runID).
		WithStage(stage).
		WithResult(ResultDegraded).
		WithError(err, "step_error").
		WithDescription(fmt.Sprintf("Step %s used its fallback", stage))
}

// RequestRejected records a request refused before any model call.
func RequestRejected(err error) *Event {
	return NewEvent(EventRequestRejected).
		WithResult(ResultRejected).
		WithError(err, "validation_error")
}

// ConfigLoaded records the configuration a process started with.
func ConfigLoaded(path, defaultProvider string, configured []string) *Event {
	return NewEvent(EventConfigLoaded).
		WithResult(ResultSuccess).
		WithMetadata("path", path).
		WithMetadata("default_provider", defaultProvider).
		WithMetadata("configured_providers", configured).
		WithDescription("Configuration loaded")
}

// ConfigChanged records a configuration reload picked up at runtime.
func ConfigChanged(defaultProvider string, configured []string) *Event {
	return NewEvent(EventConfigChanged).
		WithResult(ResultSuccess).
		WithMetadata("default_provider", defaultProvider).
		WithMetadata("configured_providers", configured).
		WithDescription("Configuration reloaded; model handles reset")
}

// ServerStarted records the server accepting traffic.
func ServerStarted(addr string) *Event {
	return NewEvent(EventServerStarted).
		WithResult(ResultSuccess).
		WithMetadata("address", addr).
		WithDescription("Server started")
}

// ServerShutdown records a graceful stop.
func ServerShutdown(err error) *Event {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	return NewEvent(EventServerShutdown).
		WithResult(result).
		WithError(err, "shutdown_error").
		WithDescription("Server stopped")
}
