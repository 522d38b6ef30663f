package audit

import "time"

// EventType represents the type of audit event
type EventType string

const (
	// Run lifecycle events
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"
	EventStepFallback EventType = "step.fallback"

	// Request events
	EventRequestRejected EventType = "request.rejected"

	// Configuration events
	EventConfigLoaded  EventType = "config.loaded"
	EventConfigChanged EventType = "config.changed"

	// System events
	EventServerStarted  EventType = "system.server_started"
	EventServerShutdown EventType = "system.server_shutdown"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess  Result = "success"
	ResultDegraded Result = "degraded"
	ResultFailure  Result = "failure"
	ResultPending  Result = "pending"
	ResultRejected Result = "rejected"
)

// Event represents a single audit event
type Event struct {
	// Core fields
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	EventType     EventType `json:"event_type"`
	Result        Result    `json:"result"`

	// Run information
	RunID     string `json:"run_id,omitempty"`
	Role      string `json:"role,omitempty"`
	ModelType string `json:"model_type,omitempty"`
	Stage     string `json:"stage,omitempty"`

	// Caller information
	SourceIP string `json:"source_ip,omitempty"`

	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// Error information
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultPending,
		Metadata:  make(map[string]interface{}),
	}
}

// WithCorrelationID sets the correlation ID for event tracking
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithRunID sets the optimization run the event belongs to
func (e *Event) WithRunID(id string) *Event {
	e.RunID = id
	return e
}

// WithRun sets the role and model type of the run
func (e *Event) WithRun(role, modelType string) *Event {
	e.Role = role
	e.ModelType = modelType
	return e
}

// WithStage sets the sequence stage
func (e *Event) WithStage(stage string) *Event {
	e.Stage = stage
	return e
}

// WithSourceIP records the caller address
func (e *Event) WithSourceIP(ip string) *Event {
	e.SourceIP = ip
	return e
}

// WithDescription sets a human-readable description
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithResult sets the result of the event
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithError sets error information. The result becomes failure unless one
// was already chosen.
func (e *Event) WithError(err error, code string) *Event {
	if err != nil {
		e.Error = err.Error()
		e.ErrorCode = code
		if e.Result == ResultPending {
			e.Result = ResultFailure
		}
	}
	return e
}

// WithDuration sets the duration in milliseconds
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.DurationMs = duration.Milliseconds()
	return e
}

// WithMetadata adds metadata to the event
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}
