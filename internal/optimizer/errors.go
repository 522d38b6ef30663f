package optimizer

import (
	"errors"
	"fmt"
)

// ErrNoFindings is returned when an evaluation response contains no text.
var ErrNoFindings = errors.New("evaluation response contained no findings")

// RequestValidationError rejects a request before any model call is made.
type RequestValidationError struct {
	Field   string
	Message string
}

func (e *RequestValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Message
	}
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Message)
}

// ModelInvocationError wraps a failed adapter call for one stage.
type ModelInvocationError struct {
	Provider string
	Stage    Stage
	Err      error
}

func (e *ModelInvocationError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s step: model invocation failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s step: %s invocation failed: %v", e.Stage, e.Provider, e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

// ParseError reports text that could not be parsed. Index is the 1-based
// position of the offending example, or 0 for model output.
type ParseError struct {
	Index   int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Index > 0 {
		return fmt.Sprintf("example %d: %s", e.Index, msg)
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsValidation reports whether err should be surfaced to the caller as a
// rejected request.
func IsValidation(err error) bool {
	var rv *RequestValidationError
	var pe *ParseError
	return errors.As(err, &rv) || (errors.As(err, &pe) && pe.Index > 0)
}
