package core

import "errors"

// Pipeline errors. Wrapped with %w so callers can branch with errors.Is.
var (
	// ErrValidation is returned when validation blocks an invocation.
	ErrValidation = errors.New("validation failed")

	// ErrSecurity additionally wraps validation blocks whose highest finding
	// is critical, so they classify and count as security, not validation.
	ErrSecurity = errors.New("input blocked for security reasons")

	// ErrInference is returned when a required parameter could not be
	// inferred. The wrapping message names the parameter and how to supply
	// it explicitly.
	ErrInference = errors.New("parameter inference failed")

	// ErrAmbiguous is returned when no tool clears the confidence floor.
	ErrAmbiguous = errors.New("ambiguous request")

	// ErrExecution is returned when a tool fails during execution.
	ErrExecution = errors.New("tool execution failed")

	// ErrTimeout is returned when an invocation exceeds its hard timeout.
	ErrTimeout = errors.New("tool execution timed out")

	// ErrCircuitOpen is returned without touching the tool when its
	// breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrScopeReleased is returned when an execution scope is used after
	// release.
	ErrScopeReleased = errors.New("execution scope already released")
)
