package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable is returned when the model service cannot be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUnauthorized is returned when credentials are rejected or cannot be acquired.
	ErrUnauthorized = errors.New("upstream authorization failed")
	// ErrProtocol marks a malformed or unrecognized realtime message.
	ErrProtocol = errors.New("protocol error")
	// ErrToolNotFound is returned when dispatching an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")
	// ErrDuplicateTool is a configuration error raised on duplicate registration.
	ErrDuplicateTool = errors.New("tool already registered")
	// ErrRegistryFrozen is returned when registering after bootstrap.
	ErrRegistryFrozen = errors.New("tool registry is frozen")
	// ErrToolTimeout is returned when a tool exceeds its deadline.
	ErrToolTimeout = errors.New("tool timed out")
	// ErrSessionClosed is returned when writing to a torn down session.
	ErrSessionClosed = errors.New("session closed")
)

// ArgumentError reports tool arguments that do not satisfy the tool schema.
type ArgumentError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("invalid arguments for %s: %s %s", e.Tool, e.Field, e.Reason)
}

// ToolExecutionError wraps a failure raised by a tool handler.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}
