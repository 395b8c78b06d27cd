// Package domain defines the core domain models for the realtime relay.
package domain

// SessionState represents the lifecycle state of a relay session.
type SessionState string

const (
	SessionStateIdle        SessionState = "IDLE"
	SessionStateConfiguring SessionState = "CONFIGURING"
	SessionStateRelaying    SessionState = "RELAYING"
	SessionStateClosed      SessionState = "CLOSED"
)

// ToolCallStatus represents the status of a tool invocation.
type ToolCallStatus string

const (
	ToolCallStatusPending   ToolCallStatus = "PENDING"
	ToolCallStatusRunning   ToolCallStatus = "RUNNING"
	ToolCallStatusSucceeded ToolCallStatus = "SUCCEEDED"
	ToolCallStatusFailed    ToolCallStatus = "FAILED"
	ToolCallStatusTimeout   ToolCallStatus = "TIMEOUT"
)

// ToolResultDirection tells the relay where a tool result goes besides the model.
type ToolResultDirection string

const (
	// ToolResultToServer results are only returned to the model.
	ToolResultToServer ToolResultDirection = "server"
	// ToolResultToClient results are also fanned out to the client as an extension event.
	ToolResultToClient ToolResultDirection = "client"
)

// PolicyAction is the decision taken for a client-originated event.
type PolicyAction string

const (
	PolicyActionAllow   PolicyAction = "allow"
	PolicyActionRewrite PolicyAction = "rewrite"
	PolicyActionBlock   PolicyAction = "block"
)
