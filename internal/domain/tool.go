package domain

import (
	"encoding/json"
	"time"
)

// ToolCall correlates a model function-call request with its pending execution.
type ToolCall struct {
	CallID         string          `json:"call_id"`
	ItemID         string          `json:"item_id,omitempty"`
	PreviousItemID string          `json:"previous_item_id,omitempty"`
	ResponseID     string          `json:"response_id,omitempty"`
	Name           string          `json:"name"`
	Arguments      json.RawMessage `json:"arguments"`
	Status         ToolCallStatus  `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// ToolResult is what a tool handler hands back to the relay.
type ToolResult struct {
	// Text is the payload injected into the conversation as the function call output.
	Text      string
	Direction ToolResultDirection
}

// TextResult builds a result that only goes back to the model.
func TextResult(text string) ToolResult {
	return ToolResult{Text: text, Direction: ToolResultToServer}
}

// ClientResult builds a result that is also delivered to the client.
func ClientResult(text string) ToolResult {
	return ToolResult{Text: text, Direction: ToolResultToClient}
}

// Document is a knowledge-base entry as exposed to the relay.
type Document struct {
	ID      string `json:"chunk_id"`
	Title   string `json:"title,omitempty"`
	Content string `json:"chunk,omitempty"`
}

// GroundingRecord records a knowledge-base source cited for an answer.
type GroundingRecord struct {
	SourceID   string    `json:"chunk_id"`
	Title      string    `json:"title"`
	Passage    string    `json:"chunk"`
	ReportedAt time.Time `json:"reported_at"`
}
