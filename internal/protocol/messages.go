// Package protocol defines the realtime event envelopes exchanged on both legs of a session.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/xiaot623/voicerag/internal/domain"
)

// Event types sent by clients (and by the relay towards the model).
const (
	TypeSessionUpdate          = "session.update"
	TypeInputAudioAppend       = "input_audio_buffer.append"
	TypeInputAudioCommit       = "input_audio_buffer.commit"
	TypeInputAudioClear        = "input_audio_buffer.clear"
	TypeConversationItemCreate = "conversation.item.create"
	TypeResponseCreate         = "response.create"
	TypeResponseCancel         = "response.cancel"
)

// Event types sent by the model service.
const (
	TypeSessionCreated             = "session.created"
	TypeSessionUpdated             = "session.updated"
	TypeConversationItemCreated    = "conversation.item.created"
	TypeResponseCreated            = "response.created"
	TypeResponseDone               = "response.done"
	TypeResponseOutputItemAdded    = "response.output_item.added"
	TypeResponseOutputItemDone     = "response.output_item.done"
	TypeFunctionCallArgumentsDelta = "response.function_call_arguments.delta"
	TypeFunctionCallArgumentsDone  = "response.function_call_arguments.done"
	TypeAudioTranscriptDelta       = "response.audio_transcript.delta"
	TypeAudioTranscriptDone        = "response.audio_transcript.done"
	TypeTextDelta                  = "response.text.delta"
	TypeTextDone                   = "response.text.done"
	TypeContentPartDone            = "response.content_part.done"
	TypeError                      = "error"
)

// TypeToolResponse is the relay's own event carrying client-direction tool results.
const TypeToolResponse = "extension.middle_tier_tool_response"

// Conversation item types.
const (
	ItemTypeMessage            = "message"
	ItemTypeFunctionCall       = "function_call"
	ItemTypeFunctionCallOutput = "function_call_output"
)

// ErrorCodePolicyViolation marks client events rejected by the relay.
const ErrorCodePolicyViolation = "relay_policy_violation"

// BaseMessage contains the discriminator shared by every event.
type BaseMessage struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`
}

// PeekType reads the event discriminator without decoding the payload.
func PeekType(data []byte) (string, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProtocol, err)
	}
	if base.Type == "" {
		return "", fmt.Errorf("%w: missing type", domain.ErrProtocol)
	}
	return base.Type, nil
}

// ToolDefinition advertises a function tool to the model.
type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// InputAudioTranscription enables transcripts of user audio.
type InputAudioTranscription struct {
	Model string `json:"model"`
}

// SessionConfig is the session section of a session.update event.
type SessionConfig struct {
	Instructions            string                   `json:"instructions"`
	Voice                   string                   `json:"voice,omitempty"`
	Tools                   []ToolDefinition         `json:"tools"`
	ToolChoice              string                   `json:"tool_choice"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty"`
}

// SessionUpdate is the configuration event sent upstream at bootstrap.
type SessionUpdate struct {
	BaseMessage
	Session SessionConfig `json:"session"`
}

// FunctionCallOutput is the conversation item carrying a tool result.
type FunctionCallOutput struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// ConversationItemCreate injects a function call output into the conversation.
type ConversationItemCreate struct {
	BaseMessage
	PreviousItemID string             `json:"previous_item_id,omitempty"`
	Item           FunctionCallOutput `json:"item"`
}

// ResponseCreate asks the model to continue after tool results were submitted.
type ResponseCreate struct {
	BaseMessage
}

// ToolResponse delivers a client-direction tool result to the client.
type ToolResponse struct {
	BaseMessage
	PreviousItemID string `json:"previous_item_id,omitempty"`
	ToolName       string `json:"tool_name"`
	ToolResult     string `json:"tool_result"`
}

// ErrorDetail is the error body of an error event.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ErrorEvent is sent to the client when the relay rejects one of its events.
type ErrorEvent struct {
	BaseMessage
	Error ErrorDetail `json:"error"`
}

// NewFunctionCallOutput builds the conversation.item.create for a finished tool call.
func NewFunctionCallOutput(callID, previousItemID, output string) ConversationItemCreate {
	return ConversationItemCreate{
		BaseMessage:    BaseMessage{Type: TypeConversationItemCreate},
		PreviousItemID: previousItemID,
		Item: FunctionCallOutput{
			Type:   ItemTypeFunctionCallOutput,
			CallID: callID,
			Output: output,
		},
	}
}

// NewResponseCreate builds a bare response.create event.
func NewResponseCreate() ResponseCreate {
	return ResponseCreate{BaseMessage: BaseMessage{Type: TypeResponseCreate}}
}

// NewToolResponse builds the client extension event for a tool result.
func NewToolResponse(toolName, previousItemID, result string) ToolResponse {
	return ToolResponse{
		BaseMessage:    BaseMessage{Type: TypeToolResponse},
		PreviousItemID: previousItemID,
		ToolName:       toolName,
		ToolResult:     result,
	}
}

// NewErrorEvent builds an invalid_request_error event.
func NewErrorEvent(code, message string) ErrorEvent {
	return ErrorEvent{
		BaseMessage: BaseMessage{Type: TypeError},
		Error: ErrorDetail{
			Type:    "invalid_request_error",
			Code:    code,
			Message: message,
		},
	}
}
