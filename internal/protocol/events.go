package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/xiaot623/voicerag/internal/domain"
)

// Event is a decoded event kept as raw fields so unknown keys survive re-encoding.
type Event map[string]json.RawMessage

// DecodeEvent decodes an event into its top-level fields.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProtocol, err)
	}
	return ev, nil
}

// Encode re-encodes the event.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(map[string]json.RawMessage(e))
}

// String returns a string field, or "" when absent or not a string.
func (e Event) String(key string) string {
	raw, ok := e[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Object decodes a nested object field. A missing field yields (nil, nil).
func (e Event) Object(key string) (Event, error) {
	raw, ok := e[key]
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	var obj Event
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: field %s: %v", domain.ErrProtocol, key, err)
	}
	return obj, nil
}

// Set encodes v into the given field.
func (e Event) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e[key] = raw
	return nil
}

// Item is the subset of conversation item fields the relay inspects.
type Item struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Role      string `json:"role,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ItemEvent covers conversation.item.created and response.output_item.added/done.
type ItemEvent struct {
	Type           string `json:"type"`
	ResponseID     string `json:"response_id,omitempty"`
	PreviousItemID string `json:"previous_item_id,omitempty"`
	Item           Item   `json:"item"`
}

// FunctionCallArguments covers response.function_call_arguments.delta/done.
type FunctionCallArguments struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	CallID     string `json:"call_id"`
	Name       string `json:"name,omitempty"`
	Delta      string `json:"delta,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
}
