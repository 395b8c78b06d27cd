package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/xiaot623/voicerag/internal/domain"
	"github.com/xiaot623/voicerag/internal/protocol"
	"github.com/xiaot623/voicerag/internal/tools"
)

// handleUpstreamMessage routes one model event. Unknown types pass through verbatim.
func (s *Session) handleUpstreamMessage(ctx context.Context, data []byte) {
	eventType, err := protocol.PeekType(data)
	if err != nil {
		s.logger.Warn("dropping malformed upstream message", "error", err)
		return
	}

	switch eventType {
	case protocol.TypeSessionCreated, protocol.TypeSessionUpdated:
		out, err := sanitizeSession(data)
		if err != nil {
			s.logger.Warn("dropping malformed session event", "type", eventType, "error", err)
			return
		}
		_ = s.sendClient(ctx, out)

	case protocol.TypeResponseOutputItemAdded, protocol.TypeResponseOutputItemDone:
		var ev protocol.ItemEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("dropping malformed output item", "type", eventType, "error", err)
			return
		}
		if ev.Item.Type != protocol.ItemTypeFunctionCall {
			_ = s.sendClient(ctx, s.redactItemEvent(data))
			return
		}
		if eventType == protocol.TypeResponseOutputItemAdded {
			s.calls.begin(ev.Item.CallID, ev.Item.ID, ev.Item.Name, ev.ResponseID)
			return
		}
		if call, ok := s.calls.complete(ev.Item.CallID, ev.ResponseID, ev.Item.Name, ev.Item.Arguments); ok {
			s.dispatch(ctx, call)
		}

	case protocol.TypeConversationItemCreated:
		var ev protocol.ItemEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("dropping malformed conversation item", "error", err)
			return
		}
		switch ev.Item.Type {
		case protocol.ItemTypeFunctionCall:
			s.calls.link(ev.Item.CallID, ev.Item.ID, ev.PreviousItemID)
		case protocol.ItemTypeFunctionCallOutput:
		default:
			_ = s.sendClient(ctx, s.redactItemEvent(data))
		}

	case protocol.TypeFunctionCallArgumentsDelta:
		var ev protocol.FunctionCallArguments
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("dropping malformed arguments delta", "error", err)
			return
		}
		s.calls.appendDelta(ev.CallID, ev.ResponseID, ev.Delta)

	case protocol.TypeFunctionCallArgumentsDone:
		var ev protocol.FunctionCallArguments
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("dropping malformed arguments", "error", err)
			return
		}
		if call, ok := s.calls.complete(ev.CallID, ev.ResponseID, ev.Name, ev.Arguments); ok {
			s.dispatch(ctx, call)
		}

	case protocol.TypeResponseDone:
		s.handleResponseDone(ctx, data)

	case protocol.TypeAudioTranscriptDelta, protocol.TypeTextDelta:
		_ = s.sendClient(ctx, s.redactFields(data, "delta"))

	case protocol.TypeAudioTranscriptDone:
		_ = s.sendClient(ctx, s.redactFields(data, "transcript"))

	case protocol.TypeTextDone:
		_ = s.sendClient(ctx, s.redactFields(data, "text"))

	case protocol.TypeContentPartDone:
		_ = s.sendClient(ctx, s.redactPart(data))

	default:
		_ = s.sendClient(ctx, data)
	}
}

// handleResponseDone strips function calls from the finished response and asks
// the model to continue once every tool call of that response produced output.
func (s *Session) handleResponseDone(ctx context.Context, data []byte) {
	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		s.logger.Warn("dropping malformed response.done", "error", err)
		return
	}
	resp, err := ev.Object("response")
	if err != nil || resp == nil {
		_ = s.sendClient(ctx, data)
		return
	}

	responseID := resp.String("id")
	late, continueNow := s.calls.responseDone(responseID)
	for _, call := range late {
		s.dispatch(ctx, call)
	}
	if continueNow {
		s.sendUpstreamJSON(ctx, protocol.NewResponseCreate())
	}

	var output []json.RawMessage
	if raw, ok := resp["output"]; ok && json.Unmarshal(raw, &output) == nil {
		issued := s.deps.Ledger.IssuedIDs()
		kept := make([]json.RawMessage, 0, len(output))
		changed := false
		for _, entry := range output {
			item, err := protocol.DecodeEvent(entry)
			if err != nil {
				kept = append(kept, entry)
				continue
			}
			if item.String("type") == protocol.ItemTypeFunctionCall {
				changed = true
				continue
			}
			if s.redactItem(item, issued) {
				if out, err := item.Encode(); err == nil {
					entry = out
					changed = true
				}
			}
			kept = append(kept, entry)
		}
		if changed {
			if err := resp.Set("output", kept); err == nil && ev.Set("response", resp) == nil {
				if out, err := ev.Encode(); err == nil {
					data = out
				}
			}
		}
	}
	_ = s.sendClient(ctx, data)
}

// dispatch runs the tool call in its own goroutine bound to the session context.
func (s *Session) dispatch(ctx context.Context, call domain.ToolCall) {
	s.toolWG.Add(1)
	go func() {
		defer s.toolWG.Done()
		s.runTool(ctx, call)
	}()
}

func (s *Session) runTool(ctx context.Context, call domain.ToolCall) {
	logger := s.logger.With("tool", call.Name, "call_id", call.CallID)
	s.toolCalls.Add(1)
	start := time.Now()

	res, err := s.deps.Registry.Dispatch(ctx, call.Name, call.Arguments)
	if ctx.Err() != nil {
		logger.Debug("tool call abandoned, session closing")
		return
	}

	completed := time.Now()
	call.Status = toolCallStatus(err)
	call.CompletedAt = &completed
	logger = logger.With("status", call.Status, "duration_ms", completed.Sub(start).Milliseconds())

	var output string
	switch {
	case err != nil:
		s.toolFailures.Add(1)
		if call.Status == domain.ToolCallStatusTimeout {
			s.toolTimeouts.Add(1)
		}
		logger.Warn("tool call failed", "error", err)
		output = tools.ErrorOutput(err)
	case res.Direction == domain.ToolResultToClient:
		logger.Info("tool call completed", "direction", res.Direction)
		s.sendClientJSON(ctx, protocol.NewToolResponse(call.Name, call.PreviousItemID, res.Text))
	default:
		logger.Info("tool call completed", "direction", res.Direction)
		output = res.Text
	}

	// The output must be queued before the call is marked finished so the
	// continuation below always follows every output of the response.
	s.sendUpstreamJSON(ctx, protocol.NewFunctionCallOutput(call.CallID, call.ItemID, output))
	if responseID, ok := s.calls.finish(call.CallID); ok {
		logger.Debug("all tool calls finished, continuing response", "response_id", responseID)
		s.sendUpstreamJSON(ctx, protocol.NewResponseCreate())
	}
}

func toolCallStatus(err error) domain.ToolCallStatus {
	switch {
	case err == nil:
		return domain.ToolCallStatusSucceeded
	case errors.Is(err, domain.ErrToolTimeout):
		return domain.ToolCallStatusTimeout
	default:
		return domain.ToolCallStatusFailed
	}
}

func (s *Session) redactFields(data []byte, field string) []byte {
	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		return data
	}
	text := ev.String(field)
	redacted := s.deps.Redactor.Redact(text, s.deps.Ledger.IssuedIDs())
	if redacted == text {
		return data
	}
	if err := ev.Set(field, redacted); err != nil {
		return data
	}
	out, err := ev.Encode()
	if err != nil {
		return data
	}
	return out
}

func (s *Session) redactPart(data []byte) []byte {
	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		return data
	}
	part, err := ev.Object("part")
	if err != nil || part == nil {
		return data
	}
	if !s.redactText(part, s.deps.Ledger.IssuedIDs()) || ev.Set("part", part) != nil {
		return data
	}
	out, err := ev.Encode()
	if err != nil {
		return data
	}
	return out
}

// redactItemEvent scrubs the message item of output_item and item.created events.
func (s *Session) redactItemEvent(data []byte) []byte {
	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		return data
	}
	item, err := ev.Object("item")
	if err != nil || item == nil {
		return data
	}
	if !s.redactItem(item, s.deps.Ledger.IssuedIDs()) || ev.Set("item", item) != nil {
		return data
	}
	out, err := ev.Encode()
	if err != nil {
		return data
	}
	return out
}

// redactItem scrubs every content part of a conversation item in place.
func (s *Session) redactItem(item protocol.Event, issued []string) bool {
	raw, ok := item["content"]
	if !ok {
		return false
	}
	var parts []protocol.Event
	if json.Unmarshal(raw, &parts) != nil {
		return false
	}
	changed := false
	for _, part := range parts {
		if part != nil && s.redactText(part, issued) {
			changed = true
		}
	}
	return changed && item.Set("content", parts) == nil
}

func (s *Session) redactText(part protocol.Event, issued []string) bool {
	changed := false
	for _, field := range []string{"transcript", "text"} {
		text := part.String(field)
		if redacted := s.deps.Redactor.Redact(text, issued); redacted != text {
			if part.Set(field, redacted) == nil {
				changed = true
			}
		}
	}
	return changed
}
