package relay

import (
	"context"
	"encoding/json"

	"github.com/xiaot623/voicerag/internal/domain"
	"github.com/xiaot623/voicerag/internal/protocol"
)

// handleClientMessage forwards a client frame upstream after the policy check.
func (s *Session) handleClientMessage(ctx context.Context, data []byte) {
	eventType, err := protocol.PeekType(data)
	if err != nil {
		s.logger.Warn("dropping malformed client message", "error", err)
		return
	}

	// Audio is the bulk of the traffic and never carries configuration.
	if eventType == protocol.TypeInputAudioAppend {
		_ = s.sendUpstream(ctx, data)
		return
	}

	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn("dropping malformed client message", "type", eventType, "error", err)
		return
	}

	decision, err := s.deps.Policy.Evaluate(ctx, event)
	if err != nil {
		s.logger.Error("client policy evaluation failed", "type", eventType, "error", err)
		decision.Action = domain.PolicyActionBlock
		decision.Reason = "event rejected"
	}

	switch decision.Action {
	case domain.PolicyActionAllow:
		_ = s.sendUpstream(ctx, data)
	case domain.PolicyActionRewrite:
		rewritten, err := s.rewriteClientEvent(eventType, data)
		if err != nil {
			s.logger.Warn("client event rewrite failed", "type", eventType, "error", err)
			s.reject(ctx, eventType, "event rejected")
			return
		}
		s.logger.Debug("client event rewritten", "type", eventType, "reason", decision.Reason)
		_ = s.sendUpstream(ctx, rewritten)
	default:
		s.reject(ctx, eventType, decision.Reason)
	}
}

func (s *Session) reject(ctx context.Context, eventType, reason string) {
	s.logger.Warn("client event blocked", "type", eventType, "reason", reason)
	msg := reason
	if msg == "" {
		msg = "event not allowed"
	}
	s.sendClientJSON(ctx, protocol.NewErrorEvent(protocol.ErrorCodePolicyViolation, eventType+": "+msg))
}

func (s *Session) sendClientJSON(ctx context.Context, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal client message", "error", err)
		return
	}
	_ = s.sendClient(ctx, data)
}

func (s *Session) sendUpstreamJSON(ctx context.Context, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal upstream message", "error", err)
		return
	}
	_ = s.sendUpstream(ctx, data)
}
