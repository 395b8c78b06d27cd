package relay

import (
	"fmt"

	"github.com/xiaot623/voicerag/internal/protocol"
)

// Fields the server owns on session and response configuration.
var serverOwnedResponseFields = []string{"instructions", "tools", "tool_choice", "voice", "model"}

// configMessage is the session.update written upstream before any client traffic.
func (s *Session) configMessage() protocol.SessionUpdate {
	return protocol.SessionUpdate{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeSessionUpdate},
		Session: protocol.SessionConfig{
			Instructions:            s.opts.Instructions,
			Voice:                   s.opts.Voice,
			Tools:                   s.toolDefs,
			ToolChoice:              s.toolChoice(),
			InputAudioTranscription: &protocol.InputAudioTranscription{Model: "whisper-1"},
		},
	}
}

func (s *Session) toolChoice() string {
	if len(s.toolDefs) > 0 {
		return "auto"
	}
	return "none"
}

// rewriteClientEvent re-imposes the server configuration on a client event.
func (s *Session) rewriteClientEvent(eventType string, data []byte) ([]byte, error) {
	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		return nil, err
	}
	switch eventType {
	case protocol.TypeSessionUpdate:
		sess, err := ev.Object("session")
		if err != nil {
			return nil, err
		}
		if sess == nil {
			sess = protocol.Event{}
		}
		delete(sess, "model")
		if err := sess.Set("instructions", s.opts.Instructions); err != nil {
			return nil, err
		}
		if s.opts.Voice != "" {
			if err := sess.Set("voice", s.opts.Voice); err != nil {
				return nil, err
			}
		}
		if err := sess.Set("tools", s.toolDefs); err != nil {
			return nil, err
		}
		if err := sess.Set("tool_choice", s.toolChoice()); err != nil {
			return nil, err
		}
		if err := ev.Set("session", sess); err != nil {
			return nil, err
		}
	case protocol.TypeResponseCreate:
		resp, err := ev.Object("response")
		if err != nil {
			return nil, err
		}
		if resp != nil {
			for _, field := range serverOwnedResponseFields {
				delete(resp, field)
			}
			if err := ev.Set("response", resp); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("no rewrite for %s", eventType)
	}
	return ev.Encode()
}

// sanitizeSession hides the server configuration from session.created/updated.
func sanitizeSession(data []byte) ([]byte, error) {
	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		return nil, err
	}
	sess, err := ev.Object("session")
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return data, nil
	}
	if err := sess.Set("instructions", ""); err != nil {
		return nil, err
	}
	if err := sess.Set("tools", []any{}); err != nil {
		return nil, err
	}
	if err := sess.Set("tool_choice", "none"); err != nil {
		return nil, err
	}
	if err := ev.Set("session", sess); err != nil {
		return nil, err
	}
	return ev.Encode()
}
