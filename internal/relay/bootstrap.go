package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/voicerag/internal/domain"
)

// bootstrap dials the model service and writes the configuration message
// before any client frame is read.
func (s *Session) bootstrap(ctx context.Context) error {
	conn, err := s.deps.Dialer.Dial(ctx)
	if err != nil {
		return err
	}
	s.upstream = conn
	if s.opts.MaxMessageSize > 0 {
		s.upstream.SetReadLimit(s.opts.MaxMessageSize * 16)
		s.client.SetReadLimit(s.opts.MaxMessageSize)
	}

	data, err := json.Marshal(s.configMessage())
	if err != nil {
		return fmt.Errorf("failed to marshal session configuration: %w", err)
	}
	s.upstream.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if err := s.upstream.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: failed to send session configuration: %v", domain.ErrUpstreamUnavailable, err)
	}
	s.logger.Info("session configured",
		"tools", len(s.toolDefs),
		"voice", s.opts.Voice,
		"tool_choice", s.toolChoice())
	return nil
}
