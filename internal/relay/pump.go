package relay

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/voicerag/internal/domain"
)

// readClient reads client frames until the client leaves.
func (s *Session) readClient(ctx context.Context) error {
	defer s.readers.Done()

	s.extendReadDeadline(s.client)
	s.client.SetPongHandler(func(string) error {
		s.extendReadDeadline(s.client)
		return nil
	})

	for {
		msgType, data, err := s.client.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return s.setCause(websocket.CloseNormalClosure, "client closed", nil)
			}
			s.logger.Warn("client read failed", "error", err)
			return s.setCause(websocket.CloseNormalClosure, "client connection lost", nil)
		}
		s.extendReadDeadline(s.client)
		if msgType != websocket.TextMessage {
			s.logger.Warn("dropping non-text client frame", "frame_type", msgType)
			continue
		}
		s.handleClientMessage(ctx, data)
	}
}

// readUpstream reads model frames. Any upstream close while relaying is a failure.
func (s *Session) readUpstream(ctx context.Context) error {
	defer s.readers.Done()

	s.extendReadDeadline(s.upstream)
	s.upstream.SetPongHandler(func(string) error {
		s.extendReadDeadline(s.upstream)
		return nil
	})

	for {
		_, data, err := s.upstream.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("upstream connection lost", "error", err)
			return s.setCause(websocket.CloseInternalServerErr, "upstream connection closed",
				errors.Join(domain.ErrUpstreamUnavailable, err))
		}
		s.extendReadDeadline(s.upstream)
		s.handleUpstreamMessage(ctx, data)
	}
}

func (s *Session) writeClient(ctx context.Context) error {
	return s.writePump(ctx, s.client, s.toClient, func(err error) error {
		s.logger.Warn("client write failed", "error", err)
		return s.setCause(websocket.CloseNormalClosure, "client connection lost", nil)
	})
}

func (s *Session) writeUpstream(ctx context.Context) error {
	return s.writePump(ctx, s.upstream, s.toUpstream, func(err error) error {
		s.logger.Error("upstream write failed", "error", err)
		return s.setCause(websocket.CloseInternalServerErr, "upstream connection closed",
			errors.Join(domain.ErrUpstreamUnavailable, err))
	})
}

// writePump is the only writer of data frames on conn; it also keeps the leg alive with pings.
func (s *Session) writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte, onErr func(error) error) error {
	var tick <-chan time.Time
	if s.opts.PingInterval > 0 {
		ticker := time.NewTicker(s.opts.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return onErr(err)
			}
		case <-tick:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteTimeout)); err != nil {
				return onErr(err)
			}
		}
	}
}

func (s *Session) extendReadDeadline(conn *websocket.Conn) {
	if s.opts.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	}
}
