// Package hub tracks the live voice sessions of the process.
package hub

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/xiaot623/voicerag/internal/domain"
	"github.com/xiaot623/voicerag/internal/relay"
)

// Session is the view of a relay session the hub needs.
type Session interface {
	ID() string
	Info() relay.Info
	Grounding() []domain.GroundingRecord
	Close(code int, reason string)
}

// Hub manages all live sessions.
type Hub struct {
	sessions map[string]Session

	// Channels for registration/unregistration
	register   chan Session
	unregister chan Session

	logger *slog.Logger
	mu     sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions:   make(map[string]Session),
		register:   make(chan Session),
		unregister: make(chan Session),
		logger:     logger,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case s := <-h.register:
			h.mu.Lock()
			h.sessions[s.ID()] = s
			n := len(h.sessions)
			h.mu.Unlock()
			h.logger.Info("session registered", "session_id", s.ID(), "active", n)

		case s := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.sessions[s.ID()]; ok {
				delete(h.sessions, s.ID())
			}
			n := len(h.sessions)
			h.mu.Unlock()
			h.logger.Info("session unregistered", "session_id", s.ID(), "active", n)
		}
	}
}

// Register registers a session with the hub.
func (h *Hub) Register(s Session) {
	h.register <- s
}

// Unregister unregisters a session from the hub.
func (h *Hub) Unregister(s Session) {
	h.unregister <- s
}

// Get returns a live session by id.
func (h *Hub) Get(id string) (Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Snapshot returns the info of every live session, oldest first.
func (h *Hub) Snapshot() []relay.Info {
	h.mu.RLock()
	infos := make([]relay.Info, 0, len(h.sessions))
	for _, s := range h.sessions {
		infos = append(infos, s.Info())
	}
	h.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// CloseAll asks every live session to close with the given code.
func (h *Hub) CloseAll(code int, reason string) {
	h.mu.RLock()
	sessions := make([]Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()
	for _, s := range sessions {
		s.Close(code, reason)
	}
}

// Wait blocks until no session is live or ctx ends.
func (h *Hub) Wait(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for h.Count() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
