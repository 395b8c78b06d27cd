package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/voicerag/internal/domain"
	"github.com/xiaot623/voicerag/internal/relay"
)

type fakeSession struct {
	id      string
	started time.Time

	mu        sync.Mutex
	closeCode int
	onClose   func()
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Info() relay.Info {
	return relay.Info{ID: f.id, State: domain.SessionStateRelaying, StartedAt: f.started}
}

func (f *fakeSession) Grounding() []domain.GroundingRecord { return nil }

func (f *fakeSession) Close(code int, reason string) {
	f.mu.Lock()
	f.closeCode = code
	f.mu.Unlock()
	if f.onClose != nil {
		f.onClose()
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func TestRegisterAndSnapshot(t *testing.T) {
	h := startHub(t)
	now := time.Now()
	h.Register(&fakeSession{id: "b", started: now})
	h.Register(&fakeSession{id: "a", started: now.Add(-time.Minute)})

	require.Eventually(t, func() bool { return h.Count() == 2 }, time.Second, 5*time.Millisecond)
	snap := h.Snapshot()
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, "b", snap[1].ID)

	s, ok := h.Get("b")
	require.True(t, ok)
	assert.Equal(t, "b", s.ID())

	h.Unregister(s)
	assert.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 5*time.Millisecond)
	_, ok = h.Get("b")
	assert.False(t, ok)
}

func TestCloseAllAndWait(t *testing.T) {
	h := startHub(t)
	sessions := []*fakeSession{{id: "a"}, {id: "b"}}
	for _, s := range sessions {
		s := s
		s.onClose = func() { go h.Unregister(s) }
		h.Register(s)
	}
	require.Eventually(t, func() bool { return h.Count() == 2 }, time.Second, 5*time.Millisecond)

	h.CloseAll(1001, "server shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))
	for _, s := range sessions {
		s.mu.Lock()
		assert.Equal(t, 1001, s.closeCode)
		s.mu.Unlock()
	}
}

func TestWaitHonoursContext(t *testing.T) {
	h := startHub(t)
	h.Register(&fakeSession{id: "stuck"})
	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)
}
