// Package relay runs one voice session: it owns the client connection and the
// upstream model connection and moves events between them with interception.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/voicerag/internal/domain"
	"github.com/xiaot623/voicerag/internal/policy"
	"github.com/xiaot623/voicerag/internal/protocol"
	"github.com/xiaot623/voicerag/internal/tools"
	"github.com/xiaot623/voicerag/internal/tools/rag"
)

const (
	sendBufferSize = 256
	closeGrace     = time.Second
)

// Dialer opens the upstream leg.
type Dialer interface {
	Dial(ctx context.Context) (*websocket.Conn, error)
}

// PolicyEvaluator decides what happens to a client event.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, event map[string]any) (policy.Decision, error)
}

// Deps are the collaborators of a session.
type Deps struct {
	Dialer   Dialer
	Registry *tools.Registry
	Ledger   *rag.Ledger
	Policy   PolicyEvaluator
	Redactor *Redactor
	Logger   *slog.Logger
}

// Options is the static configuration applied to the session.
type Options struct {
	Instructions   string
	Voice          string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
}

// Info is a snapshot of a session for operators.
type Info struct {
	ID           string              `json:"session_id"`
	State        domain.SessionState `json:"state"`
	StartedAt    time.Time           `json:"started_at"`
	ToolCalls    int64               `json:"tool_calls"`
	ToolFailures int64               `json:"tool_failures"`
	ToolTimeouts int64               `json:"tool_timeouts"`
	Grounding    int                 `json:"grounding"`
}

// Session relays one client connection to one upstream connection.
type Session struct {
	id        string
	client    *websocket.Conn
	upstream  *websocket.Conn
	deps      Deps
	opts      Options
	logger    *slog.Logger
	toolDefs  []protocol.ToolDefinition
	startedAt time.Time

	mu     sync.Mutex
	state  domain.SessionState
	cause  *closeCause
	cancel context.CancelFunc

	toClient   chan []byte
	toUpstream chan []byte
	calls      *assembler
	toolWG     sync.WaitGroup
	readers    sync.WaitGroup

	toolCalls    atomic.Int64
	toolFailures atomic.Int64
	toolTimeouts atomic.Int64
}

// closeCause is the reason a session ended and the close code sent to the client.
type closeCause struct {
	code   int
	reason string
	err    error
}

func (c *closeCause) Error() string {
	if c.err != nil {
		return fmt.Sprintf("session closed (%d %s): %v", c.code, c.reason, c.err)
	}
	return fmt.Sprintf("session closed (%d %s)", c.code, c.reason)
}

func (c *closeCause) Unwrap() error {
	return c.err
}

// NewSession creates a session for an upgraded client connection.
func NewSession(client *websocket.Conn, deps Deps, opts Options) (*Session, error) {
	if client == nil {
		return nil, fmt.Errorf("client connection is required")
	}
	if deps.Dialer == nil || deps.Registry == nil || deps.Policy == nil {
		return nil, fmt.Errorf("dialer, registry and policy are required")
	}
	if deps.Ledger == nil {
		deps.Ledger = rag.NewLedger()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	id := "sess_" + uuid.New().String()[:8]

	deps.Registry.Freeze()
	return &Session{
		id:         id,
		client:     client,
		deps:       deps,
		opts:       opts,
		logger:     logger.With("session_id", id),
		toolDefs:   deps.Registry.Definitions(),
		startedAt:  time.Now(),
		state:      domain.SessionStateIdle,
		toClient:   make(chan []byte, sendBufferSize),
		toUpstream: make(chan []byte, sendBufferSize),
		calls:      newAssembler(),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	return Info{
		ID:           s.id,
		State:        s.State(),
		StartedAt:    s.startedAt,
		ToolCalls:    s.toolCalls.Load(),
		ToolFailures: s.toolFailures.Load(),
		ToolTimeouts: s.toolTimeouts.Load(),
		Grounding:    len(s.deps.Ledger.Records()),
	}
}

// Grounding returns the sources reported during the session.
func (s *Session) Grounding() []domain.GroundingRecord {
	return s.deps.Ledger.Records()
}

func (s *Session) setState(state domain.SessionState) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()
	s.logger.Debug("session state", "from", prev, "to", state)
}

// setCause records why the session ends. The first cause wins.
func (s *Session) setCause(code int, reason string, err error) *closeCause {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cause == nil {
		s.cause = &closeCause{code: code, reason: reason, err: err}
	}
	return s.cause
}

func (s *Session) closeCause() *closeCause {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Close ends the session with the given close code for the client.
func (s *Session) Close(code int, reason string) {
	s.setCause(code, reason, nil)
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run drives the session until either leg closes. It returns nil when the
// session ended normally and the failure otherwise.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != domain.SessionStateIdle {
		s.mu.Unlock()
		return fmt.Errorf("session %s already started", s.id)
	}
	s.state = domain.SessionStateConfiguring
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	s.logger.Info("session started")
	if err := s.bootstrap(ctx); err != nil {
		code, reason := bootstrapClose(err)
		cause := s.setCause(code, reason, err)
		s.logger.Error("session bootstrap failed", "error", err, "close_code", cause.code)
		s.closeClient(cause)
		if s.upstream != nil {
			s.upstream.Close()
		}
		s.setState(domain.SessionStateClosed)
		return cause.err
	}
	s.setState(domain.SessionStateRelaying)

	g, gctx := errgroup.WithContext(ctx)
	s.readers.Add(2)
	g.Go(func() error { return s.readClient(gctx) })
	g.Go(func() error { return s.readUpstream(gctx) })
	g.Go(func() error { return s.writeClient(gctx) })
	g.Go(func() error { return s.writeUpstream(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		s.shutdown()
		return nil
	})

	_ = g.Wait()
	s.toolWG.Wait()
	s.setState(domain.SessionStateClosed)

	cause := s.setCause(websocket.CloseGoingAway, "server shutdown", nil)
	s.logger.Info("session closed",
		"close_code", cause.code,
		"reason", cause.reason,
		"tool_calls", s.toolCalls.Load(),
		"grounding", len(s.deps.Ledger.Records()),
		"duration_ms", time.Since(s.startedAt).Milliseconds())
	return cause.err
}

func bootstrapClose(err error) (int, string) {
	if errors.Is(err, domain.ErrUnauthorized) {
		return websocket.ClosePolicyViolation, "upstream authorization failed"
	}
	return websocket.CloseInternalServerErr, "upstream unavailable"
}

// shutdown sends close frames on both legs, gives the readers a moment to see
// the peers' replies, then closes the connections.
func (s *Session) shutdown() {
	cause := s.closeCause()
	if cause == nil {
		cause = s.setCause(websocket.CloseGoingAway, "server shutdown", nil)
	}
	deadline := time.Now().Add(closeGrace)
	_ = s.client.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(cause.code, cause.reason), deadline)
	_ = s.upstream.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	done := make(chan struct{})
	go func() {
		s.readers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeGrace):
	}
	s.client.Close()
	s.upstream.Close()
}

func (s *Session) closeClient(cause *closeCause) {
	deadline := time.Now().Add(closeGrace)
	_ = s.client.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(cause.code, cause.reason), deadline)
	s.client.Close()
}

// sendClient queues a frame for the client writer.
func (s *Session) sendClient(ctx context.Context, data []byte) error {
	select {
	case s.toClient <- data:
		return nil
	case <-ctx.Done():
		return domain.ErrSessionClosed
	}
}

// sendUpstream queues a frame for the upstream writer.
func (s *Session) sendUpstream(ctx context.Context, data []byte) error {
	select {
	case s.toUpstream <- data:
		return nil
	case <-ctx.Done():
		return domain.ErrSessionClosed
	}
}
