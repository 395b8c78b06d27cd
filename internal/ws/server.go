// Package ws provides the public WebSocket front door for voice clients.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/voicerag/internal/adapter/search"
	"github.com/xiaot623/voicerag/internal/config"
	"github.com/xiaot623/voicerag/internal/hub"
	"github.com/xiaot623/voicerag/internal/relay"
	"github.com/xiaot623/voicerag/internal/tools"
	"github.com/xiaot623/voicerag/internal/tools/rag"
)

// Deps are the process-wide collaborators shared by all sessions.
type Deps struct {
	Dialer   relay.Dialer
	Searcher search.Searcher
	Policy   relay.PolicyEvaluator
	Redactor *relay.Redactor
	Logger   *slog.Logger
}

// Server handles WebSocket connections.
type Server struct {
	ctx      context.Context
	cfg      *config.Config
	hub      *hub.Hub
	deps     Deps
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server. Sessions run under ctx.
func NewServer(ctx context.Context, cfg *config.Config, h *hub.Hub, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ctx:    ctx,
		cfg:    cfg,
		hub:    h,
		deps:   deps,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Register mounts /realtime and the static frontend.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/realtime", s.HandleWebSocket)
	if s.cfg.StaticDir == "" {
		return
	}
	if _, err := os.Stat(s.cfg.StaticDir); err != nil {
		s.logger.Warn("static directory not found, frontend disabled", "dir", s.cfg.StaticDir)
		return
	}
	e.File("/", filepath.Join(s.cfg.StaticDir, "index.html"))
	e.Static("/", s.cfg.StaticDir)
}

// HandleWebSocket upgrades the connection and starts a relay session for it.
func (s *Server) HandleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", "error", err, "remote", c.RealIP())
		return err
	}

	sess, err := s.newSession(conn)
	if err != nil {
		s.logger.Error("failed to create session", "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session setup failed"), deadline())
		conn.Close()
		return nil
	}

	s.hub.Register(sess)
	go func() {
		defer s.hub.Unregister(sess)
		if err := sess.Run(s.ctx); err != nil {
			s.logger.Warn("session ended with error", "session_id", sess.ID(), "error", err)
		}
	}()
	return nil
}

// newSession wires a fresh tool registry and grounding ledger for one connection.
func (s *Server) newSession(conn *websocket.Conn) (*relay.Session, error) {
	registry := tools.NewRegistry(s.cfg.ToolTimeout)
	ledger := rag.NewLedger()
	if err := rag.Attach(registry, s.deps.Searcher, ledger, rag.Options{
		Top:    s.cfg.SearchTopK,
		Vector: s.cfg.UseVectorQuery,
		Logger: s.logger,
	}); err != nil {
		return nil, err
	}

	return relay.NewSession(conn, relay.Deps{
		Dialer:   s.deps.Dialer,
		Registry: registry,
		Ledger:   ledger,
		Policy:   s.deps.Policy,
		Redactor: s.deps.Redactor,
		Logger:   s.logger,
	}, relay.Options{
		Instructions:   s.cfg.SystemPrompt,
		Voice:          s.cfg.Voice,
		PingInterval:   s.cfg.PingInterval,
		WriteTimeout:   s.cfg.WriteTimeout,
		ReadTimeout:    s.cfg.ReadTimeout,
		MaxMessageSize: s.cfg.MaxMessageSize,
	})
}

func deadline() time.Time {
	return time.Now().Add(time.Second)
}
