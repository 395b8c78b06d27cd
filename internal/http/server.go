// Package http provides the internal HTTP server for operators.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/voicerag/internal/hub"
)

// Server is the internal HTTP server.
type Server struct {
	echo   *echo.Echo
	hub    *hub.Hub
	logger *slog.Logger
}

// NewServer creates a new internal HTTP server.
func NewServer(h *hub.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(RequestLogger(logger))
	e.Use(middleware.Recover())

	s := &Server{
		echo:   e,
		hub:    h,
		logger: logger,
	}

	// Register routes
	e.GET("/health", s.handleHealth)
	e.GET("/internal/sessions", s.handleListSessions)
	e.GET("/internal/sessions/:id/grounding", s.handleGrounding)
	e.POST("/internal/sessions/:id/close", s.handleCloseSession)

	return s
}

// RequestLogger logs every request through slog.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				logger.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Debug("request", attrs...)
			return nil
		},
	})
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"sessions": s.hub.Count(),
	})
}

func (s *Server) handleListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": s.hub.Snapshot(),
	})
}

func (s *Server) handleGrounding(c echo.Context) error {
	sess, ok := s.hub.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": sess.ID(),
		"sources":    sess.Grounding(),
	})
}

// CloseRequest is the optional body of POST /internal/sessions/:id/close.
type CloseRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCloseSession(c echo.Context) error {
	id := c.Param("id")
	sess, ok := s.hub.Get(id)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	var req CloseRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
	}
	if req.Reason == "" {
		req.Reason = "closed by operator"
	}

	sess.Close(websocket.CloseNormalClosure, req.Reason)
	s.logger.Info("session closed by operator", "session_id", id, "reason", req.Reason)
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
