package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/voicerag/internal/adapter/credential"
	"github.com/xiaot623/voicerag/internal/adapter/search"
	"github.com/xiaot623/voicerag/internal/adapter/upstream"
	"github.com/xiaot623/voicerag/internal/config"
	internalhttp "github.com/xiaot623/voicerag/internal/http"
	"github.com/xiaot623/voicerag/internal/hub"
	"github.com/xiaot623/voicerag/internal/policy"
	"github.com/xiaot623/voicerag/internal/relay"
	"github.com/xiaot623/voicerag/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("relay stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting voice relay",
		"ws_port", cfg.WSPort,
		"http_port", cfg.HTTPPort,
		"deployment", cfg.OpenAIDeployment,
		"search_backend", cfg.SearchBackend,
	)

	entra := credential.EntraConfig{
		TenantID:      cfg.TenantID,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		AuthorityHost: cfg.AuthorityHost,
	}

	openaiCred, err := credential.FromConfig(ctx, cfg.OpenAIAPIKey, entra, credential.ScopeCognitiveServices)
	if err != nil {
		return fmt.Errorf("realtime credential: %w", err)
	}
	logger.Info("realtime credential ready", "kind", openaiCred.Kind())

	dialer, err := upstream.NewDialer(upstream.Config{
		Endpoint:         cfg.OpenAIEndpoint,
		Deployment:       cfg.OpenAIDeployment,
		APIVersion:       cfg.OpenAIAPIVersion,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}, openaiCred)
	if err != nil {
		return err
	}

	searcher, closeSearcher, err := newSearcher(ctx, cfg, entra, logger)
	if err != nil {
		return err
	}
	defer closeSearcher()

	engine, err := policy.NewEngineFromFile(ctx, cfg.ClientPolicyFile)
	if err != nil {
		return fmt.Errorf("client policy: %w", err)
	}

	redactor, err := relay.NewRedactor(cfg.RedactPatterns)
	if err != nil {
		return fmt.Errorf("redaction patterns: %w", err)
	}

	// The hub outlives the signal context so sessions can unregister during shutdown.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	sessionHub := hub.NewHub(logger)
	go sessionHub.Run(hubCtx)

	wsServer := ws.NewServer(hubCtx, cfg, sessionHub, ws.Deps{
		Dialer:   dialer,
		Searcher: searcher,
		Policy:   engine,
		Redactor: redactor,
		Logger:   logger,
	})

	wsEcho := echo.New()
	wsEcho.HideBanner = true
	wsEcho.HidePort = true
	wsEcho.Use(internalhttp.RequestLogger(logger))
	wsEcho.Use(middleware.Recover())
	wsServer.Register(wsEcho)

	httpServer := internalhttp.NewServer(sessionHub, logger)

	errCh := make(chan error, 2)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.WSPort)
		if err := wsEcho.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("websocket server: %w", err)
		}
	}()
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("internal http server: %w", err)
		}
	}()

	logger.Info("voice relay listening",
		"realtime", fmt.Sprintf(":%d/realtime", cfg.WSPort),
		"internal", fmt.Sprintf(":%d", cfg.HTTPPort),
	)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down voice relay")
	case serveErr = <-errCh:
		logger.Error("server failed, shutting down", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessionHub.CloseAll(1001, "server shutdown")
	if err := sessionHub.Wait(shutdownCtx); err != nil {
		logger.Warn("sessions still open at shutdown", "count", sessionHub.Count())
	}

	if err := wsEcho.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket server did not shut down cleanly", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("internal http server did not shut down cleanly", "error", err)
	}
	stopHub()

	logger.Info("voice relay stopped")
	return serveErr
}

func newSearcher(ctx context.Context, cfg *config.Config, entra credential.EntraConfig, logger *slog.Logger) (search.Searcher, func(), error) {
	switch cfg.SearchBackend {
	case config.SearchBackendSQLite:
		s, err := search.NewSQLiteSearcher(cfg.KBSQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if cfg.KBSeedFile != "" {
			n, err := s.SeedFile(ctx, cfg.KBSeedFile)
			if err != nil {
				s.Close()
				return nil, nil, err
			}
			logger.Info("knowledge base seeded", "documents", n, "file", cfg.KBSeedFile)
		}
		return s, func() { s.Close() }, nil

	default:
		cred, err := credential.FromConfig(ctx, cfg.SearchAPIKey, entra, credential.ScopeSearch)
		if err != nil {
			return nil, nil, fmt.Errorf("search credential: %w", err)
		}
		s, err := search.NewAzureSearcher(search.AzureConfig{
			Endpoint:              cfg.SearchEndpoint,
			Index:                 cfg.SearchIndex,
			SemanticConfiguration: cfg.SemanticConfiguration,
			Fields: search.Fields{
				Identifier: cfg.IdentifierField,
				Content:    cfg.ContentField,
				Embedding:  cfg.EmbeddingField,
				Title:      cfg.TitleField,
			},
			Timeout: cfg.SearchTimeout,
		}, cred.HTTPClient(&http.Client{Timeout: cfg.SearchTimeout}), logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
