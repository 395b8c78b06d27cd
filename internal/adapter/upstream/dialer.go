// Package upstream opens realtime connections to the Azure OpenAI model service.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/voicerag/internal/adapter/credential"
	"github.com/xiaot623/voicerag/internal/domain"
)

// Config identifies the realtime deployment.
type Config struct {
	Endpoint         string
	Deployment       string
	APIVersion       string
	HandshakeTimeout time.Duration
}

// Dialer opens one upstream connection per session.
type Dialer struct {
	cfg    Config
	cred   *credential.Credential
	dialer *websocket.Dialer
}

// NewDialer creates a dialer.
func NewDialer(cfg Config, cred *credential.Credential) (*Dialer, error) {
	if cfg.Endpoint == "" || cfg.Deployment == "" {
		return nil, fmt.Errorf("realtime endpoint and deployment are required")
	}
	if cred == nil {
		return nil, fmt.Errorf("credential is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-10-01-preview"
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if _, err := RealtimeURL(cfg); err != nil {
		return nil, err
	}
	return &Dialer{
		cfg:  cfg,
		cred: cred,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}, nil
}

// RealtimeURL builds the websocket URL for the deployment.
func RealtimeURL(cfg Config) (string, error) {
	u, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid realtime endpoint: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid realtime endpoint scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/openai/realtime"
	q := url.Values{}
	q.Set("api-version", cfg.APIVersion)
	q.Set("deployment", cfg.Deployment)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial connects to the model service.
func (d *Dialer) Dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := RealtimeURL(d.cfg)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if err := d.cred.Apply(ctx, header); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	conn, resp, err := d.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, fmt.Errorf("%w: status %d", domain.ErrUnauthorized, resp.StatusCode)
			}
			return nil, fmt.Errorf("%w: status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return conn, nil
}
