package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/voicerag/internal/adapter/credential"
	"github.com/xiaot623/voicerag/internal/domain"
)

func TestRealtimeURL(t *testing.T) {
	got, err := RealtimeURL(Config{
		Endpoint:   "https://detran.openai.azure.com/",
		Deployment: "gpt-4o-realtime-preview",
		APIVersion: "2024-10-01-preview",
	})
	require.NoError(t, err)
	assert.Equal(t, "wss://detran.openai.azure.com/openai/realtime?api-version=2024-10-01-preview&deployment=gpt-4o-realtime-preview", got)

	_, err = RealtimeURL(Config{Endpoint: "ftp://x"})
	assert.Error(t, err)
}

func TestDialSendsCredential(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/realtime", r.URL.Path)
		assert.Equal(t, "dep", r.URL.Query().Get("deployment"))
		if r.Header.Get("api-key") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	cfg := Config{Endpoint: srv.URL, Deployment: "dep"}

	d, err := NewDialer(cfg, credential.APIKey("good"))
	require.NoError(t, err)
	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	conn.Close()

	d, err = NewDialer(cfg, credential.APIKey("bad"))
	require.NoError(t, err)
	_, err = d.Dial(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestDialUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d, err := NewDialer(Config{Endpoint: url, Deployment: "dep"}, credential.APIKey("k"))
	require.NoError(t, err)
	_, err = d.Dial(context.Background())
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}
