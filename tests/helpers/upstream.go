package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/voicerag/internal/adapter/credential"
	"github.com/xiaot623/voicerag/internal/adapter/upstream"
)

// MockUpstream is a scripted realtime model endpoint.
type MockUpstream struct {
	Server   *httptest.Server
	Received chan map[string]any

	mu         sync.Mutex
	rejectWith int
	conns      chan *websocket.Conn
}

// NewMockUpstream starts a mock realtime endpoint that records every frame it receives.
func NewMockUpstream(t *testing.T) *MockUpstream {
	t.Helper()
	m := &MockUpstream{
		Received: make(chan map[string]any, 256),
		conns:    make(chan *websocket.Conn, 4),
	}
	upgrader := websocket.Upgrader{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		reject := m.rejectWith
		m.mu.Unlock()
		if reject != 0 {
			w.WriteHeader(reject)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			if json.Unmarshal(data, &msg) == nil {
				m.Received <- msg
			}
		}
	}))
	t.Cleanup(m.Server.Close)
	return m
}

// Reject makes the next handshakes fail with status.
func (m *MockUpstream) Reject(status int) {
	m.mu.Lock()
	m.rejectWith = status
	m.mu.Unlock()
}

// Dialer returns an upstream dialer pointed at the mock.
func (m *MockUpstream) Dialer(t *testing.T) *upstream.Dialer {
	t.Helper()
	d, err := upstream.NewDialer(upstream.Config{
		Endpoint:         m.Server.URL,
		Deployment:       "gpt-4o-realtime-preview",
		HandshakeTimeout: 2 * time.Second,
	}, credential.APIKey("test-key"))
	if err != nil {
		t.Fatalf("NewDialer: %v", err)
	}
	return d
}

// Conn waits for the relay to connect and returns the server side of the connection.
func (m *MockUpstream) Conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-m.conns:
		m.conns <- c
		return c
	case <-time.After(3 * time.Second):
		t.Fatalf("relay never connected upstream")
		return nil
	}
}

// Send writes a JSON event to the relay.
func (m *MockUpstream) Send(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := m.Conn(t).WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("upstream write: %v", err)
	}
}

// Next returns the next frame the relay sent upstream.
func (m *MockUpstream) Next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case msg := <-m.Received:
		return msg
	case <-time.After(3 * time.Second):
		t.Fatalf("no upstream message received")
		return nil
	}
}

// Drop closes the TCP connection without a close frame.
func (m *MockUpstream) Drop(t *testing.T) {
	t.Helper()
	_ = m.Conn(t).UnderlyingConn().Close()
}
