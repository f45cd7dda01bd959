// Package ws provides real-time notification delivery over WebSockets.
// Each user holds at most one live session; pushes to users without a
// session are silently dropped because every notification is also
// persisted and readable over the REST surface.
package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/caretrack/caretrack/internal/platform/metrics"
)

// ErrAlreadyConnected is returned by Register when the user already has a
// live session. The existing session is kept and the new one must be closed
// by the caller.
var ErrAlreadyConnected = errors.New("ws: user already has an active session")

// Event represents a frame sent to WebSocket clients.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client represents a single authenticated WebSocket session.
type Client struct {
	UserID string
	Send   chan []byte
	conn   Conn
}

// Registry is the central session manager. It enforces the single-session
// policy: one live connection per user id. All operations are thread-safe
// via sync.RWMutex.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client // user id -> live session
}

// NewRegistry creates a Registry ready to manage sessions.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register adds a client session. If the user already has a live session,
// Register returns ErrAlreadyConnected and leaves the existing session
// untouched.
func (r *Registry) Register(client *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[client.UserID]; ok {
		return ErrAlreadyConnected
	}
	r.clients[client.UserID] = client
	metrics.RecordWSConnect()
	return nil
}

// Unregister removes a client session and closes its Send channel. It is a
// no-op when the registered session for the user is a different client, so
// a rejected duplicate cannot tear down the surviving session.
func (r *Registry) Unregister(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.clients[client.UserID]
	if !ok || current != client {
		return
	}
	delete(r.clients, client.UserID)
	close(client.Send)
	metrics.RecordWSDisconnect()
}

// Push sends an event to the user's live session. It reports whether the
// event was handed to a session; users without a session are skipped.
func (r *Registry) Push(userID string, event Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		return false
	}

	// The read lock is held through the send so Unregister cannot close
	// the channel between the lookup and the send.
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[userID]
	if !ok {
		return false
	}

	select {
	case client.Send <- data:
		return true
	default:
		// Client buffer full; skip to avoid blocking the pipeline.
		return false
	}
}

// IsConnected reports whether the user has a live session.
func (r *Registry) IsConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[userID]
	return ok
}

// ClientCount returns the number of live sessions.
func (r *Registry) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
