package ws

import (
	"encoding/json"
	"net/http"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/caretrack/caretrack/internal/platform/auth"
	"github.com/caretrack/caretrack/internal/platform/metrics"
)

const (
	// EventTypeNotification is the frame type for pushed notifications.
	EventTypeNotification = "enterprise_notification"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxMessageSize = 4096
)

// authMessage is the first frame a client must send after the upgrade.
type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Gateway handles HTTP-to-WebSocket upgrades and the in-band auth handshake.
// Connections start anonymous: the client must send an auth frame carrying a
// bearer token within the configured timeout or the connection is closed
// with a policy violation.
type Gateway struct {
	registry    *Registry
	verifier    *auth.Verifier
	authTimeout time.Duration
	logger      zerolog.Logger
}

// NewGateway creates a Gateway bound to the given registry and token verifier.
func NewGateway(registry *Registry, verifier *auth.Verifier, authTimeout time.Duration, logger zerolog.Logger) *Gateway {
	return &Gateway{
		registry:    registry,
		verifier:    verifier,
		authTimeout: authTimeout,
		logger:      logger.With().Str("component", "ws").Logger(),
	}
}

// RegisterRoutes registers the WebSocket endpoint on the provided Echo instance.
func (g *Gateway) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/notifications", g.HandleConnect)
}

// HandleConnect upgrades the HTTP connection, runs the auth handshake, and
// on success registers the session and starts the read/write pumps.
func (g *Gateway) HandleConnect(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	go g.serve(&gorillaConnAdapter{conn})
	return nil
}

// serve runs the handshake and session lifecycle for one connection.
func (g *Gateway) serve(conn Conn) {
	userID, err := g.handshake(conn)
	if err != nil {
		g.logger.Debug().Err(err).Msg("websocket handshake failed")
		metrics.RecordWSRejection("auth_failed")
		g.closeWithPolicyViolation(conn, "authentication required")
		return
	}

	client := &Client{
		UserID: userID,
		Send:   make(chan []byte, 256),
		conn:   conn,
	}

	if err := g.registry.Register(client); err != nil {
		// Single-session policy: the first connection survives, the new
		// handshake is rejected.
		g.logger.Info().Str("user_id", userID).Msg("rejecting duplicate websocket session")
		metrics.RecordWSRejection("duplicate_session")
		g.closeWithPolicyViolation(conn, "session already active")
		return
	}

	g.logger.Info().Str("user_id", userID).Msg("websocket session established")

	ack, _ := json.Marshal(Event{Type: "auth_success", Timestamp: time.Now().UTC()})
	select {
	case client.Send <- ack:
	default:
	}

	go g.writePump(client)
	go g.readPump(client)
}

// handshake reads frames until a valid auth message arrives or the auth
// deadline passes, and returns the authenticated user id.
func (g *Gateway) handshake(conn Conn) (string, error) {
	deadline := time.Now().Add(g.authTimeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return "", err
		}

		var msg authMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Ignore malformed frames; the deadline still applies.
		}
		if msg.Type != "auth" {
			continue
		}

		claims, err := g.verifier.Verify(msg.Token)
		if err != nil {
			return "", err
		}
		return claims.Subject, nil
	}
}

// readPump drains inbound frames so control messages are processed and
// tears down the session when the peer goes away.
func (g *Gateway) readPump(client *Client) {
	defer func() {
		g.registry.Unregister(client)
		client.conn.Close()
	}()

	if err := client.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	// Pongs answering the write pump's pings extend the read deadline, so
	// an idle but responsive client stays connected.
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, _, err := client.conn.ReadMessage()
		if err != nil {
			break
		}
		// Inbound frames reset the read deadline; payloads are ignored.
		if err := client.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			break
		}
	}
}

// writePump writes queued events to the connection and keeps it alive with
// periodic pings.
func (g *Gateway) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			if !ok {
				client.conn.WriteMessage(gorillawebsocket.CloseMessage, gorillawebsocket.FormatCloseMessage(gorillawebsocket.CloseNormalClosure, ""))
				return
			}
			if err := client.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeWithPolicyViolation sends a 1008 close frame and closes the connection.
func (g *Gateway) closeWithPolicyViolation(conn Conn, reason string) {
	frame := gorillawebsocket.FormatCloseMessage(gorillawebsocket.ClosePolicyViolation, reason)
	conn.WriteMessage(gorillawebsocket.CloseMessage, frame)
	conn.Close()
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy the Conn interface.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	a.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) SetReadDeadline(t time.Time) error {
	a.conn.SetReadLimit(maxMessageSize)
	return a.conn.SetReadDeadline(t)
}

func (a *gorillaConnAdapter) SetPongHandler(h func(appData string) error) {
	a.conn.SetPongHandler(h)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
