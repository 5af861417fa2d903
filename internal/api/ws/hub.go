package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/callsim/internal/call"
)

// readLimit bounds one inbound frame. It leaves room for a maximum audio
// chunk after base64 and JSON framing.
const readLimit = 1 << 20

// maxCloseReason is the longest close reason a control frame can carry.
const maxCloseReason = 123

// CallServer runs a session lane over a connected channel.
type CallServer interface {
	Serve(ctx context.Context, sessionID uuid.UUID, ch call.Channel) error
}

// Hub accepts call WebSocket connections and hands them to the orchestrator.
type Hub struct {
	server         CallServer
	originPatterns []string
	writeTimeout   time.Duration
}

// NewHub creates a new WebSocket hub. originPatterns is passed to the
// handshake; an empty list allows only same-origin clients.
func NewHub(server CallServer, originPatterns []string, writeTimeout time.Duration) *Hub {
	return &Hub{server: server, originPatterns: originPatterns, writeTimeout: writeTimeout}
}

// ServeCall handles /ws/call/{sessionID}. The connection lives until the
// session lane returns.
func (h *Hub) ServeCall(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	ch := newConnChannel(conn, h.writeTimeout)
	if err := h.server.Serve(r.Context(), sessionID, ch); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("call session ended with error")
	}
	_ = ch.Close("session ended")
}

// connChannel adapts a WebSocket connection to call.Channel.
type connChannel struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

var _ call.Channel = (*connChannel)(nil)

func newConnChannel(conn *websocket.Conn, writeTimeout time.Duration) *connChannel {
	return &connChannel{conn: conn, writeTimeout: writeTimeout}
}

func (c *connChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Receive reads the next frame. A failed read leaves the connection unusable,
// so every read error other than cancellation is reported as closed.
func (c *connChannel) Receive(ctx context.Context) ([]byte, error) {
	if c.isClosed() {
		return nil, call.ErrChannelClosed
	}
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ws.connChannel.Receive: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ws.connChannel.Receive: %w: %w", call.ErrChannelClosed, err)
	}
	return data, nil
}

// Send writes msg as a JSON text frame. A failed write closes the
// connection, so write errors are reported as closed.
func (c *connChannel) Send(ctx context.Context, msg call.OutboundMessage) error {
	if c.isClosed() {
		return call.ErrChannelClosed
	}
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		return fmt.Errorf("ws.connChannel.Send: %w: %w", call.ErrChannelClosed, err)
	}
	return nil
}

// Close performs the closing handshake once. Later calls are no-ops.
func (c *connChannel) Close(reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	// A close frame from the peer racing ours still completes the handshake.
	if err := c.conn.Close(websocket.StatusNormalClosure, reason); err != nil && websocket.CloseStatus(err) == -1 {
		return fmt.Errorf("ws.connChannel.Close: %w", err)
	}
	return nil
}
