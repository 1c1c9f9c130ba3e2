package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vidfriends/watchparty/internal/access"
	"github.com/vidfriends/watchparty/internal/auth"
	"github.com/vidfriends/watchparty/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
)

// Handler upgrades authenticated requests to a live connection.
type Handler struct {
	Deps Deps
	// CheckOrigin decides which browser origins may open a socket; nil allows
	// same-origin requests only.
	CheckOrigin func(r *http.Request) bool
}

// ServeHTTP implements GET /api/v1/live.
func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity.Anonymous() {
		http.Error(w, access.ErrUnauthenticated.Error(), http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.CheckOrigin,
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.FromContext(r.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, span := logging.StartSpan(r.Context(), "live.conn")
	span.Annotate("user_id", identity.UserID)
	err = Serve(ctx, ws, h.Deps, identity)
	span.End(err)
}

// Serve runs a live connection over ws until either side closes it.
func Serve(ctx context.Context, ws *websocket.Conn, deps Deps, identity access.Identity) error {
	ctx = context.WithoutCancel(ctx)
	c := NewConn(ctx, deps, identity)
	defer c.Close()

	if err := c.Open(ctx); err != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"),
			time.Now().Add(writeWait))
		_ = ws.Close()
		return err
	}

	go c.writePump(ws)
	return c.readPump(ctx, ws)
}

func (c *Conn) readPump(ctx context.Context, ws *websocket.Conn) error {
	defer func() {
		c.Close()
		_ = ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	logger := logging.FromContext(ctx)
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("live connection closed unexpectedly", "error", err)
				return err
			}
			return nil
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.Emit(EventError, ErrorPayload{Status: http.StatusBadRequest, Error: "invalid command"})
			continue
		}
		_ = c.Handle(ctx, env)

		select {
		case <-c.closed:
			return nil
		default:
		}
	}
}

func (c *Conn) writePump(ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				logging.FromContext(c.ctx).Debug("write close frame", "error", err)
			}
			return
		}
	}
}
