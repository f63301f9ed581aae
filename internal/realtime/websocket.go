package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dtsoden/pmo-sub002/internal/api/metrics"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
)

// WSHandler upgrades authenticated requests to a WebSocket connection and
// streams the owner's room events over it. Authentication happens once at
// handshake (the Auth middleware runs before the upgrade); the connection
// joins its owner's room immediately and leaves on disconnect.
type WSHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewWSHandler(hub *Hub, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Cross-origin is expected: the extension popup and background
			// connect from extension origins. The JWT is the access control.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Serve handles GET /v1/realtime/ws.
func (h *WSHandler) Serve(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	if userID == "" {
		metrics.RealtimeConnectsTotal.WithLabelValues("websocket", "unauthorized").Inc()
		return echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the handshake failure.
		return nil
	}
	metrics.RealtimeConnectsTotal.WithLabelValues("websocket", "ok").Inc()

	sub := h.hub.Subscribe(userID)
	log := h.logger.With().
		Str("user_id", userID).
		Str("subscription_id", sub.idString()).
		Logger()
	log.Info().Msg("websocket connected")

	go h.readPump(conn, sub)
	h.writePump(conn, sub, log)
	return nil
}

// readPump discards inbound frames (clients never send business data over
// the socket) and unsubscribes when the peer goes away, which terminates the
// write pump.
func (h *WSHandler) readPump(conn *websocket.Conn, sub *Subscription) {
	defer h.hub.Unsubscribe(sub)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, sub *Subscription, log zerolog.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		h.hub.Unsubscribe(sub)
		_ = conn.Close()
		log.Info().Msg("websocket disconnected")
	}()

	for {
		select {
		case ev := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(envelopeFrom(ev)); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sub.Done():
			// Evicted or unsubscribed: close so the client reconnects and
			// resyncs instead of silently missing events.
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription closed"))
			return
		}
	}
}
