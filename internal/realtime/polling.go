package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dtsoden/pmo-sub002/internal/api/metrics"
)

const (
	defaultPollWait   = 25 * time.Second
	defaultSessionTTL = 90 * time.Second
	reapInterval      = 30 * time.Second
	maxBatch          = 32
)

// pollSession is one client's room membership carried over repeated
// request/response cycles instead of a single long-lived connection.
type pollSession struct {
	id       string
	userID   string
	sub      *Subscription
	lastSeen time.Time
}

// PollHandler implements the transport downgrade path for network paths that
// cannot sustain WebSockets. The event contract is unchanged: the same
// envelopes, in the same per-user order. A session that expires or is
// evicted answers 410, telling the client to open a new session and resync,
// the same recovery as a WebSocket reconnect.
type PollHandler struct {
	hub        *Hub
	mu         sync.Mutex
	sessions   map[string]*pollSession
	wait       time.Duration
	sessionTTL time.Duration
	logger     zerolog.Logger
}

func NewPollHandler(hub *Hub, logger zerolog.Logger) *PollHandler {
	return &PollHandler{
		hub:        hub,
		sessions:   make(map[string]*pollSession),
		wait:       defaultPollWait,
		sessionTTL: defaultSessionTTL,
		logger:     logger,
	}
}

// StartReaper launches the background loop that expires idle sessions. It
// stops when ctx is cancelled.
func (h *PollHandler) StartReaper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.reap(time.Now())
			}
		}
	}()
}

func (h *PollHandler) reap(now time.Time) {
	h.mu.Lock()
	var expired []*pollSession
	for id, s := range h.sessions {
		if now.Sub(s.lastSeen) > h.sessionTTL {
			delete(h.sessions, id)
			expired = append(expired, s)
		}
	}
	h.mu.Unlock()

	for _, s := range expired {
		h.hub.Unsubscribe(s.sub)
		metrics.PollSessionsActive.Dec()
		h.logger.Debug().Str("user_id", s.userID).Str("session_id", s.id).Msg("poll session expired")
	}
}

type createSessionResponse struct {
	SessionID    string `json:"session_id"`
	PollWaitSecs int    `json:"poll_wait_seconds"`
}

type pollResponse struct {
	Events []Envelope `json:"events"`
}

// Create handles POST /v1/realtime/poll: opens a session and joins the
// caller's room.
func (h *PollHandler) Create(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	if userID == "" {
		metrics.RealtimeConnectsTotal.WithLabelValues("polling", "unauthorized").Inc()
		return echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}

	session := &pollSession{
		id:       uuid.NewString(),
		userID:   userID,
		sub:      h.hub.Subscribe(userID),
		lastSeen: time.Now(),
	}
	h.mu.Lock()
	h.sessions[session.id] = session
	h.mu.Unlock()

	metrics.RealtimeConnectsTotal.WithLabelValues("polling", "ok").Inc()
	metrics.PollSessionsActive.Inc()
	h.logger.Info().Str("user_id", userID).Str("session_id", session.id).Msg("poll session opened")

	return c.JSON(http.StatusCreated, createSessionResponse{
		SessionID:    session.id,
		PollWaitSecs: int(h.wait / time.Second),
	})
}

// Poll handles GET /v1/realtime/poll/:id: blocks until at least one event
// arrives or the wait elapses, then returns the batch accumulated so far.
func (h *PollHandler) Poll(c echo.Context) error {
	session, err := h.lookup(c)
	if err != nil {
		return err
	}

	events := make([]Envelope, 0, 4)
	timer := time.NewTimer(h.wait)
	defer timer.Stop()

	select {
	case ev := <-session.sub.Events():
		events = append(events, envelopeFrom(ev))
		// Drain whatever else is already queued, preserving order.
		for len(events) < maxBatch {
			select {
			case ev := <-session.sub.Events():
				events = append(events, envelopeFrom(ev))
			default:
				return c.JSON(http.StatusOK, pollResponse{Events: events})
			}
		}
	case <-session.sub.Done():
		h.drop(session)
		return echo.NewHTTPError(http.StatusGone, "session closed")
	case <-c.Request().Context().Done():
		return nil
	case <-timer.C:
	}

	return c.JSON(http.StatusOK, pollResponse{Events: events})
}

// Close handles DELETE /v1/realtime/poll/:id.
func (h *PollHandler) Close(c echo.Context) error {
	session, err := h.lookup(c)
	if err != nil {
		return err
	}
	h.drop(session)
	h.logger.Info().Str("user_id", session.userID).Str("session_id", session.id).Msg("poll session closed")
	return c.NoContent(http.StatusNoContent)
}

// lookup resolves the session and enforces that it belongs to the caller; a
// session id is not a capability, the JWT identity is.
func (h *PollHandler) lookup(c echo.Context) (*pollSession, error) {
	userID, _ := c.Get("user_id").(string)
	if userID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}

	h.mu.Lock()
	session, ok := h.sessions[c.Param("id")]
	if ok {
		session.lastSeen = time.Now()
	}
	h.mu.Unlock()

	if !ok || session.userID != userID {
		return nil, echo.NewHTTPError(http.StatusGone, "unknown session")
	}
	return session, nil
}

func (h *PollHandler) drop(session *pollSession) {
	h.mu.Lock()
	_, present := h.sessions[session.id]
	delete(h.sessions, session.id)
	h.mu.Unlock()

	if present {
		h.hub.Unsubscribe(session.sub)
		metrics.PollSessionsActive.Dec()
	}
}
