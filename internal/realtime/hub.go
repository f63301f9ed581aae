// Package realtime implements the per-user event fan-out and the transports
// that carry it: a WebSocket channel and a long-polling fallback. Both deliver
// the same {topic, payload} envelopes in publish order.
package realtime

import (
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dtsoden/pmo-sub002/internal/api/metrics"
	"github.com/dtsoden/pmo-sub002/internal/core/domain"
)

const subscriptionBuffer = 64

// Subscription is one connection's membership in its owner's room. Events
// arrive on Events() in publish order. Done() closes when the hub evicts the
// subscription (slow consumer) or Close is called; the owning transport must
// then tear the connection down so the client reconnects and resyncs.
type Subscription struct {
	id     int64
	userID string
	events chan domain.Event
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) UserID() string { return s.userID }

func (s *Subscription) Events() <-chan domain.Event { return s.events }

func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) cancel() {
	s.once.Do(func() { close(s.done) })
}

// Hub routes domain events to exactly the subscriptions registered for the
// event's owner, in publish order. Room membership is derived solely from the
// authenticated identity passed to Subscribe, never from client input. There
// is no durable log: publishing to an empty room drops the event.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Subscription]struct{}
	nextID int64
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe joins the room of the given user and returns the membership.
// Call Unsubscribe when the connection closes.
func (h *Hub) Subscribe(userID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		userID: userID,
		events: make(chan domain.Event, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	room, ok := h.rooms[userID]
	if !ok {
		room = make(map[*Subscription]struct{})
		h.rooms[userID] = room
	}
	room[sub] = struct{}{}

	metrics.RealtimeSubscriptions.Inc()
	h.logger.Debug().Str("user_id", userID).Int64("subscription_id", sub.id).Msg("subscription joined")
	return sub
}

// Unsubscribe removes the membership and cancels it. Safe to call more than
// once, and safe on a subscription the hub already evicted.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if room, ok := h.rooms[sub.userID]; ok {
		if _, member := room[sub]; member {
			delete(room, sub)
			metrics.RealtimeSubscriptions.Dec()
			if len(room) == 0 {
				delete(h.rooms, sub.userID)
			}
		}
	}
	h.mu.Unlock()
	sub.cancel()
}

// Publish fans the event out to every subscription in the owner's room.
// Fire-and-forget: never blocks on a consumer. A subscription whose buffer is
// full is evicted rather than skipped, so a live consumer never observes a
// gap followed by more events.
func (h *Hub) Publish(event domain.Event) {
	h.mu.RLock()
	room := h.rooms[event.UserID]
	subs := make([]*Subscription, 0, len(room))
	for sub := range room {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	metrics.EventsPublishedTotal.WithLabelValues(string(event.Topic)).Inc()
	if len(subs) == 0 {
		metrics.EventsDroppedTotal.WithLabelValues(string(event.Topic)).Inc()
		return
	}

	var evicted []*Subscription
	for _, sub := range subs {
		select {
		case sub.events <- event:
		default:
			evicted = append(evicted, sub)
		}
	}
	for _, sub := range evicted {
		h.logger.Warn().
			Str("user_id", sub.userID).
			Int64("subscription_id", sub.id).
			Str("topic", string(event.Topic)).
			Msg("evicting slow subscription")
		h.Unsubscribe(sub)
	}
}

// RoomSize reports the number of live subscriptions for a user.
func (h *Hub) RoomSize(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// idString is used for connection-scoped log fields.
func (s *Subscription) idString() string {
	return strconv.FormatInt(s.id, 10)
}
