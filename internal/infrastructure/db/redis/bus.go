package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dtsoden/pmo-sub002/internal/api/metrics"
	"github.com/dtsoden/pmo-sub002/internal/core/domain"
	"github.com/dtsoden/pmo-sub002/internal/core/ports"
)

const (
	eventsChannel  = "pmo:events"
	publishTimeout = 2 * time.Second
)

// relayMessage is the wire format on the Redis channel. Origin lets an
// instance skip its own publications, which it already fanned out locally.
type relayMessage struct {
	Origin string       `json:"origin"`
	Event  domain.Event `json:"event"`
}

// Bridge relays domain events between server instances over Redis pub/sub so
// that a user's connections land on any instance and still see every event.
// It implements ports.EventBus on the outbound side and re-injects inbound
// messages into the local bus (the hub). Delivery remains lossy by design:
// nothing is stored, clients recover via resync.
type Bridge struct {
	client *redis.Client
	local  ports.EventBus
	origin string
	log    zerolog.Logger
}

func NewBridge(client *redis.Client, local ports.EventBus, log zerolog.Logger) *Bridge {
	return &Bridge{
		client: client,
		local:  local,
		origin: uuid.NewString(),
		log:    log,
	}
}

// Publish forwards a locally-originated event to the shared channel.
// Fire-and-forget: a Redis hiccup costs remote deliveries, not the mutation.
func (b *Bridge) Publish(event domain.Event) {
	raw, err := json.Marshal(relayMessage{Origin: b.origin, Event: event})
	if err != nil {
		b.log.Error().Err(err).Str("topic", string(event.Topic)).Msg("failed to encode relay message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, eventsChannel, raw).Err(); err != nil {
		b.log.Warn().Err(err).Str("topic", string(event.Topic)).Msg("failed to relay event")
		return
	}
	metrics.EventsRelayedTotal.WithLabelValues("out").Inc()
}

// Run subscribes to the shared channel and re-injects remote events into the
// local bus. Blocks until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, eventsChannel)
	defer func() { _ = sub.Close() }()

	// Fail fast if the subscription cannot be established.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handleMessage([]byte(msg.Payload))
		}
	}
}

func (b *Bridge) handleMessage(raw []byte) {
	var m relayMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		b.log.Warn().Err(err).Msg("discarding malformed relay message")
		return
	}
	if m.Origin == b.origin {
		return
	}
	metrics.EventsRelayedTotal.WithLabelValues("in").Inc()
	b.local.Publish(m.Event)
}
