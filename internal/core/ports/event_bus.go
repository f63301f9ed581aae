package ports

import "github.com/dtsoden/pmo-sub002/internal/core/domain"

// EventBus fans a domain event out to every live connection subscribed on
// behalf of event.UserID, and to no others. Publish is fire-and-forget from
// the mutation's perspective: it never blocks on subscribers and never
// returns an error to the mutation path. Events published while a user has
// no subscribers are dropped; clients recover by full resync on reconnect.
type EventBus interface {
	Publish(event domain.Event)
}
