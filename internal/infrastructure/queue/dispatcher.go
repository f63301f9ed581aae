package queue

import (
	"context"
	"hash/fnv"

	"github.com/rs/zerolog"

	"github.com/dtsoden/pmo-sub002/internal/core/domain"
	"github.com/dtsoden/pmo-sub002/internal/core/ports"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

// Dispatcher decouples event publication from the mutation path: Publish
// hands the event to a fixed set of workers sharded by user ID, which
// forward it to the sinks. Sharding on the owner guarantees per-user publish
// order while different users' events flow in parallel.
type Dispatcher struct {
	workers []chan domain.Event
	sinks   []ports.EventBus
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers feeding
// the given sinks in order. If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, log zerolog.Logger, sinks ...ports.EventBus) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan domain.Event, numWorkers),
		sinks:   sinks,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.Event, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Publish sends an event to the worker responsible for its owner. When the
// shard's buffer is full the call blocks until the worker drains it, which
// backpressures the mutation path instead of opening a silent gap in the
// owner's event stream.
func (d *Dispatcher) Publish(event domain.Event) {
	d.workers[d.shardIndex(event.UserID)] <- event
}

// shardIndex maps a user ID deterministically to a worker index.
func (d *Dispatcher) shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32()) % len(d.workers)
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			for _, sink := range d.sinks {
				sink.Publish(event)
			}
			d.log.Trace().
				Str("user_id", event.UserID).
				Str("topic", string(event.Topic)).
				Int("worker_id", id).
				Msg("event dispatched")
		}
	}
}
