package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Snapshot is an immutable view of the local replica.
type Snapshot struct {
	Timer     *Timer
	Shortcuts []Shortcut
}

// Reconciler keeps a local replica of the caller's server-side state
// converged with the server. Events mutate the replica incrementally; every
// transport (re)connect triggers a full resync that overwrites the replica
// unconditionally, so missed events can never leave it permanently stale.
//
// Mutations apply optimistically: the replica changes immediately, then the
// server call confirms it. A definitive failure rolls the replica back; an
// indeterminate one (ErrUnknownOutcome) resyncs instead, because the server
// may or may not have applied the mutation.
type Reconciler struct {
	api       API
	transport Transport
	logger    zerolog.Logger

	mu        sync.Mutex
	timer     *Timer
	shortcuts []Shortcut
	onChange  []func(Snapshot)
}

func NewReconciler(api API, transport Transport, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		api:       api,
		transport: transport,
		logger:    logger,
	}
}

// OnChange registers fn to be called after every observable replica change.
// Register before Run; callbacks run on the reconciler's goroutine and must
// not block.
func (r *Reconciler) OnChange(fn func(Snapshot)) {
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}

// Snapshot returns a copy of the current replica.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() Snapshot {
	s := Snapshot{Shortcuts: make([]Shortcut, len(r.shortcuts))}
	copy(s.Shortcuts, r.shortcuts)
	if r.timer != nil {
		t := *r.timer
		s.Timer = &t
	}
	return s
}

// Run connects the transport and processes its streams until ctx is
// cancelled or the transport stops permanently. A permanent transport stop
// is returned as its terminal error.
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.transport.Connect(); err != nil {
		return err
	}
	defer r.transport.Close()

	events := r.transport.Events()
	states := r.transport.States()
	var terminal error

	for events != nil || states != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case s, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			switch s.Phase {
			case PhaseConnected:
				r.logger.Info().Msg("transport connected, resyncing")
				r.resync(ctx)
			case PhaseDisconnected:
				r.logger.Warn().Err(s.Err).Bool("terminal", s.Terminal).Msg("transport disconnected")
				if s.Terminal {
					terminal = s.Err
				}
			}

		case env, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.apply(ctx, env)
		}
	}
	if terminal == nil {
		terminal = errors.New("client: transport stopped")
	}
	return terminal
}

// resync replaces the replica with the server's current state. On fetch
// failure the last known replica is kept; the next reconnect retries.
func (r *Reconciler) resync(ctx context.Context) {
	timer, err := r.api.ActiveTimer(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("resync: fetch active timer failed, keeping last known state")
		return
	}
	shortcuts, err := r.api.Shortcuts(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("resync: fetch shortcuts failed, keeping last known state")
		return
	}

	r.mu.Lock()
	r.timer = timer
	r.shortcuts = shortcuts
	r.notifyLocked()
	r.mu.Unlock()
}

// apply folds one event into the replica. Events are idempotent: applying
// the same one twice leaves the replica unchanged and fires no extra
// notification.
func (r *Reconciler) apply(ctx context.Context, env Envelope) {
	switch env.Topic {
	case TopicTimerStarted, TopicTimerUpdated:
		var t Timer
		if err := json.Unmarshal(env.Payload, &t); err != nil {
			r.logger.Error().Err(err).Str("topic", env.Topic).Msg("malformed event payload")
			return
		}
		r.setTimer(&t)

	case TopicTimerStopped, TopicTimerDiscarded:
		r.setTimer(nil)

	case TopicShortcutsChanged:
		// The payload only describes one delta; the list order may have
		// changed too, so refetch the whole list.
		shortcuts, err := r.api.Shortcuts(ctx)
		if err != nil {
			r.logger.Error().Err(err).Msg("refetch shortcuts failed, keeping last known list")
			return
		}
		r.setShortcuts(shortcuts)

	default:
		r.logger.Debug().Str("topic", env.Topic).Msg("ignoring unknown event topic")
	}
}

func (r *Reconciler) setTimer(t *Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if timerEqual(r.timer, t) {
		return
	}
	r.timer = t
	r.notifyLocked()
}

func (r *Reconciler) setShortcuts(s []Shortcut) {
	r.mu.Lock()
	r.shortcuts = s
	r.notifyLocked()
	r.mu.Unlock()
}

func (r *Reconciler) notifyLocked() {
	snap := r.snapshotLocked()
	for _, fn := range r.onChange {
		fn(snap)
	}
}

func timerEqual(a, b *Timer) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID &&
		a.TaskID == b.TaskID &&
		a.Description == b.Description &&
		a.StartTime.Equal(b.StartTime)
}

// --- Optimistic mutations ---

// StartTimer starts a timer for the caller. The replica shows the running
// timer immediately; the server response then replaces the provisional one.
func (r *Reconciler) StartTimer(ctx context.Context, in TimerInput) (*Timer, error) {
	r.mu.Lock()
	prev := r.timer
	provisional := &Timer{TaskID: in.TaskID, Description: in.Description}
	r.timer = provisional
	r.notifyLocked()
	r.mu.Unlock()

	timer, err := r.api.StartTimer(ctx, in)
	if err != nil {
		r.settleFailure(ctx, err, func() { r.timer = prev })
		return nil, err
	}
	r.setTimer(timer)
	return timer, nil
}

// StopTimer stops the running timer and returns the completed entry.
func (r *Reconciler) StopTimer(ctx context.Context) (*TimeEntry, error) {
	r.mu.Lock()
	prev := r.timer
	r.timer = nil
	r.notifyLocked()
	r.mu.Unlock()

	entry, err := r.api.StopTimer(ctx)
	if err != nil {
		r.settleFailure(ctx, err, func() { r.timer = prev })
		return nil, err
	}
	return entry, nil
}

// DiscardTimer abandons the running timer without recording an entry.
func (r *Reconciler) DiscardTimer(ctx context.Context) error {
	r.mu.Lock()
	prev := r.timer
	r.timer = nil
	r.notifyLocked()
	r.mu.Unlock()

	if err := r.api.DiscardTimer(ctx); err != nil {
		r.settleFailure(ctx, err, func() { r.timer = prev })
		return err
	}
	return nil
}

// UpdateTimer edits the running timer's task or description in place.
func (r *Reconciler) UpdateTimer(ctx context.Context, in TimerInput) (*Timer, error) {
	r.mu.Lock()
	prev := r.timer
	if r.timer != nil {
		edited := *r.timer
		edited.TaskID = in.TaskID
		edited.Description = in.Description
		r.timer = &edited
		r.notifyLocked()
	}
	r.mu.Unlock()

	timer, err := r.api.UpdateTimer(ctx, in)
	if err != nil {
		r.settleFailure(ctx, err, func() { r.timer = prev })
		return nil, err
	}
	r.setTimer(timer)
	return timer, nil
}

// CreateShortcut appends a shortcut to the caller's list.
func (r *Reconciler) CreateShortcut(ctx context.Context, in ShortcutInput) (*Shortcut, error) {
	r.mu.Lock()
	prev := r.shortcuts
	provisional := Shortcut{TaskID: in.TaskID, Label: in.Label, Color: in.Color, Icon: in.Icon, Group: in.Group}
	r.shortcuts = append(append([]Shortcut{}, prev...), provisional)
	r.notifyLocked()
	r.mu.Unlock()

	shortcut, err := r.api.CreateShortcut(ctx, in)
	if err != nil {
		r.settleFailure(ctx, err, func() { r.shortcuts = prev })
		return nil, err
	}
	return shortcut, nil
}

// DeleteShortcut removes a shortcut from the caller's list.
func (r *Reconciler) DeleteShortcut(ctx context.Context, id string) error {
	r.mu.Lock()
	prev := r.shortcuts
	trimmed := make([]Shortcut, 0, len(prev))
	for _, s := range prev {
		if s.ID != id {
			trimmed = append(trimmed, s)
		}
	}
	r.shortcuts = trimmed
	r.notifyLocked()
	r.mu.Unlock()

	if err := r.api.DeleteShortcut(ctx, id); err != nil {
		r.settleFailure(ctx, err, func() { r.shortcuts = prev })
		return err
	}
	return nil
}

// ReorderShortcuts applies the caller's new ordering, given as the full set
// of shortcut ids.
func (r *Reconciler) ReorderShortcuts(ctx context.Context, ids []string) error {
	r.mu.Lock()
	prev := r.shortcuts
	byID := make(map[string]Shortcut, len(prev))
	for _, s := range prev {
		byID[s.ID] = s
	}
	reordered := make([]Shortcut, 0, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			reordered = append(reordered, s)
		}
	}
	r.shortcuts = reordered
	r.notifyLocked()
	r.mu.Unlock()

	shortcuts, err := r.api.ReorderShortcuts(ctx, ids)
	if err != nil {
		r.settleFailure(ctx, err, func() { r.shortcuts = prev })
		return err
	}
	r.setShortcuts(shortcuts)
	return nil
}

// UpdateShortcut edits a shortcut's label or appearance in place.
func (r *Reconciler) UpdateShortcut(ctx context.Context, id string, in ShortcutInput) (*Shortcut, error) {
	r.mu.Lock()
	prev := r.shortcuts
	edited := make([]Shortcut, len(prev))
	copy(edited, prev)
	for i := range edited {
		if edited[i].ID == id {
			edited[i].TaskID = in.TaskID
			edited[i].Label = in.Label
			edited[i].Color = in.Color
			edited[i].Icon = in.Icon
			edited[i].Group = in.Group
		}
	}
	r.shortcuts = edited
	r.notifyLocked()
	r.mu.Unlock()

	shortcut, err := r.api.UpdateShortcut(ctx, id, in)
	if err != nil {
		r.settleFailure(ctx, err, func() { r.shortcuts = prev })
		return nil, err
	}
	return shortcut, nil
}

// settleFailure resolves a failed optimistic mutation. A definitive failure
// rolls the replica back; an indeterminate one resyncs from the server,
// which is the only authority on whether the mutation landed.
func (r *Reconciler) settleFailure(ctx context.Context, err error, rollback func()) {
	if errors.Is(err, ErrUnknownOutcome) {
		r.logger.Warn().Err(err).Msg("mutation outcome unknown, resyncing")
		// The mutation's context may already be spent; resync on a
		// fresh one.
		resyncCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		r.resync(resyncCtx)
		return
	}
	r.mu.Lock()
	rollback()
	r.notifyLocked()
	r.mu.Unlock()
}
