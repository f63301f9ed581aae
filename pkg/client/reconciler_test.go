package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var discardLogger = zerolog.Nop()

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// --- Test doubles ---

type stubAPI struct {
	mu        sync.Mutex
	timer     *Timer
	shortcuts []Shortcut

	timerFetches    int
	shortcutFetches int

	startErr error
	stopErr  error
}

func (s *stubAPI) ActiveTimer(ctx context.Context) (*Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timerFetches++
	return s.timer, nil
}

func (s *stubAPI) Shortcuts(ctx context.Context) ([]Shortcut, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shortcutFetches++
	return s.shortcuts, nil
}

func (s *stubAPI) StartTimer(ctx context.Context, in TimerInput) (*Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.timer = &Timer{ID: "srv-1", TaskID: in.TaskID, Description: in.Description, StartTime: time.Now()}
	return s.timer, nil
}

func (s *stubAPI) StopTimer(ctx context.Context) (*TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopErr != nil {
		return nil, s.stopErr
	}
	s.timer = nil
	return &TimeEntry{ID: "entry-1"}, nil
}

func (s *stubAPI) DiscardTimer(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer = nil
	return nil
}

func (s *stubAPI) UpdateTimer(ctx context.Context, in TimerInput) (*Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer.TaskID = in.TaskID
	s.timer.Description = in.Description
	return s.timer, nil
}

func (s *stubAPI) CreateShortcut(ctx context.Context, in ShortcutInput) (*Shortcut, error) {
	return &Shortcut{ID: "sc-new", Label: in.Label}, nil
}

func (s *stubAPI) UpdateShortcut(ctx context.Context, id string, in ShortcutInput) (*Shortcut, error) {
	return &Shortcut{ID: id, Label: in.Label}, nil
}

func (s *stubAPI) DeleteShortcut(ctx context.Context, id string) error { return nil }

func (s *stubAPI) ReorderShortcuts(ctx context.Context, ids []string) ([]Shortcut, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shortcuts, nil
}

func (s *stubAPI) fetchCounts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timerFetches, s.shortcutFetches
}

type stubTransport struct {
	events chan Envelope
	states chan ConnState
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		events: make(chan Envelope, 16),
		states: make(chan ConnState, 16),
	}
}

func (t *stubTransport) Connect() error           { return nil }
func (t *stubTransport) Events() <-chan Envelope  { return t.events }
func (t *stubTransport) States() <-chan ConnState { return t.states }
func (t *stubTransport) Close() error             { return nil }

func (t *stubTransport) push(topic string, v any) {
	raw, _ := json.Marshal(v)
	t.events <- Envelope{Topic: topic, Payload: raw}
}

type changeRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (c *changeRecorder) record(s Snapshot) {
	c.mu.Lock()
	c.snaps = append(c.snaps, s)
	c.mu.Unlock()
}

func (c *changeRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snaps)
}

// --- Tests ---

func TestReconciler_ResyncOnConnect(t *testing.T) {
	api := &stubAPI{
		timer:     &Timer{ID: "t1", TaskID: "task-1", StartTime: time.Now()},
		shortcuts: []Shortcut{{ID: "s1", Label: "Standup"}, {ID: "s2", Label: "Review"}},
	}
	transport := newStubTransport()
	rec := NewReconciler(api, transport, discardLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	transport.states <- ConnState{Phase: PhaseConnected}

	waitFor(t, func() bool {
		snap := rec.Snapshot()
		return snap.Timer != nil && snap.Timer.ID == "t1" && len(snap.Shortcuts) == 2
	})
}

func TestReconciler_ReconnectOverwritesStaleState(t *testing.T) {
	// Timer stopped on another device while we were offline: the replica
	// still shows it running, the server says nothing is.
	api := &stubAPI{}
	transport := newStubTransport()
	rec := NewReconciler(api, transport, discardLogger)
	rec.timer = &Timer{ID: "stale", StartTime: time.Now()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	transport.states <- ConnState{Phase: PhaseDisconnected, Err: errors.New("stream lost")}
	transport.states <- ConnState{Phase: PhaseConnected}

	waitFor(t, func() bool { return rec.Snapshot().Timer == nil })
}

func TestReconciler_TimerEventsIdempotent(t *testing.T) {
	api := &stubAPI{}
	transport := newStubTransport()
	rec := NewReconciler(api, transport, discardLogger)

	changes := &changeRecorder{}
	rec.OnChange(changes.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	started := Timer{ID: "t1", TaskID: "task-1", StartTime: time.Now().UTC()}
	transport.push(TopicTimerStarted, started)
	transport.push(TopicTimerStarted, started) // duplicate delivery

	waitFor(t, func() bool {
		snap := rec.Snapshot()
		return snap.Timer != nil && snap.Timer.ID == "t1"
	})
	if got := changes.count(); got != 1 {
		t.Fatalf("expected 1 change notification for duplicate events, got %d", got)
	}

	transport.push(TopicTimerStopped, nil)
	transport.push(TopicTimerStopped, nil)

	waitFor(t, func() bool { return rec.Snapshot().Timer == nil })
	if got := changes.count(); got != 2 {
		t.Fatalf("expected 2 change notifications, got %d", got)
	}
}

func TestReconciler_ShortcutsChangedTriggersRefetch(t *testing.T) {
	api := &stubAPI{shortcuts: []Shortcut{{ID: "s1", Label: "Old"}}}
	transport := newStubTransport()
	rec := NewReconciler(api, transport, discardLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	api.mu.Lock()
	api.shortcuts = []Shortcut{{ID: "s1", Label: "Old"}, {ID: "s2", Label: "New"}}
	api.mu.Unlock()

	// Payload carries only the delta; the reconciler must refetch the list.
	transport.push(TopicShortcutsChanged, map[string]any{"shortcut": map[string]any{"id": "s2"}})

	waitFor(t, func() bool { return len(rec.Snapshot().Shortcuts) == 2 })
}

func TestReconciler_MalformedPayloadKeepsState(t *testing.T) {
	api := &stubAPI{}
	transport := newStubTransport()
	rec := NewReconciler(api, transport, discardLogger)
	rec.timer = &Timer{ID: "t1"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	transport.events <- Envelope{Topic: TopicTimerStarted, Payload: json.RawMessage(`{not json`)}
	transport.push(TopicTimerUpdated, Timer{ID: "t2"})

	waitFor(t, func() bool {
		snap := rec.Snapshot()
		return snap.Timer != nil && snap.Timer.ID == "t2"
	})
}

func TestReconciler_OptimisticStartRollsBackOnConflict(t *testing.T) {
	api := &stubAPI{startErr: ErrConflict}
	rec := NewReconciler(api, newStubTransport(), discardLogger)

	if _, err := rec.StartTimer(context.Background(), TimerInput{TaskID: "task-1"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if rec.Snapshot().Timer != nil {
		t.Fatal("expected optimistic timer to be rolled back")
	}
}

func TestReconciler_OptimisticStopRollsBackOnFailure(t *testing.T) {
	running := &Timer{ID: "t1", StartTime: time.Now()}
	api := &stubAPI{timer: running, stopErr: ErrNotFound}
	rec := NewReconciler(api, newStubTransport(), discardLogger)
	rec.timer = running

	if _, err := rec.StopTimer(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if snap := rec.Snapshot(); snap.Timer == nil || snap.Timer.ID != "t1" {
		t.Fatal("expected timer restored after failed stop")
	}
}

func TestReconciler_UnknownOutcomeResyncsInsteadOfRollback(t *testing.T) {
	// Server actually applied the stop, the response was just lost. The
	// resync must adopt the server's view, not restore the old timer.
	api := &stubAPI{stopErr: ErrUnknownOutcome}
	rec := NewReconciler(api, newStubTransport(), discardLogger)
	rec.timer = &Timer{ID: "t1", StartTime: time.Now()}

	if _, err := rec.StopTimer(context.Background()); !errors.Is(err, ErrUnknownOutcome) {
		t.Fatalf("expected ErrUnknownOutcome, got %v", err)
	}
	if rec.Snapshot().Timer != nil {
		t.Fatal("expected replica to follow server state after indeterminate stop")
	}
	if fetches, _ := api.fetchCounts(); fetches == 0 {
		t.Fatal("expected a resync fetch after indeterminate outcome")
	}
}

func TestReconciler_ReorderAppliesOptimistically(t *testing.T) {
	api := &stubAPI{shortcuts: []Shortcut{{ID: "s2"}, {ID: "s1"}}}
	rec := NewReconciler(api, newStubTransport(), discardLogger)
	rec.shortcuts = []Shortcut{{ID: "s1"}, {ID: "s2"}}

	changes := &changeRecorder{}
	rec.OnChange(changes.record)

	if err := rec.ReorderShortcuts(context.Background(), []string{"s2", "s1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := rec.Snapshot()
	if len(snap.Shortcuts) != 2 || snap.Shortcuts[0].ID != "s2" {
		t.Fatalf("unexpected order: %+v", snap.Shortcuts)
	}
	if changes.count() == 0 {
		t.Fatal("expected an immediate optimistic notification")
	}
}
