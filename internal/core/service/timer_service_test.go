package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dtsoden/pmo-sub002/internal/core/domain"
	"github.com/dtsoden/pmo-sub002/internal/core/ports"
)

// ---------------------------------------------------------------------------
// In-memory stubs
// ---------------------------------------------------------------------------

type stubTimerRepo struct {
	mu       sync.Mutex
	byUser   map[string]*domain.ActiveTimer
	entries  []*domain.TimeEntry
	insertEr error
	deleteEr error
}

func newStubTimerRepo() *stubTimerRepo {
	return &stubTimerRepo{byUser: make(map[string]*domain.ActiveTimer)}
}

func (r *stubTimerRepo) Insert(_ context.Context, t *domain.ActiveTimer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertEr != nil {
		return r.insertEr
	}
	if _, exists := r.byUser[t.UserID]; exists {
		return domain.ErrTimerConflict
	}
	clone := *t
	r.byUser[t.UserID] = &clone
	return nil
}

func (r *stubTimerRepo) FindByUser(_ context.Context, userID string) (*domain.ActiveTimer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byUser[userID]
	if !ok {
		return nil, domain.ErrTimerNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *stubTimerRepo) Update(_ context.Context, t *domain.ActiveTimer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUser[t.UserID]; !ok {
		return domain.ErrTimerNotFound
	}
	clone := *t
	r.byUser[t.UserID] = &clone
	return nil
}

func (r *stubTimerRepo) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteEr != nil {
		return r.deleteEr
	}
	if _, ok := r.byUser[userID]; !ok {
		return domain.ErrTimerNotFound
	}
	delete(r.byUser, userID)
	return nil
}

func (r *stubTimerRepo) InsertEntry(_ context.Context, e *domain.TimeEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *e
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *stubTimerRepo) DeleteEntry(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.ID == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

type stubTaskRepo struct {
	known map[string]bool
}

func (r *stubTaskRepo) Exists(_ context.Context, taskID string) (bool, error) {
	return r.known[taskID], nil
}

// recordBus captures published events for assertions.
type recordBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordBus) Publish(event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordBus) all() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Event, len(b.events))
	copy(out, b.events)
	return out
}

var discardLogger = zerolog.Nop()

func newTimerFixture(tasks ...string) (*TimerService, *stubTimerRepo, *recordBus) {
	known := make(map[string]bool, len(tasks))
	for _, id := range tasks {
		known[id] = true
	}
	repo := newStubTimerRepo()
	bus := &recordBus{}
	svc := NewTimerService(repo, &stubTaskRepo{known: known}, bus, discardLogger)
	return svc, repo, bus
}

// ---------------------------------------------------------------------------
// Start
// ---------------------------------------------------------------------------

func TestTimerService_Start_Success(t *testing.T) {
	svc, repo, bus := newTimerFixture("task-1")

	timer, err := svc.Start(context.Background(), ports.StartTimerInput{
		UserID: "user-1", TaskID: "task-1", Description: "writing docs",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if timer.ID == "" {
		t.Error("timer ID must be set")
	}
	if timer.StartTime.IsZero() {
		t.Error("StartTime must be set")
	}
	if repo.byUser["user-1"] == nil {
		t.Fatal("timer must be stored")
	}

	events := bus.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Topic != domain.TopicTimerStarted {
		t.Errorf("expected topic %q, got %q", domain.TopicTimerStarted, events[0].Topic)
	}
	if events[0].UserID != "user-1" {
		t.Errorf("event must be scoped to the owner, got %q", events[0].UserID)
	}
	if payload, ok := events[0].Payload.(*domain.ActiveTimer); !ok || payload.ID != timer.ID {
		t.Error("timer-started must carry the full ActiveTimer")
	}
}

func TestTimerService_Start_Conflict(t *testing.T) {
	svc, _, bus := newTimerFixture()

	if _, err := svc.Start(context.Background(), ports.StartTimerInput{UserID: "user-1"}); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	_, err := svc.Start(context.Background(), ports.StartTimerInput{UserID: "user-1"})
	if err != domain.ErrTimerConflict {
		t.Fatalf("expected ErrTimerConflict, got %v", err)
	}
	if n := len(bus.all()); n != 1 {
		t.Errorf("conflict must not emit an event: got %d events", n)
	}
}

func TestTimerService_Start_UnknownTask(t *testing.T) {
	svc, repo, bus := newTimerFixture()

	_, err := svc.Start(context.Background(), ports.StartTimerInput{UserID: "user-1", TaskID: "ghost"})
	if err != domain.ErrTaskNotFound {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if len(repo.byUser) != 0 {
		t.Error("failed start must not store a timer")
	}
	if len(bus.all()) != 0 {
		t.Error("failed start must not emit an event")
	}
}

// Concurrent starts for the same user: exactly one wins, the rest get
// Conflict, and exactly one timer-started event is published.
func TestTimerService_Start_ConcurrentSingleton(t *testing.T) {
	svc, repo, bus := newTimerFixture()

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Start(context.Background(), ports.StartTimerInput{UserID: "user-1"})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		switch err {
		case nil:
			successes++
		case domain.ErrTimerConflict:
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("expected exactly 1 success, got %d", successes)
	}
	if conflicts != attempts-1 {
		t.Errorf("expected %d conflicts, got %d", attempts-1, conflicts)
	}
	if len(repo.byUser) != 1 {
		t.Errorf("expected 1 stored timer, got %d", len(repo.byUser))
	}
	if n := len(bus.all()); n != 1 {
		t.Errorf("expected exactly 1 timer-started event, got %d", n)
	}
}

func TestTimerService_Start_IndependentUsers(t *testing.T) {
	svc, repo, _ := newTimerFixture()

	if _, err := svc.Start(context.Background(), ports.StartTimerInput{UserID: "user-a"}); err != nil {
		t.Fatalf("start for user-a failed: %v", err)
	}
	if _, err := svc.Start(context.Background(), ports.StartTimerInput{UserID: "user-b"}); err != nil {
		t.Fatalf("start for user-b must not conflict with user-a: %v", err)
	}
	if len(repo.byUser) != 2 {
		t.Errorf("expected 2 timers, got %d", len(repo.byUser))
	}
}

// ---------------------------------------------------------------------------
// Stop / Discard / Update
// ---------------------------------------------------------------------------

func TestTimerService_Stop_Success(t *testing.T) {
	svc, repo, bus := newTimerFixture("task-1")

	started, _ := svc.Start(context.Background(), ports.StartTimerInput{UserID: "user-1", TaskID: "task-1"})

	entry, err := svc.Stop(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.TaskID != "task-1" {
		t.Errorf("entry must reference the timer's task, got %q", entry.TaskID)
	}
	if !entry.StartTime.Equal(started.StartTime) {
		t.Error("entry StartTime must match the timer's")
	}
	if entry.DurationSeconds < 0 {
		t.Errorf("duration must be non-negative, got %d", entry.DurationSeconds)
	}
	if _, ok := repo.byUser["user-1"]; ok {
		t.Error("ActiveTimer must be deleted after stop")
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 persisted entry, got %d", len(repo.entries))
	}

	events := bus.all()
	if len(events) != 2 {
		t.Fatalf("expected start+stop events, got %d", len(events))
	}
	if events[1].Topic != domain.TopicTimerStopped {
		t.Errorf("expected topic %q, got %q", domain.TopicTimerStopped, events[1].Topic)
	}
	if payload, ok := events[1].Payload.(*domain.TimeEntry); !ok || payload.ID != entry.ID {
		t.Error("timer-stopped must carry the persisted entry")
	}
}

func TestTimerService_Stop_NoTimer(t *testing.T) {
	svc, _, bus := newTimerFixture()

	_, err := svc.Stop(context.Background(), "user-1")
	if err != domain.ErrTimerNotFound {
		t.Fatalf("expected ErrTimerNotFound, got %v", err)
	}
	if len(bus.all()) != 0 {
		t.Error("failed stop must not emit an event")
	}
}

func TestTimerService_Stop_DeleteFailureRollsBackEntry(t *testing.T) {
	svc, repo, bus := newTimerFixture("task-1")

	svc.Start(context.Background(), ports.StartTimerInput{UserID: "user-1", TaskID: "task-1"})
	before := len(bus.all())

	repo.mu.Lock()
	repo.deleteEr = errors.New("write concern lost")
	repo.mu.Unlock()

	if _, err := svc.Stop(context.Background(), "user-1"); err == nil {
		t.Fatal("expected stop to fail")
	}
	// Stop either fully succeeds or fully fails: the timer keeps running
	// and no entry survives, so a retried stop records the run once.
	if _, ok := repo.byUser["user-1"]; !ok {
		t.Error("failed stop must leave the ActiveTimer in place")
	}
	if len(repo.entries) != 0 {
		t.Fatalf("failed stop must not leave an entry behind, got %d", len(repo.entries))
	}
	if len(bus.all()) != before {
		t.Error("failed stop must not emit an event")
	}

	repo.mu.Lock()
	repo.deleteEr = nil
	repo.mu.Unlock()

	if _, err := svc.Stop(context.Background(), "user-1"); err != nil {
		t.Fatalf("retried stop failed: %v", err)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected exactly 1 entry after retried stop, got %d", len(repo.entries))
	}
}

func TestTimerService_Discard(t *testing.T) {
	svc, repo, bus := newTimerFixture()

	if err := svc.Discard(context.Background(), "user-1"); err != domain.ErrTimerNotFound {
		t.Fatalf("expected ErrTimerNotFound, got %v", err)
	}

	_, _ = svc.Start(context.Background(), ports.StartTimerInput{UserID: "user-1"})
	if err := svc.Discard(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := repo.byUser["user-1"]; ok {
		t.Error("ActiveTimer must be deleted after discard")
	}
	if len(repo.entries) != 0 {
		t.Error("discard must not persist a time entry")
	}

	events := bus.all()
	last := events[len(events)-1]
	if last.Topic != domain.TopicTimerDiscarded {
		t.Errorf("expected topic %q, got %q", domain.TopicTimerDiscarded, last.Topic)
	}
	if last.Payload != nil {
		t.Error("timer-discarded must carry an empty payload")
	}
}

func TestTimerService_Update_PreservesStartTime(t *testing.T) {
	svc, _, bus := newTimerFixture("task-1", "task-2")

	started, _ := svc.Start(context.Background(), ports.StartTimerInput{UserID: "user-1", TaskID: "task-1"})
	time.Sleep(5 * time.Millisecond)

	updated, err := svc.Update(context.Background(), ports.UpdateTimerInput{
		UserID: "user-1", TaskID: "task-2", Description: "switched task",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.StartTime.Equal(started.StartTime) {
		t.Error("update must not reset StartTime")
	}
	if updated.TaskID != "task-2" {
		t.Errorf("expected task-2, got %q", updated.TaskID)
	}

	events := bus.all()
	if events[len(events)-1].Topic != domain.TopicTimerUpdated {
		t.Errorf("expected timer-updated event, got %q", events[len(events)-1].Topic)
	}
}

func TestTimerService_Update_NoTimer(t *testing.T) {
	svc, _, bus := newTimerFixture()

	_, err := svc.Update(context.Background(), ports.UpdateTimerInput{UserID: "user-1"})
	if err != domain.ErrTimerNotFound {
		t.Fatalf("expected ErrTimerNotFound, got %v", err)
	}
	if len(bus.all()) != 0 {
		t.Error("failed update must not emit an event")
	}
}

func TestTimerService_Active(t *testing.T) {
	svc, _, _ := newTimerFixture()

	if _, err := svc.Active(context.Background(), "user-1"); err != domain.ErrTimerNotFound {
		t.Fatalf("expected ErrTimerNotFound, got %v", err)
	}

	started, _ := svc.Start(context.Background(), ports.StartTimerInput{UserID: "user-1"})
	active, err := svc.Active(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active.ID != started.ID {
		t.Errorf("expected timer %q, got %q", started.ID, active.ID)
	}
}

func TestActiveTimer_Elapsed(t *testing.T) {
	start := time.Now().UTC()
	timer := &domain.ActiveTimer{StartTime: start}

	got := timer.Elapsed(start.Add(5 * time.Second))
	if got != 5*time.Second {
		t.Errorf("expected 5s elapsed, got %s", got)
	}
}
