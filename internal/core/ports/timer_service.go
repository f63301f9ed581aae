package ports

import (
	"context"

	"github.com/dtsoden/pmo-sub002/internal/core/domain"
)

// StartTimerInput carries the data needed to start a timer.
type StartTimerInput struct {
	UserID      string
	TaskID      string // optional task reference
	Description string // optional free text
}

// UpdateTimerInput carries the mutable fields of a running timer. StartTime
// is never reset by an update.
type UpdateTimerInput struct {
	UserID      string
	TaskID      string
	Description string
}

// TimerService defines use-case operations on the per-user ActiveTimer.
// Mutations on one user's timer are serialized against each other; operations
// on different users proceed concurrently.
type TimerService interface {
	// Start creates the user's ActiveTimer. Fails with ErrTimerConflict when
	// one already exists and ErrTaskNotFound when TaskID does not resolve.
	Start(ctx context.Context, input StartTimerInput) (*domain.ActiveTimer, error)
	// Stop deletes the ActiveTimer and persists a TimeEntry covering its run.
	Stop(ctx context.Context, userID string) (*domain.TimeEntry, error)
	// Discard deletes the ActiveTimer without persisting anything.
	Discard(ctx context.Context, userID string) error
	// Update changes the task reference and description of the running timer.
	Update(ctx context.Context, input UpdateTimerInput) (*domain.ActiveTimer, error)
	// Active returns the user's current ActiveTimer, or ErrTimerNotFound.
	Active(ctx context.Context, userID string) (*domain.ActiveTimer, error)
}
