package ports

import (
	"context"

	"github.com/dtsoden/pmo-sub002/internal/core/domain"
)

// TimerRepository defines persistence operations for the per-user ActiveTimer
// and the TimeEntry records produced when a timer is stopped.
type TimerRepository interface {
	// Insert creates the ActiveTimer for its owner. Returns
	// domain.ErrTimerConflict when the owner already has one.
	Insert(ctx context.Context, t *domain.ActiveTimer) error
	// FindByUser returns the owner's ActiveTimer, or domain.ErrTimerNotFound.
	FindByUser(ctx context.Context, userID string) (*domain.ActiveTimer, error)
	// Update replaces the mutable fields (task reference, description) of the
	// owner's ActiveTimer. StartTime is never touched.
	Update(ctx context.Context, t *domain.ActiveTimer) error
	// Delete removes the owner's ActiveTimer. Returns domain.ErrTimerNotFound
	// when none exists.
	Delete(ctx context.Context, userID string) error
	// InsertEntry persists the historical record produced by a stop.
	InsertEntry(ctx context.Context, e *domain.TimeEntry) error
	// DeleteEntry removes a persisted record. Used to compensate a stop
	// whose timer deletion failed after the entry was already written.
	DeleteEntry(ctx context.Context, id string) error
}

// TaskRepository resolves task references supplied on timer and shortcut
// mutations.
type TaskRepository interface {
	Exists(ctx context.Context, taskID string) (bool, error)
}
