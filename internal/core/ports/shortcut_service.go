package ports

import (
	"context"

	"github.com/dtsoden/pmo-sub002/internal/core/domain"
)

// CreateShortcutInput carries the data for a new shortcut. SortOrder is
// assigned by the service (appended after the owner's current list).
type CreateShortcutInput struct {
	UserID string
	TaskID string
	Label  string
	Color  string
	Icon   string
	Group  string
}

// UpdateShortcutInput carries the editable display fields of a shortcut.
type UpdateShortcutInput struct {
	ID     string
	UserID string // acting user, checked against the stored owner
	TaskID string
	Label  string
	Color  string
	Icon   string
	Group  string
}

// ShortcutService defines use-case operations on a user's shortcut list.
// Every successful mutation emits exactly one shortcuts-changed event.
type ShortcutService interface {
	Create(ctx context.Context, input CreateShortcutInput) (*domain.Shortcut, error)
	Update(ctx context.Context, input UpdateShortcutInput) (*domain.Shortcut, error)
	Delete(ctx context.Context, userID, id string) error
	// Reorder rewrites the ordering for the given set of shortcut IDs; the
	// position of each id becomes its new sort_order. All ids must belong to
	// the acting user.
	Reorder(ctx context.Context, userID string, ids []string) ([]*domain.Shortcut, error)
	List(ctx context.Context, userID string) ([]*domain.Shortcut, error)
}
