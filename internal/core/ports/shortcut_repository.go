package ports

import (
	"context"

	"github.com/dtsoden/pmo-sub002/internal/core/domain"
)

// ShortcutRepository defines persistence operations for quick-launch
// shortcuts. All lookups are scoped to the owning user.
type ShortcutRepository interface {
	Insert(ctx context.Context, s *domain.Shortcut) error
	// FindByID returns the shortcut regardless of owner; ownership checks
	// belong to the service layer so that a mismatch surfaces as Forbidden
	// rather than NotFound.
	FindByID(ctx context.Context, id string) (*domain.Shortcut, error)
	// ListByUser returns the owner's shortcuts ordered by sort_order.
	ListByUser(ctx context.Context, userID string) ([]*domain.Shortcut, error)
	Update(ctx context.Context, s *domain.Shortcut) error
	Delete(ctx context.Context, id string) error
	// MaxSortOrder returns the highest sort_order among the owner's shortcuts,
	// or -1 when the list is empty.
	MaxSortOrder(ctx context.Context, userID string) (int, error)
	// Reorder rewrites sort_order for the given shortcut IDs in one bulk
	// write; position in ids becomes the new sort_order.
	Reorder(ctx context.Context, userID string, ids []string) error
}
