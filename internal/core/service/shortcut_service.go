package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dtsoden/pmo-sub002/internal/core/domain"
	"github.com/dtsoden/pmo-sub002/internal/core/ports"
)

// ShortcutService manages a user's ordered quick-launch shortcuts. An actor
// may only mutate their own shortcuts; a mismatched owner fails with
// Forbidden. Every successful mutation emits one shortcuts-changed event with
// a partial payload: subscribers re-fetch the list rather than patching.
type ShortcutService struct {
	repo   ports.ShortcutRepository
	tasks  ports.TaskRepository
	bus    ports.EventBus
	locks  *userLock
	logger zerolog.Logger
}

func NewShortcutService(repo ports.ShortcutRepository, tasks ports.TaskRepository, bus ports.EventBus, logger zerolog.Logger) *ShortcutService {
	return &ShortcutService{
		repo:   repo,
		tasks:  tasks,
		bus:    bus,
		locks:  newUserLock(),
		logger: logger,
	}
}

// Create appends a new shortcut to the end of the owner's list.
func (s *ShortcutService) Create(ctx context.Context, input ports.CreateShortcutInput) (*domain.Shortcut, error) {
	unlock := s.locks.lock(input.UserID)
	defer unlock()

	if input.TaskID != "" {
		ok, err := s.tasks.Exists(ctx, input.TaskID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrTaskNotFound
		}
	}

	max, err := s.repo.MaxSortOrder(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	shortcut := &domain.Shortcut{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		TaskID:    input.TaskID,
		Label:     input.Label,
		Color:     input.Color,
		Icon:      input.Icon,
		Group:     input.Group,
		SortOrder: max + 1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, shortcut); err != nil {
		s.logger.Error().Err(err).Str("user_id", input.UserID).Msg("failed to create shortcut")
		return nil, err
	}

	s.logger.Info().Str("user_id", input.UserID).Str("shortcut_id", shortcut.ID).Msg("shortcut created")
	s.bus.Publish(domain.NewShortcutsChanged(input.UserID, domain.ShortcutsChangedPayload{Shortcut: shortcut}))
	return shortcut, nil
}

// Update edits the display fields of an existing shortcut.
func (s *ShortcutService) Update(ctx context.Context, input ports.UpdateShortcutInput) (*domain.Shortcut, error) {
	unlock := s.locks.lock(input.UserID)
	defer unlock()

	shortcut, err := s.repo.FindByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if shortcut.UserID != input.UserID {
		return nil, domain.ErrForbidden
	}

	if input.TaskID != "" && input.TaskID != shortcut.TaskID {
		ok, err := s.tasks.Exists(ctx, input.TaskID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrTaskNotFound
		}
	}

	shortcut.TaskID = input.TaskID
	shortcut.Label = input.Label
	shortcut.Color = input.Color
	shortcut.Icon = input.Icon
	shortcut.Group = input.Group
	shortcut.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, shortcut); err != nil {
		s.logger.Error().Err(err).Str("shortcut_id", input.ID).Msg("failed to update shortcut")
		return nil, err
	}

	s.bus.Publish(domain.NewShortcutsChanged(input.UserID, domain.ShortcutsChangedPayload{Shortcut: shortcut}))
	return shortcut, nil
}

// Delete removes a shortcut owned by the acting user.
func (s *ShortcutService) Delete(ctx context.Context, userID, id string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	shortcut, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if shortcut.UserID != userID {
		return domain.ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Str("user_id", userID).Str("shortcut_id", id).Msg("shortcut deleted")
	s.bus.Publish(domain.NewShortcutsChanged(userID, domain.ShortcutsChangedPayload{DeletedID: id}))
	return nil
}

// Reorder rewrites sort_order for the owner's whole list; the position of
// each id in ids becomes its new order. ids must be a permutation of the
// owner's current list: an id belonging to someone else fails with Forbidden,
// a missing, duplicated, or unknown id fails with ErrInvalidReorder, and in
// both cases nothing changes. Rewriting the full list is what keeps sort
// orders unique per user.
func (s *ShortcutService) Reorder(ctx context.Context, userID string, ids []string) ([]*domain.Shortcut, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	owned, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ownedIDs := make(map[string]struct{}, len(owned))
	for _, sc := range owned {
		ownedIDs[sc.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := ownedIDs[id]; !ok {
			if _, err := s.repo.FindByID(ctx, id); err == nil {
				return nil, domain.ErrForbidden
			}
			return nil, domain.ErrInvalidReorder
		}
		if _, dup := seen[id]; dup {
			return nil, domain.ErrInvalidReorder
		}
		seen[id] = struct{}{}
	}
	if len(ids) != len(owned) {
		return nil, domain.ErrInvalidReorder
	}

	if err := s.repo.Reorder(ctx, userID, ids); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to reorder shortcuts")
		return nil, err
	}

	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Reorder carries no payload: the whole list changed shape.
	s.bus.Publish(domain.NewShortcutsChanged(userID, domain.ShortcutsChangedPayload{}))
	return list, nil
}

// List returns the owner's shortcuts ordered by sort_order.
func (s *ShortcutService) List(ctx context.Context, userID string) ([]*domain.Shortcut, error) {
	return s.repo.ListByUser(ctx, userID)
}
