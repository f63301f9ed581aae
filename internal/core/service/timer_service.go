package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dtsoden/pmo-sub002/internal/core/domain"
	"github.com/dtsoden/pmo-sub002/internal/core/ports"
)

// TimerService owns the one-active-timer-per-user invariant. Every successful
// mutation publishes exactly one event, after the repository write; failures
// publish nothing.
type TimerService struct {
	repo   ports.TimerRepository
	tasks  ports.TaskRepository
	bus    ports.EventBus
	locks  *userLock
	logger zerolog.Logger
}

func NewTimerService(repo ports.TimerRepository, tasks ports.TaskRepository, bus ports.EventBus, logger zerolog.Logger) *TimerService {
	return &TimerService{
		repo:   repo,
		tasks:  tasks,
		bus:    bus,
		locks:  newUserLock(),
		logger: logger,
	}
}

// Start creates the user's ActiveTimer and emits timer-started.
func (s *TimerService) Start(ctx context.Context, input ports.StartTimerInput) (*domain.ActiveTimer, error) {
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

	if _, err := s.repo.FindByUser(ctx, input.UserID); err == nil {
		return nil, domain.ErrTimerConflict
	} else if !errors.Is(err, domain.ErrTimerNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	timer := &domain.ActiveTimer{
		ID:          uuid.NewString(),
		UserID:      input.UserID,
		TaskID:      input.TaskID,
		Description: input.Description,
		StartTime:   now,
		CreatedAt:   now,
	}

	if err := s.repo.Insert(ctx, timer); err != nil {
		s.logger.Error().Err(err).Str("user_id", input.UserID).Msg("failed to start timer")
		return nil, err
	}

	s.logger.Info().Str("user_id", input.UserID).Str("timer_id", timer.ID).Msg("timer started")
	s.bus.Publish(domain.NewTimerStarted(timer))
	return timer, nil
}

// Stop deletes the ActiveTimer, persists a TimeEntry, and emits timer-stopped
// carrying the persisted entry.
func (s *TimerService) Stop(ctx context.Context, userID string) (*domain.TimeEntry, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	timer, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := &domain.TimeEntry{
		ID:              uuid.NewString(),
		UserID:          timer.UserID,
		TaskID:          timer.TaskID,
		Description:     timer.Description,
		StartTime:       timer.StartTime,
		EndTime:         now,
		DurationSeconds: int64(now.Sub(timer.StartTime) / time.Second),
	}

	if err := s.repo.InsertEntry(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to persist time entry")
		return nil, err
	}
	if err := s.repo.Delete(ctx, userID); err != nil {
		// The timer is still running; take the entry back out so a retried
		// stop does not record the run twice.
		if compErr := s.repo.DeleteEntry(ctx, entry.ID); compErr != nil {
			s.logger.Error().Err(compErr).Str("entry_id", entry.ID).Msg("failed to roll back time entry")
		}
		return nil, err
	}

	s.logger.Info().Str("user_id", userID).Int64("duration_s", entry.DurationSeconds).Msg("timer stopped")
	s.bus.Publish(domain.NewTimerStopped(entry))
	return entry, nil
}

// Discard deletes the ActiveTimer without persisting anything.
func (s *TimerService) Discard(ctx context.Context, userID string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	if err := s.repo.Delete(ctx, userID); err != nil {
		return err
	}

	s.logger.Info().Str("user_id", userID).Msg("timer discarded")
	s.bus.Publish(domain.NewTimerDiscarded(userID))
	return nil
}

// Update changes the task reference and description of the running timer.
// StartTime is preserved.
func (s *TimerService) Update(ctx context.Context, input ports.UpdateTimerInput) (*domain.ActiveTimer, error) {
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

	timer, err := s.repo.FindByUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	timer.TaskID = input.TaskID
	timer.Description = input.Description

	if err := s.repo.Update(ctx, timer); err != nil {
		s.logger.Error().Err(err).Str("user_id", input.UserID).Msg("failed to update timer")
		return nil, err
	}

	s.bus.Publish(domain.NewTimerUpdated(timer))
	return timer, nil
}

// Active returns the user's current ActiveTimer.
func (s *TimerService) Active(ctx context.Context, userID string) (*domain.ActiveTimer, error) {
	return s.repo.FindByUser(ctx, userID)
}
