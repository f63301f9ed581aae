package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dtsoden/pmo-sub002/internal/core/domain"
)

const (
	collectionActiveTimers = "active_timers"
	collectionTimeEntries  = "time_entries"
)

type TimerRepository struct {
	timers  *mongo.Collection
	entries *mongo.Collection
}

func NewTimerRepository(db *mongo.Database) *TimerRepository {
	return &TimerRepository{
		timers:  db.Collection(collectionActiveTimers),
		entries: db.Collection(collectionTimeEntries),
	}
}

// Insert creates the user's ActiveTimer. The unique index on user_id makes
// the one-timer-per-user invariant hold even across concurrent inserts from
// multiple instances; a duplicate key maps to the Conflict sentinel.
func (r *TimerRepository) Insert(ctx context.Context, t *domain.ActiveTimer) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.timers.InsertOne(ctx, t)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrTimerConflict
		}
		return err
	}
	return nil
}

// FindByUser retrieves the user's ActiveTimer.
func (r *TimerRepository) FindByUser(ctx context.Context, userID string) (*domain.ActiveTimer, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var t domain.ActiveTimer
	err := r.timers.FindOne(ctx, bson.M{"user_id": userID}).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTimerNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Update replaces the mutable fields of the user's ActiveTimer. StartTime is
// deliberately excluded from the update document.
func (r *TimerRepository) Update(ctx context.Context, t *domain.ActiveTimer) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.timers.UpdateOne(ctx,
		bson.M{"user_id": t.UserID},
		bson.M{"$set": bson.M{
			"task_id":     t.TaskID,
			"description": t.Description,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrTimerNotFound
	}
	return nil
}

// Delete removes the user's ActiveTimer.
func (r *TimerRepository) Delete(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.timers.DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrTimerNotFound
	}
	return nil
}

// InsertEntry persists the historical record produced by a stop.
func (r *TimerRepository) InsertEntry(ctx context.Context, e *domain.TimeEntry) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.entries.InsertOne(ctx, e)
	return err
}

// DeleteEntry removes a time entry by id.
func (r *TimerRepository) DeleteEntry(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.entries.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// EnsureIndexes creates necessary indexes on the timer collections.
func (r *TimerRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.timers.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = r.entries.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "start_time", Value: -1}},
	})
	return err
}
