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

const collectionShortcuts = "shortcuts"

type ShortcutRepository struct {
	col *mongo.Collection
}

func NewShortcutRepository(db *mongo.Database) *ShortcutRepository {
	return &ShortcutRepository{col: db.Collection(collectionShortcuts)}
}

func (r *ShortcutRepository) Insert(ctx context.Context, s *domain.Shortcut) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.InsertOne(ctx, s)
	return err
}

func (r *ShortcutRepository) FindByID(ctx context.Context, id string) (*domain.Shortcut, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var s domain.Shortcut
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrShortcutNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListByUser returns the owner's shortcuts ordered by sort_order.
func (r *ShortcutRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Shortcut, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "sort_order", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	shortcuts := make([]*domain.Shortcut, 0)
	for cur.Next(ctx) {
		var s domain.Shortcut
		if err := cur.Decode(&s); err != nil {
			return nil, err
		}
		shortcuts = append(shortcuts, &s)
	}
	return shortcuts, cur.Err()
}

func (r *ShortcutRepository) Update(ctx context.Context, s *domain.Shortcut) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": s.ID},
		bson.M{"$set": bson.M{
			"task_id":    s.TaskID,
			"label":      s.Label,
			"color":      s.Color,
			"icon":       s.Icon,
			"group":      s.Group,
			"updated_at": s.UpdatedAt,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrShortcutNotFound
	}
	return nil
}

func (r *ShortcutRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrShortcutNotFound
	}
	return nil
}

// MaxSortOrder returns the highest sort_order among the owner's shortcuts,
// or -1 when the list is empty.
func (r *ShortcutRepository) MaxSortOrder(ctx context.Context, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "sort_order", Value: -1}})
	var s domain.Shortcut
	err := r.col.FindOne(ctx, bson.M{"user_id": userID}, opts).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return -1, nil
		}
		return 0, err
	}
	return s.SortOrder, nil
}

// Reorder rewrites sort_order for the given shortcut IDs in one ordered bulk
// write; position in ids becomes the new sort_order. The filter includes
// user_id so a stray id can never touch another user's document.
//
// The rewrite happens in two phases within the bulk: every document first
// moves to a negative placeholder order, then to its final one. The unique
// (user_id, sort_order) index would otherwise reject intermediate states
// where a new order collides with an old one still in place.
func (r *ShortcutRepository) Reorder(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	models := make([]mongo.WriteModel, 0, 2*len(ids))
	now := time.Now().UTC()
	for pos, id := range ids {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id, "user_id": userID}).
			SetUpdate(bson.M{"$set": bson.M{"sort_order": -(pos + 1)}}))
	}
	for pos, id := range ids {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id, "user_id": userID}).
			SetUpdate(bson.M{"$set": bson.M{"sort_order": pos, "updated_at": now}}))
	}

	_, err := r.col.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return err
}

// EnsureIndexes creates necessary indexes on the shortcuts collection.
func (r *ShortcutRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Uniqueness makes the one-order-per-slot invariant durable the same
	// way the active_timers user_id index makes the singleton durable.
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "sort_order", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
