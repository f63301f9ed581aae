package domain

import (
	"errors"
	"time"
)

var (
	ErrShortcutNotFound = errors.New("shortcut not found")
	// ErrInvalidReorder rejects a reorder that is not a permutation of the
	// owner's full list. A partial rewrite would collide with the sort
	// orders of the shortcuts left out of the call.
	ErrInvalidReorder = errors.New("reorder must list every shortcut exactly once")
)

// Shortcut is a user-owned quick-launch item referencing an optional task.
// SortOrder defines its display position within the owner's list; values are
// unique per user at any settled state.
type Shortcut struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	UserID    string    `json:"user_id" bson:"user_id"`
	TaskID    string    `json:"task_id,omitempty" bson:"task_id,omitempty"`
	Label     string    `json:"label" bson:"label"`
	Color     string    `json:"color,omitempty" bson:"color,omitempty"`
	Icon      string    `json:"icon,omitempty" bson:"icon,omitempty"`
	Group     string    `json:"group,omitempty" bson:"group,omitempty"`
	SortOrder int       `json:"sort_order" bson:"sort_order"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
