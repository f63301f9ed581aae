package domain

import (
	"errors"
	"time"
)

var ErrTimerConflict = errors.New("an active timer already exists")
var ErrTimerNotFound = errors.New("no active timer")
var ErrTaskNotFound = errors.New("task not found")
var ErrForbidden = errors.New("access forbidden")

// ActiveTimer is the singleton in-progress time-tracking record for a user.
// A user has either zero or exactly one ActiveTimer at any time; the unique
// index on user_id makes that invariant durable.
type ActiveTimer struct {
	ID          string    `json:"id" bson:"_id,omitempty"`
	UserID      string    `json:"user_id" bson:"user_id"`
	TaskID      string    `json:"task_id,omitempty" bson:"task_id,omitempty"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	StartTime   time.Time `json:"start_time" bson:"start_time"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

// Elapsed returns the running duration of the timer as of now. Display
// convenience only; the server never derives state from it.
func (t *ActiveTimer) Elapsed(now time.Time) time.Duration {
	return now.Sub(t.StartTime)
}

// TimeEntry is the persisted record produced when an ActiveTimer is stopped.
type TimeEntry struct {
	ID              string    `json:"id" bson:"_id,omitempty"`
	UserID          string    `json:"user_id" bson:"user_id"`
	TaskID          string    `json:"task_id,omitempty" bson:"task_id,omitempty"`
	Description     string    `json:"description,omitempty" bson:"description,omitempty"`
	StartTime       time.Time `json:"start_time" bson:"start_time"`
	EndTime         time.Time `json:"end_time" bson:"end_time"`
	DurationSeconds int64     `json:"duration_seconds" bson:"duration_seconds"`
}
