// Package client is the Go SDK for the realtime state synchronization
// service. It keeps a local replica of the caller's server-side state (the
// active timer and the shortcut list) continuously converged with the server
// over either WebSocket or long-polling transport.
package client

import (
	"encoding/json"
	"time"
)

// Event topics, as carried in the wire envelope.
const (
	TopicTimerStarted     = "timer-started"
	TopicTimerStopped     = "timer-stopped"
	TopicTimerDiscarded   = "timer-discarded"
	TopicTimerUpdated     = "timer-updated"
	TopicShortcutsChanged = "shortcuts-changed"
)

// Envelope is one realtime message. The payload stays raw until the topic
// tells us what to decode it into.
type Envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Timer is the caller's single running timer, or absent.
type Timer struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	TaskID      string    `json:"task_id,omitempty"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	CreatedAt   time.Time `json:"created_at"`
}

// Elapsed reports how long the timer has been running as of now.
func (t *Timer) Elapsed(now time.Time) time.Duration {
	return now.Sub(t.StartTime)
}

// TimeEntry is the completed record produced by stopping a timer.
type TimeEntry struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	TaskID          string    `json:"task_id,omitempty"`
	Description     string    `json:"description,omitempty"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds int64     `json:"duration_seconds"`
}

// Shortcut is one pinned task in the caller's ordered shortcut list.
type Shortcut struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TaskID    string    `json:"task_id,omitempty"`
	Label     string    `json:"label"`
	Color     string    `json:"color,omitempty"`
	Icon      string    `json:"icon,omitempty"`
	Group     string    `json:"group,omitempty"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
