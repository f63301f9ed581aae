package domain

// Topic identifies the kind of state change an Event describes.
type Topic string

const (
	TopicTimerStarted     Topic = "timer-started"
	TopicTimerStopped     Topic = "timer-stopped"
	TopicTimerDiscarded   Topic = "timer-discarded"
	TopicTimerUpdated     Topic = "timer-updated"
	TopicShortcutsChanged Topic = "shortcuts-changed"
)

// Event is an immutable notification emitted exactly once per successful
// mutation. It is routed only to connections subscribed for UserID; the
// payload lets a client update its cache without a round-trip, but clients
// must tolerate a missing or partial payload by re-fetching.
type Event struct {
	Topic   Topic  `json:"topic"`
	UserID  string `json:"user_id"`
	Payload any    `json:"payload,omitempty"`
}

// ShortcutsChangedPayload is the deliberately partial payload carried by
// shortcuts-changed events: the changed shortcut, a deleted id, or nothing at
// all (reorder). Clients treat the event as a change signal and re-fetch the
// full list rather than patching it locally.
type ShortcutsChangedPayload struct {
	Shortcut  *Shortcut `json:"shortcut,omitempty"`
	DeletedID string    `json:"deleted_id,omitempty"`
}

func NewTimerStarted(t *ActiveTimer) Event {
	return Event{Topic: TopicTimerStarted, UserID: t.UserID, Payload: t}
}

func NewTimerStopped(e *TimeEntry) Event {
	return Event{Topic: TopicTimerStopped, UserID: e.UserID, Payload: e}
}

func NewTimerDiscarded(userID string) Event {
	return Event{Topic: TopicTimerDiscarded, UserID: userID}
}

func NewTimerUpdated(t *ActiveTimer) Event {
	return Event{Topic: TopicTimerUpdated, UserID: t.UserID, Payload: t}
}

func NewShortcutsChanged(userID string, payload ShortcutsChangedPayload) Event {
	return Event{Topic: TopicShortcutsChanged, UserID: userID, Payload: payload}
}
