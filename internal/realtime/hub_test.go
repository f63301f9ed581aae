package realtime

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dtsoden/pmo-sub002/internal/core/domain"
)

func testHub() *Hub {
	return NewHub(zerolog.Nop())
}

func drain(t *testing.T, sub *Subscription) domain.Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return domain.Event{}
	}
}

func TestHub_DeliversToOwnersRoom(t *testing.T) {
	hub := testHub()
	sub := hub.Subscribe("user-a")
	defer hub.Unsubscribe(sub)

	hub.Publish(domain.Event{Topic: domain.TopicTimerDiscarded, UserID: "user-a"})

	ev := drain(t, sub)
	if ev.Topic != domain.TopicTimerDiscarded {
		t.Errorf("expected timer-discarded, got %q", ev.Topic)
	}
}

func TestHub_RoomIsolation(t *testing.T) {
	hub := testHub()
	subA := hub.Subscribe("user-a")
	subB := hub.Subscribe("user-b")
	defer hub.Unsubscribe(subA)
	defer hub.Unsubscribe(subB)

	hub.Publish(domain.Event{Topic: domain.TopicTimerDiscarded, UserID: "user-a"})

	drain(t, subA)
	select {
	case ev := <-subB.Events():
		t.Fatalf("user-b must not receive user-a's event, got %q", ev.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_FanOutToAllRoomMembers(t *testing.T) {
	hub := testHub()
	web := hub.Subscribe("user-a")
	popup := hub.Subscribe("user-a")
	background := hub.Subscribe("user-a")
	defer hub.Unsubscribe(web)
	defer hub.Unsubscribe(popup)
	defer hub.Unsubscribe(background)

	hub.Publish(domain.Event{Topic: domain.TopicShortcutsChanged, UserID: "user-a"})

	for _, sub := range []*Subscription{web, popup, background} {
		if ev := drain(t, sub); ev.Topic != domain.TopicShortcutsChanged {
			t.Errorf("expected shortcuts-changed, got %q", ev.Topic)
		}
	}
}

func TestHub_PreservesPublishOrder(t *testing.T) {
	hub := testHub()
	sub := hub.Subscribe("user-a")
	defer hub.Unsubscribe(sub)

	topics := []domain.Topic{
		domain.TopicTimerStarted,
		domain.TopicTimerUpdated,
		domain.TopicTimerStopped,
		domain.TopicShortcutsChanged,
	}
	for _, topic := range topics {
		hub.Publish(domain.Event{Topic: topic, UserID: "user-a"})
	}
	for i, want := range topics {
		if got := drain(t, sub).Topic; got != want {
			t.Errorf("event %d: expected %q, got %q", i, want, got)
		}
	}
}

func TestHub_EmptyRoomDropsEvent(t *testing.T) {
	hub := testHub()
	// No subscribers at all: publish must not block or panic.
	hub.Publish(domain.Event{Topic: domain.TopicTimerStarted, UserID: "nobody"})

	sub := hub.Subscribe("nobody")
	defer hub.Unsubscribe(sub)
	select {
	case ev := <-sub.Events():
		t.Fatalf("late subscriber must not see pre-subscription events, got %q", ev.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := testHub()
	sub := hub.Subscribe("user-a")
	hub.Unsubscribe(sub)

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("Done must close on unsubscribe")
	}

	hub.Publish(domain.Event{Topic: domain.TopicTimerStarted, UserID: "user-a"})
	select {
	case ev := <-sub.Events():
		t.Fatalf("unsubscribed connection must not receive events, got %q", ev.Topic)
	case <-time.After(50 * time.Millisecond):
	}
	if hub.RoomSize("user-a") != 0 {
		t.Error("room must be empty after unsubscribe")
	}
}

func TestHub_SlowSubscriberEvicted(t *testing.T) {
	hub := testHub()
	slow := hub.Subscribe("user-a")
	healthy := hub.Subscribe("user-a")
	defer hub.Unsubscribe(healthy)

	// Fill the slow subscription's buffer without reading, then publish one
	// more; the hub must evict it rather than skip the event.
	for i := 0; i < subscriptionBuffer+1; i++ {
		hub.Publish(domain.Event{Topic: domain.TopicTimerUpdated, UserID: "user-a"})
		drain(t, healthy)
	}

	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatal("slow subscription must be evicted")
	}
	if hub.RoomSize("user-a") != 1 {
		t.Errorf("expected only the healthy subscription to remain, got %d", hub.RoomSize("user-a"))
	}
}
