package eventbus

import (
	"testing"
	"time"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: TypeTaskCompleted, Data: "ok"})

	select {
	case e := <-ch:
		if e.Type != TypeTaskCompleted {
			t.Fatalf("Type = %q, want %q", e.Type, TypeTaskCompleted)
		}
		if e.Time.IsZero() {
			t.Fatal("expected Publish to stamp Time")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: TypeTaskFailed})
	// Buffer is full now; this must not block.
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: TypeTaskFailed})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if got := len(ch); got != 1 {
		t.Fatalf("buffered events = %d, want 1", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	// Publishing after unsubscribe must not panic even though ch is closed.
	b.Publish(Event{Type: TypeAgentStopped})

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
}
