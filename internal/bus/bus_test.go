package bus

import (
	"testing"
	"time"
)

func TestSubscribePublishDelivers(t *testing.T) {
	b := New()
	sub := b.Subscribe("task:")
	defer b.Unsubscribe(sub)

	b.Publish("task:created", "TASK-001 created")

	select {
	case ev := <-sub.Ch():
		if ev.Topic != "task:created" {
			t.Fatalf("topic = %q, want task:created", ev.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribePrefixFilters(t *testing.T) {
	b := New()
	sub := b.Subscribe("agent:")
	defer b.Unsubscribe(sub)

	b.Publish("task:created", "nope")

	select {
	case ev := <-sub.Ch():
		t.Fatalf("unexpected delivery: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBufferSize+10; i++ {
			b.Publish("task:created", "x")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}
	if b.DroppedEventCount() == 0 {
		t.Fatal("expected some events to be dropped")
	}
}

func TestRecentActivityBoundedAndOrdered(t *testing.T) {
	b := New()
	for i := 0; i < ringSize+20; i++ {
		b.Publish("task:created", "entry")
	}
	recent := b.RecentActivity(10)
	if len(recent) != 10 {
		t.Fatalf("len = %d, want 10", len(recent))
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].ID <= recent[i-1].ID {
			t.Fatalf("activity entries not in ascending id order: %+v", recent)
		}
	}
	all := b.RecentActivity(1000)
	if len(all) != ringSize {
		t.Fatalf("len(all) = %d, want %d", len(all), ringSize)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	sub := b.Subscribe("")
	b.Unsubscribe(sub)

	b.Publish("task:created", "x")

	if _, ok := <-sub.Ch(); ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
}
