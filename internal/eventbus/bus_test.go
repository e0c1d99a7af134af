package eventbus

import "testing"

func TestSubscribeFiltersTypes(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	pub, unsubPub := b.Subscribe(4, RecordPublished)
	defer unsubPub()

	b.Publish(Event{Type: DeliveryFailed})
	b.Publish(Event{Type: RecordPublished, Data: PublishedData{RecordID: 7}})

	if len(all) != 2 {
		t.Fatalf("all subscriber got %d events", len(all))
	}
	if len(pub) != 1 {
		t.Fatalf("filtered subscriber got %d events", len(pub))
	}
	e := <-pub
	if d, ok := e.Data.(PublishedData); !ok || d.RecordID != 7 || e.Time.IsZero() {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	b.Publish(Event{Type: BroadcastFinished})
	b.Publish(Event{Type: BroadcastFinished})
	if got := Dropped(b); got != 1 {
		t.Fatalf("dropped=%d want 1", got)
	}
	unsub()
	unsub()
	b.Publish(Event{Type: BroadcastFinished})
}
