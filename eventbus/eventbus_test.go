package eventbus

import "testing"

func TestPublishOrder(t *testing.T) {
	bus := New()

	var got []int
	cancel := bus.Subscribe("topic", func(payload any) {
		got = append(got, payload.(int))
	})
	defer cancel()

	for i := 0; i < 5; i++ {
		bus.Publish("topic", i)
	}

	if len(got) != 5 {
		t.Fatalf("got %d events, want 5", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Errorf("event %d = %d, want %d", i, v, i)
		}
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := New()

	a, b := 0, 0
	cancelA := bus.Subscribe("topic", func(any) { a++ })
	cancelB := bus.Subscribe("topic", func(any) { b++ })
	defer cancelA()
	defer cancelB()

	bus.Publish("topic", nil)
	bus.Publish("topic", nil)

	if a != 2 || b != 2 {
		t.Errorf("got a=%d b=%d, want 2 2", a, b)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	bus := New()

	n := 0
	cancel := bus.Subscribe("topic", func(any) { n++ })

	bus.Publish("topic", nil)
	cancel()
	cancel() // idempotent
	bus.Publish("topic", nil)

	if n != 1 {
		t.Errorf("got %d events after cancel, want 1", n)
	}
}

func TestTopicsAreIndependent(t *testing.T) {
	bus := New()

	n := 0
	cancel := bus.Subscribe("a", func(any) { n++ })
	defer cancel()

	bus.Publish("b", nil)

	if n != 0 {
		t.Errorf("subscriber for topic a received %d events from topic b", n)
	}
}
