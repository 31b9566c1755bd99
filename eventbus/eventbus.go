// Package eventbus provides a process-wide publish/subscribe bus for the
// asynchronous notifications flowing between the engine client and the
// controllers that consume them.
package eventbus

import (
	"sync"

	"github.com/google/uuid"
)

// Event kinds carried on the bus. The engine client publishes these; any
// number of controllers may subscribe.
const (
	ModelLoadComplete = "model-load-complete"
	ModelLoadError    = "model-load-error"
	RawKey            = "raw-key-event"
	SegmentRecognized = "segment-recognized"
	SpeechActivity    = "speech-activity-changed"
)

// Handler receives the payload of a published event.
type Handler func(payload any)

// Bus is a named-topic pub/sub bus. Publish dispatches synchronously, so
// within one subscription events arrive in emission order. No ordering is
// guaranteed across different topics.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[string]Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[string]Handler)}
}

// Subscribe registers a handler for a topic and returns a cancel function.
// Cancel is idempotent and must be called on the subscriber's teardown path
// to avoid duplicate delivery on re-subscription.
func (b *Bus) Subscribe(topic string, h Handler) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.subs[topic]
	if m == nil {
		m = make(map[string]Handler)
		b.subs[topic] = m
	}

	id := uuid.New().String()
	m[id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[topic], id)
		})
	}
}

// Publish delivers payload to every subscriber of topic. Handlers run on the
// caller's goroutine; a handler that blocks stalls delivery for that event.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
}
