package eventing

import (
	"context"
	"errors"
	"sync"
)

// Event is a domain fact published after the state change it describes is
// durable. The topic names the fact, not the Go type carrying it.
type Event interface {
	Topic() string
}

// Handler consumes events delivered on a topic.
type Handler func(ctx context.Context, event Event) error

// Bus fans events out to topic subscribers.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(topic string, handler Handler)
}

// ErrNilEvent is returned when a nil event is published.
var ErrNilEvent = errors.New("eventing: nil event")

// InMemoryBus delivers events synchronously on the publisher's goroutine.
// A failing handler does not stop delivery to the rest; Publish reports
// every handler error joined.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewInMemoryBus constructs an empty bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string][]Handler)}
}

// Publish dispatches an event to every handler subscribed at its topic.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Topic()]...)
	b.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler at a topic.
func (b *InMemoryBus) Subscribe(topic string, handler Handler) {
	if topic == "" || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers[topic] = append(b.handlers[topic], handler)
	b.mu.Unlock()
}

// On subscribes fn at T's topic. Events published at the same topic under a
// different concrete type are skipped, not treated as errors.
func On[T Event](bus Bus, fn func(ctx context.Context, event T) error) {
	var zero T
	bus.Subscribe(zero.Topic(), func(ctx context.Context, event Event) error {
		evt, ok := event.(T)
		if !ok {
			return nil
		}
		return fn(ctx, evt)
	})
}
