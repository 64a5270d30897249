package eventing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPublishDeliversToTopicSubscribers(t *testing.T) {
	bus := NewInMemoryBus()
	var got []ReadingIngested
	On(bus, func(ctx context.Context, evt ReadingIngested) error {
		got = append(got, evt)
		return nil
	})

	evt := ReadingIngested{MachineID: "m-1", Parameter: "temperature", Value: 70.5, At: time.Now()}
	if err := bus.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(got) != 1 || got[0].MachineID != "m-1" {
		t.Fatalf("expected delivery, got %+v", got)
	}
}

func TestPublishIgnoresUnrelatedTopics(t *testing.T) {
	bus := NewInMemoryBus()
	called := false
	On(bus, func(ctx context.Context, evt AnomalyRaised) error {
		called = true
		return nil
	})

	if err := bus.Publish(context.Background(), ReadingIngested{MachineID: "m-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if called {
		t.Fatal("expected no delivery for an unrelated topic")
	}
}

func TestPublishJoinsHandlerErrors(t *testing.T) {
	bus := NewInMemoryBus()
	first := errors.New("first failure")
	second := errors.New("second failure")
	order := 0
	bus.Subscribe(TopicAnomalyRaised, func(ctx context.Context, event Event) error {
		order++
		return first
	})
	bus.Subscribe(TopicAnomalyRaised, func(ctx context.Context, event Event) error {
		order++
		return second
	})

	err := bus.Publish(context.Background(), AnomalyRaised{AnomalyID: "an-1"})
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Fatalf("expected both handler errors joined, got %v", err)
	}
	if order != 2 {
		t.Fatalf("expected both handlers to run, got %d", order)
	}
}

func TestPublishNilEvent(t *testing.T) {
	bus := NewInMemoryBus()
	if err := bus.Publish(context.Background(), nil); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("expected ErrNilEvent, got %v", err)
	}
}

func TestOnSkipsOtherConcreteTypes(t *testing.T) {
	bus := NewInMemoryBus()
	called := false
	On(bus, func(ctx context.Context, evt AnomalyRaised) error {
		called = true
		return nil
	})

	// Same topic, different carrier type: skipped, not an error.
	bus.Subscribe(TopicAnomalyRaised, func(ctx context.Context, event Event) error { return nil })
	if err := bus.Publish(context.Background(), otherRaised{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if called {
		t.Fatal("expected typed handler to skip a foreign carrier type")
	}
}

type otherRaised struct{}

func (otherRaised) Topic() string { return TopicAnomalyRaised }
