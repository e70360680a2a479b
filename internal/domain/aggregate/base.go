package aggregate

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/print-storefront/internal/infrastructure/store"
)

var (
	ErrTypeMismatch = errors.New("event belongs to another aggregate type")
	ErrVersionGap   = errors.New("event stream is not contiguous")
)

// Aggregate is an event-sourced entity rebuilt by replaying its stream.
type Aggregate interface {
	GetID() string
	GetVersion() int
	ApplyEvent(store.Event) error
}

// LoadAggregate replays the stream of id into a fresh aggregate. Every event
// must carry aggregateType and the next version after the aggregate's
// current one. The bool result reports whether the stream had any events.
func LoadAggregate[T Aggregate](
	ctx context.Context,
	eventStore store.EventStoreInterface,
	aggregateType, id string,
	newAggregate func() T,
) (T, bool, error) {
	var zero T

	events, err := eventStore.GetEvents(ctx, id)
	if err != nil {
		return zero, false, fmt.Errorf("failed to load events of %s %s: %w", aggregateType, id, err)
	}

	agg := newAggregate()
	for _, event := range events {
		if event.AggregateType != aggregateType {
			return zero, false, fmt.Errorf("%w: %s event %s in %s stream %s",
				ErrTypeMismatch, event.AggregateType, event.EventType, aggregateType, id)
		}
		if want := agg.GetVersion() + 1; event.Version != want {
			return zero, false, fmt.Errorf("%w: %s %s expected version %d, got %d",
				ErrVersionGap, aggregateType, id, want, event.Version)
		}
		if err := agg.ApplyEvent(event); err != nil {
			return zero, false, fmt.Errorf("failed to apply event %s (version %d): %w", event.EventType, event.Version, err)
		}
	}

	return agg, len(events) > 0, nil
}
