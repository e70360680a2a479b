package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventStore is the in-process event log. It keeps one append-ordered log
// plus a per-aggregate index into it.
type EventStore struct {
	mu        sync.RWMutex
	log       []Event
	streams   map[string][]int
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewEventStore(publisher Publisher, logger *zap.Logger) *EventStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventStore{
		streams:   make(map[string][]int),
		publisher: publisher,
		logger:    logger.Named("event_store"),
		now:       time.Now,
	}
}

// Append stores an event and publishes it. The stored event is the source of
// truth, so a publish failure is logged and not returned.
func (es *EventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	es.mu.Lock()
	event, err := newEvent(aggregateID, aggregateType, eventType, data, len(es.streams[aggregateID])+1, es.now())
	if err != nil {
		es.mu.Unlock()
		return nil, err
	}
	es.streams[aggregateID] = append(es.streams[aggregateID], len(es.log))
	es.log = append(es.log, event)
	es.mu.Unlock()

	publish(ctx, es.publisher, es.logger, event)
	return &event, nil
}

func (es *EventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	idx := es.streams[aggregateID]
	if len(idx) == 0 {
		return nil, nil
	}
	events := make([]Event, len(idx))
	for i, pos := range idx {
		events[i] = es.log[pos]
	}
	return events, nil
}

// GetAllEvents returns every event in append order.
func (es *EventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return append([]Event(nil), es.log...), nil
}

func publish(ctx context.Context, publisher Publisher, logger *zap.Logger, event Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event.AggregateID, event); err != nil {
		logger.Error("Event not published",
			zap.String("event_type", event.EventType),
			zap.String("aggregate_id", event.AggregateID),
			zap.Int("version", event.Version),
			zap.Error(err))
	}
}
