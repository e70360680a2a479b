package kinesis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/print-storefront/internal/infrastructure/store"
)

func orderImage(id, eventType string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"id":             events.NewStringAttribute(id),
		"aggregate_id":   events.NewStringAttribute("order-456"),
		"aggregate_type": events.NewStringAttribute("Order"),
		"event_type":     events.NewStringAttribute(eventType),
		"data":           events.NewStringAttribute(`{"order_number":"BL123456789"}`),
		"created_at":     events.NewStringAttribute("2024-01-15T10:30:00.123456789Z"),
		"version":        events.NewNumberAttribute("1"),
		"gsi1pk":         events.NewStringAttribute("EVENTS"),
	}
}

func kinesisRecord(t *testing.T, seq, eventName string, image map[string]events.DynamoDBAttributeValue) events.KinesisEventRecord {
	t.Helper()
	data, err := json.Marshal(events.DynamoDBEventRecord{
		EventName: eventName,
		Change:    events.DynamoDBStreamRecord{NewImage: image},
	})
	require.NoError(t, err)
	return events.KinesisEventRecord{
		EventID: "shardId-000:" + seq,
		Kinesis: events.KinesisRecord{Data: data, SequenceNumber: seq},
	}
}

// ============================================
// Conversion Tests
// ============================================

func TestConvertDynamoDBImage(t *testing.T) {
	tests := []struct {
		name    string
		image   map[string]events.DynamoDBAttributeValue
		wantErr bool
	}{
		{name: "valid event", image: orderImage("event-123", "OrderPlaced")},
		{name: "nil image", image: nil, wantErr: true},
		{
			name:    "missing required fields",
			image:   map[string]events.DynamoDBAttributeValue{"id": events.NewStringAttribute("event-123")},
			wantErr: true,
		},
		{
			name: "invalid data",
			image: func() map[string]events.DynamoDBAttributeValue {
				img := orderImage("event-123", "OrderPlaced")
				img["data"] = events.NewStringAttribute("{broken")
				return img
			}(),
			wantErr: true,
		},
		{
			name: "bad timestamp",
			image: func() map[string]events.DynamoDBAttributeValue {
				img := orderImage("event-123", "OrderPlaced")
				img["created_at"] = events.NewStringAttribute("yesterday")
				return img
			}(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := convertDynamoDBImage(tt.image)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "event-123", event.ID)
			assert.Equal(t, "order-456", event.AggregateID)
			assert.Equal(t, "Order", event.AggregateType)
			assert.Equal(t, "OrderPlaced", event.EventType)
			assert.Equal(t, 1, event.Version)
			assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC), event.Timestamp)
			assert.JSONEq(t, `{"order_number":"BL123456789"}`, string(event.Data))
		})
	}
}

func TestConvertFromDynamoDBStreamRecord_IgnoresNonInserts(t *testing.T) {
	for _, name := range []string{"MODIFY", "REMOVE"} {
		event, err := ConvertFromDynamoDBStreamRecord(events.DynamoDBEventRecord{EventName: name})
		require.NoError(t, err)
		assert.Nil(t, event)
	}
}

func TestConvertFromKinesisRecord(t *testing.T) {
	event, err := ConvertFromKinesisRecord(kinesisRecord(t, "1", "INSERT", orderImage("event-123", "OrderPlaced")))
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "event-123", event.ID)

	_, err = ConvertFromKinesisRecord(events.KinesisEventRecord{Kinesis: events.KinesisRecord{Data: []byte("nope")}})
	assert.Error(t, err)
}

// ============================================
// Batch processing Tests
// ============================================

func TestProcess(t *testing.T) {
	batch := events.KinesisEvent{Records: []events.KinesisEventRecord{
		kinesisRecord(t, "1", "INSERT", orderImage("event-1", "OrderPlaced")),
		kinesisRecord(t, "2", "MODIFY", nil),
		{EventID: "3", Kinesis: events.KinesisRecord{Data: []byte("invalid json"), SequenceNumber: "3"}},
		kinesisRecord(t, "4", "INSERT", orderImage("event-4", "OrderPaid")),
	}}

	var handled []string
	resp := Process(context.Background(), batch, func(ctx context.Context, e store.Event) error {
		handled = append(handled, e.ID)
		if e.EventType == "OrderPaid" {
			return errors.New("smtp timeout")
		}
		return nil
	}, nil)

	assert.Equal(t, []string{"event-1", "event-4"}, handled)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "4", resp.BatchItemFailures[0].ItemIdentifier)
}
