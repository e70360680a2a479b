package store

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo is an in-memory stand-in for the handful of DynamoDB calls the
// stores make. Query pages through results two items at a time.
type fakeDynamo struct {
	mu     sync.Mutex
	tables map[string][]map[string]types.AttributeValue
	putErr error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{tables: make(map[string][]map[string]types.AttributeValue)}
}

func attrS(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func attrN(item map[string]types.AttributeValue, name string) int {
	if v, ok := item[name].(*types.AttributeValueMemberN); ok {
		n, _ := strconv.Atoi(v.Value)
		return n
	}
	return 0
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}
	table := *in.TableName
	if _, ok := in.Item["snapshot_key"]; ok {
		key := attrS(in.Item, "snapshot_key")
		for i, item := range f.tables[table] {
			if attrS(item, "snapshot_key") == key {
				f.tables[table][i] = in.Item
				return &dynamodb.PutItemOutput{}, nil
			}
		}
	} else {
		for _, item := range f.tables[table] {
			if attrS(item, "aggregate_id") == attrS(in.Item, "aggregate_id") && attrN(item, "version") == attrN(in.Item, "version") {
				return nil, &types.ConditionalCheckFailedException{}
			}
		}
	}
	f.tables[table] = append(f.tables[table], in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := attrS(in.Key, "snapshot_key")
	for _, item := range f.tables[*in.TableName] {
		if attrS(item, "snapshot_key") == key {
			return &dynamodb.GetItemOutput{Item: item}, nil
		}
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := attrS(in.Key, "snapshot_key")
	items := f.tables[*in.TableName]
	for i, item := range items {
		if attrS(item, "snapshot_key") == key {
			f.tables[*in.TableName] = append(items[:i:i], items[i+1:]...)
			break
		}
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []map[string]types.AttributeValue
	if in.IndexName != nil {
		matched = append(matched, f.tables[*in.TableName]...)
		sort.SliceStable(matched, func(i, j int) bool {
			return attrS(matched[i], "created_at") < attrS(matched[j], "created_at")
		})
	} else {
		aid := attrS(in.ExpressionAttributeValues, ":aid")
		for _, item := range f.tables[*in.TableName] {
			if attrS(item, "aggregate_id") == aid {
				matched = append(matched, item)
			}
		}
		sort.SliceStable(matched, func(i, j int) bool {
			return attrN(matched[i], "version") < attrN(matched[j], "version")
		})
		if in.ScanIndexForward != nil && !*in.ScanIndexForward {
			for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
				matched[i], matched[j] = matched[j], matched[i]
			}
		}
	}

	start := 0
	if in.ExclusiveStartKey != nil {
		start = attrN(in.ExclusiveStartKey, "offset")
	}
	pageSize := 2
	if in.Limit != nil {
		pageSize = int(*in.Limit)
	}
	end := start + pageSize
	out := &dynamodb.QueryOutput{}
	if end < len(matched) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"offset": &types.AttributeValueMemberN{Value: strconv.Itoa(end)},
		}
	} else {
		end = len(matched)
	}
	if start < end {
		out.Items = matched[start:end]
	}
	return out, nil
}

// ============================================
// DynamoEventStore Tests
// ============================================

func TestDynamoEventStore_AppendAndReplay(t *testing.T) {
	client := newFakeDynamo()
	es := NewDynamoEventStore(client, "events")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e, err := es.Append(ctx, "order-1", "Order", "OrderPlaced", map[string]int{"n": i})
		require.NoError(t, err)
		assert.Equal(t, i+1, e.Version)
	}
	_, err := es.Append(ctx, "order-2", "Order", "OrderPlaced", map[string]int{"n": 9})
	require.NoError(t, err)

	events, err := es.GetEvents(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, events, 5, "all pages are read")
	for i, e := range events {
		assert.Equal(t, i+1, e.Version)
		assert.JSONEq(t, `{"n":`+strconv.Itoa(i)+`}`, string(e.Data))
	}

	all, err := es.GetAllEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestDynamoEventStore_PutFailure(t *testing.T) {
	client := newFakeDynamo()
	client.putErr = errors.New("throttled")
	es := NewDynamoEventStore(client, "events")

	_, err := es.Append(context.Background(), "order-1", "Order", "OrderPlaced", struct{}{})

	assert.ErrorContains(t, err, "throttled")
}

// ============================================
// DynamoSnapshotStore Tests
// ============================================

func TestDynamoSnapshotStore(t *testing.T) {
	s := NewDynamoSnapshotStore(newFakeDynamo(), "snapshots")
	ctx := context.Background()

	v, err := s.Get(ctx, "blockclick_cart")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.Set(ctx, "blockclick_cart", []byte(`[1]`)))
	require.NoError(t, s.Set(ctx, "blockclick_cart", []byte(`[1,2]`)))

	v, err = s.Get(ctx, "blockclick_cart")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(v))

	require.NoError(t, s.Delete(ctx, "blockclick_cart"))
	v, err = s.Get(ctx, "blockclick_cart")
	require.NoError(t, err)
	assert.Nil(t, v)
}
