package store

import (
	"sort"
	"sync"
)

// ReadStore is an in-memory read model store. Read models are rebuilt from
// the event log on start, so nothing here is persisted.
type ReadStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]any
}

func NewReadStore() *ReadStore {
	return &ReadStore{collections: make(map[string]map[string]any)}
}

func (rs *ReadStore) Set(collection, id string, data any) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.collectionLocked(collection)[id] = data
}

func (rs *ReadStore) Get(collection, id string) (any, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	data, ok := rs.collections[collection][id]
	return data, ok
}

func (rs *ReadStore) List(collection string) []any {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	items := rs.collections[collection]
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = items[id]
	}
	return out
}

func (rs *ReadStore) Count(collection string) int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.collections[collection])
}

func (rs *ReadStore) Upsert(collection, id string, fn func(current any, exists bool) any) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	items := rs.collectionLocked(collection)
	current, exists := items[id]
	next := fn(current, exists)
	if next == nil {
		return false
	}
	items[id] = next
	return true
}

func (rs *ReadStore) collectionLocked(collection string) map[string]any {
	items, ok := rs.collections[collection]
	if !ok {
		items = make(map[string]any)
		rs.collections[collection] = items
	}
	return items
}
