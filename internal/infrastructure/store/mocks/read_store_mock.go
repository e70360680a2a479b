package mocks

import (
	"sort"
	"sync"
)

// MockReadStore is a mock implementation of ReadStoreInterface for testing
type MockReadStore struct {
	mu   sync.RWMutex
	data map[string]map[string]any // collection -> id -> data

	// For tracking calls in tests
	SetCalls    []SetCall
	UpsertCalls []UpsertCall
}

// SetCall records parameters passed to Set
type SetCall struct {
	Collection string
	ID         string
	Data       any
}

// UpsertCall records parameters passed to Upsert and whether it stored a value
type UpsertCall struct {
	Collection string
	ID         string
	Stored     bool
}

// NewMockReadStore creates a new MockReadStore
func NewMockReadStore() *MockReadStore {
	return &MockReadStore{data: make(map[string]map[string]any)}
}

func (m *MockReadStore) Set(collection, id string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetCalls = append(m.SetCalls, SetCall{Collection: collection, ID: id, Data: data})
	m.putLocked(collection, id, data)
}

func (m *MockReadStore) Get(collection, id string) (any, bool) {
	return m.GetData(collection, id)
}

func (m *MockReadStore) List(collection string) []any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.data[collection]))
	for id := range m.data[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	items := make([]any, len(ids))
	for i, id := range ids {
		items[i] = m.data[collection][id]
	}
	return items
}

func (m *MockReadStore) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[collection])
}

func (m *MockReadStore) Upsert(collection, id string, fn func(current any, exists bool) any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.data[collection][id]
	next := fn(current, exists)
	m.UpsertCalls = append(m.UpsertCalls, UpsertCall{Collection: collection, ID: id, Stored: next != nil})
	if next == nil {
		return false
	}
	m.putLocked(collection, id, next)
	return true
}

// Writes counts calls that stored a value
func (m *MockReadStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.SetCalls)
	for _, c := range m.UpsertCalls {
		if c.Stored {
			n++
		}
	}
	return n
}

// SetData sets data directly for testing
func (m *MockReadStore) SetData(collection, id string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(collection, id, data)
}

// GetData gets data directly for testing
func (m *MockReadStore) GetData(collection, id string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[collection][id]
	return data, ok
}

func (m *MockReadStore) putLocked(collection, id string, data any) {
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]any)
	}
	m.data[collection][id] = data
}
