package mocks

import (
	"context"
	"sync"
)

// MockSnapshotStore is a mock key/value snapshot store for testing
type MockSnapshotStore struct {
	mu   sync.Mutex
	data map[string][]byte

	// For tracking calls in tests
	writes    []SnapshotWrite
	GetErr    error
	SetErr    error
	DeleteErr error
}

// SnapshotWrite records a Set or Delete call in call order
type SnapshotWrite struct {
	Key     string
	Value   []byte
	Deleted bool
}

func NewMockSnapshotStore() *MockSnapshotStore {
	return &MockSnapshotStore{data: make(map[string][]byte)}
}

func (m *MockSnapshotStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *MockSnapshotStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, SnapshotWrite{Key: key, Value: append([]byte(nil), value...)})
	if m.SetErr != nil {
		return m.SetErr
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MockSnapshotStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, SnapshotWrite{Key: key, Deleted: true})
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.data, key)
	return nil
}

// Put seeds a value without recording a write
func (m *MockSnapshotStore) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

// Value returns the stored value and whether the key exists
func (m *MockSnapshotStore) Value(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// Writes returns a copy of the recorded writes
func (m *MockSnapshotStore) Writes() []SnapshotWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SnapshotWrite(nil), m.writes...)
}

// SetFailures sets the errors returned by Set and Delete
func (m *MockSnapshotStore) SetFailures(setErr, deleteErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetErr = setErr
	m.DeleteErr = deleteErr
}
