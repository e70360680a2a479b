package store

// ReadStoreInterface holds projected read models, keyed by collection and id.
type ReadStoreInterface interface {
	// Set stores a read model, replacing any previous value
	Set(collection, id string, data any)

	// Get retrieves a read model by id
	Get(collection, id string) (any, bool)

	// List returns every item of a collection ordered by id
	List(collection string) []any

	// Count returns the number of items in a collection
	Count(collection string) int

	// Upsert stores fn(current, exists) atomically and reports whether a
	// value was stored. A nil result leaves the entry untouched.
	Upsert(collection, id string, fn func(current any, exists bool) any) bool
}
