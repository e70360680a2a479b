package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStore_GetMissing(t *testing.T) {
	s := NewSnapshotStore()

	v, err := s.Get(context.Background(), "blockclick_cart")

	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSnapshotStore_SetGetDelete(t *testing.T) {
	s := NewSnapshotStore()
	ctx := context.Background()

	value := []byte(`[{"id":"1"}]`)
	require.NoError(t, s.Set(ctx, "cart", value))
	value[0] = 'x'

	got, err := s.Get(ctx, "cart")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1"}]`, string(got), "stored value is a copy")

	got[0] = 'y'
	again, _ := s.Get(ctx, "cart")
	assert.Equal(t, byte('['), again[0], "returned value is a copy")

	require.NoError(t, s.Delete(ctx, "cart"))
	got, err = s.Get(ctx, "cart")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, s.Delete(ctx, "cart"), "deleting a missing key is not an error")
}
