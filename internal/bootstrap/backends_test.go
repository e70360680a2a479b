package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/print-storefront/internal/config"
	"github.com/example/print-storefront/internal/infrastructure/store"
)

func TestOpen_MemoryBackends(t *testing.T) {
	cfg := &config.Config{
		EventStore:    config.StoreMemory,
		SnapshotStore: config.StoreMemory,
		CouponStore:   config.StoreMemory,
	}

	b, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer b.Close(nil)

	assert.IsType(t, &store.EventStore{}, b.Events)
	assert.IsType(t, &store.SnapshotStore{}, b.Snapshots)
	assert.IsType(t, &store.CouponStore{}, b.Coupons)
	assert.Empty(t, b.closers)
}
