package cart_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/print-storefront/internal/domain/cart"
	"github.com/example/print-storefront/internal/domain/catalog"
	"github.com/example/print-storefront/internal/infrastructure/store/mocks"
)

const testKey = "blockclick_cart"

func line(ref string, p catalog.ProductType, size string, price string, qty int) cart.Line {
	return cart.Line{
		ID:          ref + "-" + size,
		ProductType: p,
		Size:        size,
		UnitPrice:   decimal.RequireFromString(price),
		Quantity:    qty,
		AssetRef:    ref,
	}
}

func newTestEngine(debounce time.Duration) (*cart.Engine, *mocks.MockSnapshotStore) {
	snapshots := mocks.NewMockSnapshotStore()
	engine := cart.NewEngine(snapshots, cart.Options{Key: testKey, Debounce: debounce}, nil)
	return engine, snapshots
}

func storedLines(t *testing.T, snapshots *mocks.MockSnapshotStore) []cart.Line {
	t.Helper()
	data, ok := snapshots.Value(testKey)
	require.True(t, ok, "snapshot should exist")
	var lines []cart.Line
	require.NoError(t, json.Unmarshal(data, &lines))
	return lines
}

// ============================================
// Add / Remove / Update Tests
// ============================================

func TestEngine_AddLine_RejectsEphemeralReference(t *testing.T) {
	engine, snapshots := newTestEngine(time.Hour)

	_, err := engine.AddLine(line("blob:https://shop.example.com/1", catalog.ProductMagnet, "10x15", "4", 1))

	assert.ErrorIs(t, err, cart.ErrInvalidAssetReference)
	assert.Empty(t, engine.Lines())
	require.NoError(t, engine.Flush(context.Background()))
	assert.Empty(t, snapshots.Writes())
}

func TestEngine_AddLines_AllOrNothing(t *testing.T) {
	engine, _ := newTestEngine(time.Hour)

	_, err := engine.AddLines([]cart.Line{
		line("https://cdn.example.com/a.jpg", catalog.ProductMagnet, "10x15", "4", 1),
		line("data:image/png;base64,AAAA", catalog.ProductMagnet, "10x15", "4", 1),
	})

	assert.ErrorIs(t, err, cart.ErrInvalidAssetReference)
	assert.Empty(t, engine.Lines())
}

func TestEngine_AddLine_FillsIDAndTimestamp(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	engine := cart.NewEngine(mocks.NewMockSnapshotStore(), cart.Options{Now: func() time.Time { return now }}, nil)

	l := line("https://cdn.example.com/a.jpg", catalog.ProductMagnet, "10x15", "4", 1)
	l.ID = ""
	added, err := engine.AddLine(l)

	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, now, added.AddedAt)
}

func TestEngine_RemoveLine(t *testing.T) {
	engine, _ := newTestEngine(time.Hour)
	added, err := engine.AddLine(line("https://cdn.example.com/a.jpg", catalog.ProductMagnet, "10x15", "4", 1))
	require.NoError(t, err)

	require.NoError(t, engine.RemoveLine(added.ID))
	assert.Empty(t, engine.Lines())
	assert.ErrorIs(t, engine.RemoveLine(added.ID), cart.ErrLineNotFound)
}

func TestEngine_UpdateLine(t *testing.T) {
	engine, _ := newTestEngine(time.Hour)
	added, err := engine.AddLine(line("https://cdn.example.com/a.jpg", catalog.ProductBlock, "10x10", "18", 1))
	require.NoError(t, err)

	qty := 3
	orientation := catalog.OrientationLandscape
	updated, err := engine.UpdateLine(added.ID, cart.Patch{Quantity: &qty, Orientation: &orientation})

	require.NoError(t, err)
	assert.Equal(t, 3, updated.Quantity)
	assert.Equal(t, catalog.OrientationLandscape, updated.Orientation)
	assert.True(t, engine.Subtotal().Equal(decimal.NewFromInt(54)))

	zero := 0
	_, err = engine.UpdateLine(added.ID, cart.Patch{Quantity: &zero})
	assert.ErrorIs(t, err, cart.ErrInvalidQuantity)

	blob := "blob:https://shop.example.com/x"
	_, err = engine.UpdateLine(added.ID, cart.Patch{AssetRef: &blob})
	assert.ErrorIs(t, err, cart.ErrInvalidAssetReference)

	negative := decimal.NewFromInt(-2)
	_, err = engine.UpdateLine(added.ID, cart.Patch{UnitPrice: &negative})
	assert.ErrorIs(t, err, cart.ErrInvalidPrice)

	assert.Equal(t, 3, engine.Lines()[0].Quantity, "rejected patches leave the line unchanged")

	_, err = engine.UpdateLine("missing", cart.Patch{Quantity: &qty})
	assert.ErrorIs(t, err, cart.ErrLineNotFound)
}

func TestEngine_Summary(t *testing.T) {
	engine, _ := newTestEngine(time.Hour)
	ref := "https://cdn.example.com/a.jpg"
	first := line(ref, catalog.ProductMagnet, "10x15", "4", 2)
	second := first
	second.ID = "other"
	second.Quantity = 1

	_, err := engine.AddLine(first)
	require.NoError(t, err)
	_, err = engine.AddLine(second)
	require.NoError(t, err)

	summary := engine.Summary()
	require.Len(t, summary, 1)
	assert.Equal(t, 3, summary[0].Quantity)
	assert.Equal(t, 3, engine.ItemCount())
}

// ============================================
// Persistence Tests
// ============================================

func TestEngine_DebouncesWrites(t *testing.T) {
	engine, snapshots := newTestEngine(20 * time.Millisecond)

	for _, ref := range []string{"a", "b", "c"} {
		_, err := engine.AddLine(line("https://cdn.example.com/"+ref+".jpg", catalog.ProductPhoto, "10x15", "1", 1))
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return len(snapshots.Writes()) > 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	assert.Len(t, snapshots.Writes(), 1)
	assert.Len(t, storedLines(t, snapshots), 3)
}

func TestEngine_EmptyCartDeletesSnapshot(t *testing.T) {
	engine, snapshots := newTestEngine(time.Hour)
	ctx := context.Background()

	added, err := engine.AddLine(line("https://cdn.example.com/a.jpg", catalog.ProductMagnet, "10x15", "4", 1))
	require.NoError(t, err)
	require.NoError(t, engine.Flush(ctx))
	_, ok := snapshots.Value(testKey)
	require.True(t, ok)

	require.NoError(t, engine.RemoveLine(added.ID))
	require.NoError(t, engine.Flush(ctx))

	_, ok = snapshots.Value(testKey)
	assert.False(t, ok)
	writes := snapshots.Writes()
	assert.True(t, writes[len(writes)-1].Deleted)
}

func TestEngine_ClearRemovesSnapshotSynchronously(t *testing.T) {
	engine, snapshots := newTestEngine(50 * time.Millisecond)
	ctx := context.Background()

	_, err := engine.AddLine(line("https://cdn.example.com/a.jpg", catalog.ProductMagnet, "10x15", "4", 1))
	require.NoError(t, err)

	require.NoError(t, engine.Clear(ctx))

	_, ok := snapshots.Value(testKey)
	assert.False(t, ok)
	assert.Empty(t, engine.Lines())

	// The write scheduled before Clear must not bring the cart back.
	time.Sleep(120 * time.Millisecond)
	_, ok = snapshots.Value(testKey)
	assert.False(t, ok)
	assert.Len(t, snapshots.Writes(), 1)
}

func TestEngine_FailedWriteIsRetriedOnFlush(t *testing.T) {
	engine, snapshots := newTestEngine(time.Hour)
	ctx := context.Background()
	snapshots.SetFailures(errors.New("disk full"), nil)

	_, err := engine.AddLine(line("https://cdn.example.com/a.jpg", catalog.ProductMagnet, "10x15", "4", 1))
	require.NoError(t, err)

	assert.Error(t, engine.Flush(ctx))

	snapshots.SetFailures(nil, nil)
	require.NoError(t, engine.Flush(ctx))
	assert.Len(t, storedLines(t, snapshots), 1)
}

func TestEngine_ClearFailureKeepsError(t *testing.T) {
	engine, snapshots := newTestEngine(time.Hour)
	snapshots.SetFailures(nil, errors.New("unavailable"))

	err := engine.Clear(context.Background())

	assert.Error(t, err)
	assert.Empty(t, engine.Lines())
}

// ============================================
// Load Tests
// ============================================

func TestEngine_Load_FiltersEphemeralLines(t *testing.T) {
	engine, snapshots := newTestEngine(time.Hour)
	ctx := context.Background()

	stored := []cart.Line{
		line("https://cdn.example.com/a.jpg", catalog.ProductMagnet, "10x15", "4", 2),
		line("blob:https://shop.example.com/123", catalog.ProductMagnet, "10x15", "4", 1),
		line("data:image/jpeg;base64,AAAA", catalog.ProductPhoto, "10x15", "1", 1),
		line("https://cdn.example.com/b.jpg", catalog.ProductPhoto, "10x15", "1", 0),
	}
	data, err := json.Marshal(stored)
	require.NoError(t, err)
	snapshots.Put(testKey, data)

	require.NoError(t, engine.Load(ctx))

	lines := engine.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "https://cdn.example.com/a.jpg", lines[0].AssetRef)

	require.NoError(t, engine.Flush(ctx))
	assert.Len(t, storedLines(t, snapshots), 1, "filtered snapshot is written back")
}

func TestEngine_Load_DiscardsCorruptSnapshot(t *testing.T) {
	engine, snapshots := newTestEngine(time.Hour)
	snapshots.Put(testKey, []byte(`[{"id": "x", "quantity": `))

	require.NoError(t, engine.Load(context.Background()))

	assert.Empty(t, engine.Lines())
	_, ok := snapshots.Value(testKey)
	assert.False(t, ok)
}

func TestEngine_Load_Empty(t *testing.T) {
	engine, snapshots := newTestEngine(time.Hour)

	require.NoError(t, engine.Load(context.Background()))

	assert.Empty(t, engine.Lines())
	assert.Empty(t, snapshots.Writes())
}

func TestEngine_Load_ReadError(t *testing.T) {
	engine, snapshots := newTestEngine(time.Hour)
	snapshots.GetErr = errors.New("connection refused")

	assert.Error(t, engine.Load(context.Background()))
}

func TestEngine_RoundTripAcrossSessions(t *testing.T) {
	engine, snapshots := newTestEngine(time.Hour)
	ctx := context.Background()

	l := line("https://cdn.example.com/a.jpg", catalog.ProductBlock, "10x15", "22", 2)
	l.Orientation = catalog.OrientationLandscape
	_, err := engine.AddLine(l)
	require.NoError(t, err)
	require.NoError(t, engine.Close(ctx))

	next := cart.NewEngine(snapshots, cart.Options{Key: testKey}, nil)
	require.NoError(t, next.Load(ctx))

	lines := next.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, catalog.OrientationLandscape, lines[0].Orientation)
	assert.True(t, next.Subtotal().Equal(decimal.NewFromInt(44)))
}
