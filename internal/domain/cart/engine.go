package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/domain/catalog"
)

const (
	DefaultSnapshotKey = "blockclick_cart"
	DefaultDebounce    = 100 * time.Millisecond
)

// SnapshotStore is a key to JSON document store. Get returns nil, nil when the
// key is absent.
type SnapshotStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type Options struct {
	Key      string
	Debounce time.Duration
	Now      func() time.Time
}

// Patch changes selected fields of a line. Nil fields are left untouched.
type Patch struct {
	Quantity    *int
	UnitPrice   *decimal.Decimal
	Orientation *catalog.Orientation
	AssetRef    *string
}

// Engine owns the cart lines and their persisted snapshot.
//
// Mutations replace the line slice and mark the cart dirty; a single timer
// coalesces bursts into one write after the debounce window. Writes and Clear
// are serialized so a delayed write can never restore a cleared cart.
type Engine struct {
	store  SnapshotStore
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	lines  []Line
	dirty  bool
	timer  *time.Timer
	closed bool

	persistMu sync.Mutex
}

func NewEngine(store SnapshotStore, opts Options, logger *zap.Logger) *Engine {
	if opts.Key == "" {
		opts.Key = DefaultSnapshotKey
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  store,
		opts:   opts,
		logger: logger.Named("cart"),
	}
}

// Load restores the persisted snapshot, dropping every line that is not valid
// anymore. An unreadable snapshot is discarded.
func (e *Engine) Load(ctx context.Context) error {
	data, err := e.store.Get(ctx, e.opts.Key)
	if err != nil {
		return fmt.Errorf("failed to read cart snapshot: %w", err)
	}

	var stored []Line
	if len(data) > 0 {
		if err := json.Unmarshal(data, &stored); err != nil {
			e.logger.Warn("Discarding unreadable cart snapshot", zap.Error(err))
			if err := e.store.Delete(ctx, e.opts.Key); err != nil {
				return fmt.Errorf("failed to discard cart snapshot: %w", err)
			}
			stored = nil
		}
	}

	kept := make([]Line, 0, len(stored))
	for _, l := range stored {
		if err := l.Validate(); err != nil {
			e.logger.Info("Dropping restored cart line", zap.String("line_id", l.ID), zap.Error(err))
			continue
		}
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		kept = append(kept, l)
	}

	e.mu.Lock()
	e.lines = kept
	if len(kept) != len(stored) {
		e.markDirtyLocked()
	}
	e.mu.Unlock()
	return nil
}

// AddLine validates and appends a line. A missing ID or timestamp is filled in.
func (e *Engine) AddLine(l Line) (Line, error) {
	added, err := e.AddLines([]Line{l})
	if err != nil {
		return Line{}, err
	}
	return added[0], nil
}

// AddLines appends all lines or none of them.
func (e *Engine) AddLines(lines []Line) ([]Line, error) {
	prepared := make([]Line, len(lines))
	now := e.opts.Now()
	for i, l := range lines {
		if err := l.Validate(); err != nil {
			return nil, err
		}
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		if l.AddedAt.IsZero() {
			l.AddedAt = now
		}
		prepared[i] = l
	}

	e.mu.Lock()
	next := make([]Line, 0, len(e.lines)+len(prepared))
	next = append(next, e.lines...)
	next = append(next, prepared...)
	e.lines = next
	e.markDirtyLocked()
	e.mu.Unlock()

	for _, l := range prepared {
		e.logger.Debug("Line added",
			zap.String("line_id", l.ID),
			zap.String("product", string(l.ProductType)),
			zap.Int("quantity", l.Quantity))
	}
	return prepared, nil
}

func (e *Engine) RemoveLine(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrLineNotFound, id)
	}
	next := make([]Line, 0, len(e.lines)-1)
	next = append(next, e.lines[:idx]...)
	next = append(next, e.lines[idx+1:]...)
	e.lines = next
	e.markDirtyLocked()
	return nil
}

func (e *Engine) UpdateLine(id string, p Patch) (Line, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(id)
	if idx < 0 {
		return Line{}, fmt.Errorf("%w: %s", ErrLineNotFound, id)
	}
	l := e.lines[idx]
	if p.Quantity != nil {
		l.Quantity = *p.Quantity
	}
	if p.UnitPrice != nil {
		l.UnitPrice = *p.UnitPrice
	}
	if p.Orientation != nil {
		l.Orientation = *p.Orientation
	}
	if p.AssetRef != nil {
		l.AssetRef = *p.AssetRef
	}
	if err := l.Validate(); err != nil {
		return Line{}, err
	}

	next := make([]Line, len(e.lines))
	copy(next, e.lines)
	next[idx] = l
	e.lines = next
	e.markDirtyLocked()
	return l, nil
}

// Clear empties the cart and removes the snapshot before returning.
func (e *Engine) Clear(ctx context.Context) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.Lock()
	e.lines = nil
	e.dirty = false
	if e.timer != nil {
		e.timer.Stop()
	}
	e.mu.Unlock()

	if err := e.store.Delete(ctx, e.opts.Key); err != nil {
		e.mu.Lock()
		e.dirty = true
		e.mu.Unlock()
		return fmt.Errorf("failed to delete cart snapshot: %w", err)
	}
	e.logger.Info("Cart cleared")
	return nil
}

// Lines returns a copy of the lines in insertion order.
func (e *Engine) Lines() []Line {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Line, len(e.lines))
	copy(out, e.lines)
	return out
}

func (e *Engine) Summary() []Group {
	return Summarize(e.Lines())
}

func (e *Engine) Subtotal() decimal.Decimal {
	return Subtotal(e.Lines())
}

func (e *Engine) ItemCount() int {
	return ItemCount(e.Lines())
}

// Flush writes a pending change immediately.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
	}
	e.mu.Unlock()
	return e.persist(ctx)
}

// Close flushes pending changes and stops further scheduled writes.
func (e *Engine) Close(ctx context.Context) error {
	err := e.Flush(ctx)
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return err
}

func (e *Engine) markDirtyLocked() {
	e.dirty = true
	if e.closed {
		return
	}
	if e.timer == nil {
		e.timer = time.AfterFunc(e.opts.Debounce, e.persistLater)
		return
	}
	e.timer.Reset(e.opts.Debounce)
}

func (e *Engine) persistLater() {
	if err := e.persist(context.Background()); err != nil {
		e.logger.Error("Failed to persist cart", zap.Error(err))
	}
}

func (e *Engine) persist(ctx context.Context) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.Lock()
	if !e.dirty {
		e.mu.Unlock()
		return nil
	}
	lines := e.lines
	e.dirty = false
	e.mu.Unlock()

	var err error
	if len(lines) == 0 {
		err = e.store.Delete(ctx, e.opts.Key)
	} else {
		var data []byte
		data, err = json.Marshal(lines)
		if err == nil {
			err = e.store.Set(ctx, e.opts.Key, data)
		}
	}
	if err != nil {
		e.mu.Lock()
		e.dirty = true
		e.mu.Unlock()
		return fmt.Errorf("failed to write cart snapshot: %w", err)
	}
	e.logger.Debug("Cart persisted", zap.Int("lines", len(lines)))
	return nil
}

func (e *Engine) indexLocked(id string) int {
	for i := range e.lines {
		if e.lines[i].ID == id {
			return i
		}
	}
	return -1
}
