package asset

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Config tunes the upload lifecycle. Zero values are replaced by the defaults
// from DefaultConfig, except MaxConcurrent where 0 means unbounded and
// ProgressInterval where a negative value disables progress estimation.
type Config struct {
	MaxAttempts      int
	RetryBaseDelay   time.Duration
	ProgressInterval time.Duration
	ProgressCeiling  float64
	MaxStartJitter   time.Duration
	MaxConcurrent    int

	// Preview builds the local preview for a newly added file. Optional.
	Preview func(FileHandle) PreviewHandle
	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter picks the start delay for a new upload in [0, max).
	Jitter func(max time.Duration) time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		RetryBaseDelay:   time.Second,
		ProgressInterval: 200 * time.Millisecond,
		ProgressCeiling:  90,
		MaxStartJitter:   200 * time.Millisecond,
		MaxConcurrent:    4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBaseDelay < 0 {
		c.RetryBaseDelay = 0
	}
	if c.ProgressInterval == 0 {
		c.ProgressInterval = d.ProgressInterval
	}
	if c.ProgressCeiling <= 0 || c.ProgressCeiling > 100 {
		c.ProgressCeiling = d.ProgressCeiling
	}
	if c.MaxStartJitter < 0 {
		c.MaxStartJitter = 0
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	if c.Jitter == nil {
		c.Jitter = randomJitter
	}
	return c
}

// Orchestrator owns the lifecycle of every selected image: scheduling,
// concurrent transfer, retry and the progress estimate.
//
// The asset collection is replaced wholesale on every mutation and each entry
// is only ever rewritten by identity, so concurrent completions never clobber
// each other. Every background step carries the generation it was started
// with; once an asset is removed or retried the old generation no longer
// matches and late callbacks are dropped.
//
// Progress is an approximation: the Uploader does not report bytes, so while a
// transfer is outstanding the estimate climbs in shrinking steps towards
// ProgressCeiling without reaching it, and jumps to 100 on success.
type Orchestrator struct {
	uploader Uploader
	cfg      Config
	logger   *zap.Logger
	sem      *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	assets    []ImageAsset
	gens      map[string]uint64
	nextGen   uint64
	changed   chan struct{}
	closed    bool
	listeners []func([]ImageAsset)

	notifyMu sync.Mutex
}

func NewOrchestrator(uploader Uploader, cfg Config, logger *zap.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		uploader: uploader,
		cfg:      cfg,
		logger:   logger.Named("orchestrator"),
		ctx:      ctx,
		cancel:   cancel,
		gens:     make(map[string]uint64),
		changed:  make(chan struct{}),
	}
	if cfg.MaxConcurrent > 0 {
		o.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return o
}

// OnChange registers a listener that receives the full asset list after every
// change. Listeners run sequentially and must not block or call back into
// mutating methods synchronously.
func (o *Orchestrator) OnChange(fn func([]ImageAsset)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// AddAssets creates a Pending asset per file, schedules its upload in the
// background and returns the updated collection immediately.
func (o *Orchestrator) AddAssets(files ...FileHandle) []ImageAsset {
	type job struct {
		id  string
		gen uint64
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.logger.Warn("Ignoring files added after close", zap.Int("count", len(files)))
		return o.Snapshot()
	}
	next := make([]ImageAsset, len(o.assets), len(o.assets)+len(files))
	copy(next, o.assets)
	jobs := make([]job, 0, len(files))
	for _, f := range files {
		if f == nil {
			continue
		}
		a := ImageAsset{
			ID:       uuid.New().String(),
			Name:     f.Name(),
			Source:   f,
			Quantity: 1,
			State:    StatePending,
		}
		if o.cfg.Preview != nil {
			a.Preview = o.cfg.Preview(f)
		}
		o.nextGen++
		o.gens[a.ID] = o.nextGen
		next = append(next, a)
		jobs = append(jobs, job{id: a.ID, gen: o.nextGen})
	}
	o.assets = next
	o.signalLocked()
	o.mu.Unlock()

	for _, j := range jobs {
		o.schedule(j.id, j.gen, o.cfg.Jitter(o.cfg.MaxStartJitter))
	}
	o.emit()
	return o.Snapshot()
}

// Remove drops the asset, releases its preview and turns every outstanding
// callback for it into a no-op. The returned value carries StateRemoved.
// An in-flight transfer is not aborted; its result is discarded.
func (o *Orchestrator) Remove(id string) (ImageAsset, error) {
	o.mu.Lock()
	idx := o.indexLocked(id)
	if idx < 0 {
		o.mu.Unlock()
		return ImageAsset{}, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	removed := o.assets[idx]
	next := make([]ImageAsset, 0, len(o.assets)-1)
	next = append(next, o.assets[:idx]...)
	next = append(next, o.assets[idx+1:]...)
	o.assets = next
	delete(o.gens, id)
	o.signalLocked()
	o.mu.Unlock()

	if removed.Preview != nil {
		removed.Preview.Release()
	}
	removed.State = StateRemoved
	removed.Preview = nil
	o.logger.Debug("Asset removed", zap.String("asset_id", id))
	o.emit()
	return removed, nil
}

// Retry restarts a Failed asset with a fresh attempt counter.
func (o *Orchestrator) Retry(id string) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOrchestratorDone
	}
	idx := o.indexLocked(id)
	if idx < 0 {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	if o.assets[idx].State != StateFailed {
		state := o.assets[idx].State
		o.mu.Unlock()
		return fmt.Errorf("%w: asset %s is %s", ErrNotRetryable, id, state)
	}
	o.nextGen++
	gen := o.nextGen
	o.gens[id] = gen
	o.replaceLocked(idx, func(a *ImageAsset) {
		a.State = StatePending
		a.Progress = 0
		a.FailureReason = ""
		a.Attempts = 0
	})
	o.mu.Unlock()

	o.schedule(id, gen, 0)
	o.emit()
	return nil
}

// SetQuantity changes how many prints of the asset are ordered.
func (o *Orchestrator) SetQuantity(id string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	o.mu.Lock()
	idx := o.indexLocked(id)
	if idx < 0 {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	o.replaceLocked(idx, func(a *ImageAsset) { a.Quantity = quantity })
	o.mu.Unlock()

	o.emit()
	return nil
}

// Get returns a copy of the asset with the given id.
func (o *Orchestrator) Get(id string) (ImageAsset, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	idx := o.indexLocked(id)
	if idx < 0 {
		return ImageAsset{}, false
	}
	return o.assets[idx], true
}

// Snapshot returns a copy of the current collection in insertion order.
func (o *Orchestrator) Snapshot() []ImageAsset {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]ImageAsset, len(o.assets))
	copy(out, o.assets)
	return out
}

// Uploaded returns only the assets holding a durable reference.
func (o *Orchestrator) Uploaded() []ImageAsset {
	var out []ImageAsset
	for _, a := range o.Snapshot() {
		if a.State == StateUploaded {
			out = append(out, a)
		}
	}
	return out
}

// AllUploaded reports whether every live asset finished successfully.
func (o *Orchestrator) AllUploaded() bool {
	for _, a := range o.Snapshot() {
		if a.State != StateUploaded {
			return false
		}
	}
	return true
}

// Wait blocks until no asset is Pending or Uploading, or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	for {
		o.mu.Lock()
		idle := true
		for _, a := range o.assets {
			if !a.Settled() {
				idle = false
				break
			}
		}
		ch := o.changed
		o.mu.Unlock()

		if idle {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops background work and waits for it to exit. Assets still in
// flight keep their last observed state.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) schedule(id string, gen uint64, delay time.Duration) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if delay > 0 {
			if err := o.cfg.Sleep(o.ctx, delay); err != nil {
				return
			}
		}
		if o.sem != nil {
			if err := o.sem.Acquire(o.ctx, 1); err != nil {
				return
			}
			defer o.sem.Release(1)
		}
		o.run(id, gen)
	}()
}

func (o *Orchestrator) run(id string, gen uint64) {
	var file FileHandle
	started := o.update(id, gen, func(a *ImageAsset) bool {
		a.State = StateUploading
		a.Progress = 0
		a.FailureReason = ""
		a.Attempts = 0
		file = a.Source
		return true
	})
	if !started {
		return
	}
	log := o.logger.With(zap.String("asset_id", id), zap.String("name", file.Name()))

	ctx, stop := context.WithCancel(o.ctx)
	defer stop()
	if o.cfg.ProgressInterval > 0 {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.estimateProgress(ctx, id, gen)
		}()
	}

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if !o.update(id, gen, func(a *ImageAsset) bool { a.Attempts = attempt; return true }) {
			return
		}

		ref, err := o.uploader.Upload(ctx, file)
		if err == nil && ref == "" {
			err = ErrEmptyReference
		}
		if err == nil {
			stop()
			if o.update(id, gen, func(a *ImageAsset) bool {
				a.State = StateUploaded
				a.RemoteRef = ref
				a.Progress = 100
				return true
			}) {
				log.Info("Upload complete", zap.Int("attempt", attempt), zap.String("remote_ref", ref))
			}
			return
		}

		lastErr = err
		if o.ctx.Err() != nil {
			return
		}
		log.Warn("Upload attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < o.cfg.MaxAttempts {
			if err := o.cfg.Sleep(o.ctx, time.Duration(attempt)*o.cfg.RetryBaseDelay); err != nil {
				return
			}
		}
	}

	stop()
	if o.update(id, gen, func(a *ImageAsset) bool {
		a.State = StateFailed
		a.Progress = 0
		a.FailureReason = lastErr.Error()
		return true
	}) {
		log.Error("Upload failed", zap.Int("attempts", o.cfg.MaxAttempts), zap.Error(lastErr))
	}
}

func (o *Orchestrator) estimateProgress(ctx context.Context, id string, gen uint64) {
	limit := o.cfg.ProgressCeiling - 1
	for {
		if err := o.cfg.Sleep(ctx, o.cfg.ProgressInterval); err != nil {
			return
		}
		done := false
		alive := o.update(id, gen, func(a *ImageAsset) bool {
			if a.State != StateUploading || a.Progress >= limit {
				done = true
				return false
			}
			a.Progress = nextProgress(a.Progress, o.cfg.ProgressCeiling)
			done = a.Progress >= limit
			return true
		})
		if !alive || done {
			return
		}
	}
}

// nextProgress advances the estimate by a step that shrinks as it nears the
// ceiling, staying at least one point below it.
func nextProgress(current, ceiling float64) float64 {
	next := current + math.Max(1, (ceiling-current)/10)
	if next > ceiling-1 {
		next = ceiling - 1
	}
	if next < current {
		return current
	}
	return next
}

// update applies fn to the asset when its generation still matches. It
// reports false when the asset is gone or was restarted.
func (o *Orchestrator) update(id string, gen uint64, fn func(*ImageAsset) bool) bool {
	o.mu.Lock()
	if current, ok := o.gens[id]; !ok || current != gen {
		o.mu.Unlock()
		return false
	}
	idx := o.indexLocked(id)
	if idx < 0 {
		o.mu.Unlock()
		return false
	}
	draft := o.assets[idx]
	if !fn(&draft) {
		o.mu.Unlock()
		return true
	}
	o.replaceLocked(idx, func(a *ImageAsset) { *a = draft })
	o.mu.Unlock()

	o.emit()
	return true
}

func (o *Orchestrator) replaceLocked(idx int, fn func(*ImageAsset)) {
	next := make([]ImageAsset, len(o.assets))
	copy(next, o.assets)
	fn(&next[idx])
	o.assets = next
	o.signalLocked()
}

func (o *Orchestrator) indexLocked(id string) int {
	for i := range o.assets {
		if o.assets[i].ID == id {
			return i
		}
	}
	return -1
}

func (o *Orchestrator) signalLocked() {
	close(o.changed)
	o.changed = make(chan struct{})
}

func (o *Orchestrator) emit() {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	listeners := o.listeners
	o.mu.Unlock()
	if len(listeners) == 0 {
		return
	}
	list := o.Snapshot()
	for _, fn := range listeners {
		fn(list)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
