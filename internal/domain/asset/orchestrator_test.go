package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================
// Test doubles
// ============================================

type memFile struct {
	name string
}

func (f memFile) Name() string { return f.name }

func (f memFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("image-bytes")), nil
}

type fakePreview struct {
	mu       sync.Mutex
	released bool
}

func (p *fakePreview) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
}

func (p *fakePreview) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

type fakeUploader struct {
	mu          sync.Mutex
	failures    map[string]int
	emptyRef    bool
	calls       map[string]int
	gate        chan struct{}
	inFlight    int
	maxInFlight int
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{failures: map[string]int{}, calls: map[string]int{}}
}

func (u *fakeUploader) Upload(ctx context.Context, file FileHandle) (string, error) {
	u.mu.Lock()
	u.calls[file.Name()]++
	u.inFlight++
	if u.inFlight > u.maxInFlight {
		u.maxInFlight = u.inFlight
	}
	gate := u.gate
	u.mu.Unlock()

	defer func() {
		u.mu.Lock()
		u.inFlight--
		u.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failures[file.Name()] > 0 {
		u.failures[file.Name()]--
		return "", errors.New("network unreachable")
	}
	if u.emptyRef {
		return "", nil
	}
	return "https://cdn.example.com/" + file.Name(), nil
}

func (u *fakeUploader) Calls(name string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[name]
}

func (u *fakeUploader) MaxInFlight() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.maxInFlight
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func testConfig(sleep *sleepRecorder) Config {
	return Config{
		MaxAttempts:      3,
		RetryBaseDelay:   time.Second,
		ProgressInterval: -1,
		MaxConcurrent:    4,
		Sleep:            sleep.Sleep,
		Jitter:           func(time.Duration) time.Duration { return 0 },
	}
}

func waitIdle(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Wait(ctx))
}

// ============================================
// Upload lifecycle
// ============================================

func TestOrchestrator_UploadSucceeds(t *testing.T) {
	up := newFakeUploader()
	o := NewOrchestrator(up, testConfig(&sleepRecorder{}), nil)
	defer o.Close()

	added := o.AddAssets(memFile{name: "cat.jpg"})
	require.Len(t, added, 1)
	assert.Equal(t, 1, added[0].Quantity)

	waitIdle(t, o)

	got, ok := o.Get(added[0].ID)
	require.True(t, ok)
	assert.Equal(t, StateUploaded, got.State)
	assert.Equal(t, "https://cdn.example.com/cat.jpg", got.RemoteRef)
	assert.Equal(t, 100, got.Percent())
	assert.Equal(t, 1, got.Attempts)
	assert.True(t, o.AllUploaded())
}

func TestOrchestrator_RetryConvergence(t *testing.T) {
	tests := []struct {
		name         string
		failures     int
		wantState    State
		wantAttempts int
		wantSleeps   []time.Duration
	}{
		{"no failures", 0, StateUploaded, 1, nil},
		{"one failure", 1, StateUploaded, 2, []time.Duration{time.Second}},
		{"two failures", 2, StateUploaded, 3, []time.Duration{time.Second, 2 * time.Second}},
		{"three failures", 3, StateFailed, 3, []time.Duration{time.Second, 2 * time.Second}},
		{"five failures", 5, StateFailed, 3, []time.Duration{time.Second, 2 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newFakeUploader()
			up.failures["dog.png"] = tt.failures
			sleep := &sleepRecorder{}
			o := NewOrchestrator(up, testConfig(sleep), nil)
			defer o.Close()

			id := o.AddAssets(memFile{name: "dog.png"})[0].ID
			waitIdle(t, o)

			got, _ := o.Get(id)
			assert.Equal(t, tt.wantState, got.State)
			assert.Equal(t, tt.wantAttempts, got.Attempts)
			assert.Equal(t, tt.wantAttempts, up.Calls("dog.png"))
			assert.Equal(t, tt.wantSleeps, sleep.Delays())

			if tt.wantState == StateUploaded {
				assert.NotEmpty(t, got.RemoteRef)
				assert.Empty(t, got.FailureReason)
			} else {
				assert.Empty(t, got.RemoteRef)
				assert.Contains(t, got.FailureReason, "network unreachable")
			}
		})
	}
}

func TestOrchestrator_EmptyReferenceIsFailure(t *testing.T) {
	up := newFakeUploader()
	up.emptyRef = true
	o := NewOrchestrator(up, testConfig(&sleepRecorder{}), nil)
	defer o.Close()

	id := o.AddAssets(memFile{name: "blank.jpg"})[0].ID
	waitIdle(t, o)

	got, _ := o.Get(id)
	assert.Equal(t, StateFailed, got.State)
	assert.Empty(t, got.RemoteRef)
	assert.Equal(t, ErrEmptyReference.Error(), got.FailureReason)
}

func TestOrchestrator_ConcurrentCompletionsKeepTheirOwnResult(t *testing.T) {
	up := newFakeUploader()
	o := NewOrchestrator(up, testConfig(&sleepRecorder{}), nil)
	defer o.Close()

	var files []FileHandle
	for i := 0; i < 20; i++ {
		files = append(files, memFile{name: fmt.Sprintf("img-%02d.jpg", i)})
	}
	o.AddAssets(files...)
	waitIdle(t, o)

	list := o.Snapshot()
	require.Len(t, list, 20)
	for i, a := range list {
		assert.Equal(t, fmt.Sprintf("img-%02d.jpg", i), a.Name, "insertion order is kept")
		assert.Equal(t, StateUploaded, a.State)
		assert.Equal(t, "https://cdn.example.com/"+a.Name, a.RemoteRef)
	}
}

func TestOrchestrator_BoundedConcurrency(t *testing.T) {
	up := newFakeUploader()
	up.gate = make(chan struct{})
	cfg := testConfig(&sleepRecorder{})
	cfg.MaxConcurrent = 2
	o := NewOrchestrator(up, cfg, nil)
	defer o.Close()

	o.AddAssets(memFile{"a"}, memFile{"b"}, memFile{"c"}, memFile{"d"}, memFile{"e"})

	assert.Eventually(t, func() bool {
		n := 0
		for _, a := range o.Snapshot() {
			if a.State == StateUploading {
				n++
			}
		}
		return n == 2
	}, time.Second, 5*time.Millisecond)

	close(up.gate)
	waitIdle(t, o)

	assert.LessOrEqual(t, up.MaxInFlight(), 2)
	assert.True(t, o.AllUploaded())
}

// ============================================
// Remove / Retry
// ============================================

func TestOrchestrator_RemoveDuringUpload(t *testing.T) {
	up := newFakeUploader()
	up.gate = make(chan struct{})
	preview := &fakePreview{}
	cfg := testConfig(&sleepRecorder{})
	cfg.Preview = func(FileHandle) PreviewHandle { return preview }
	o := NewOrchestrator(up, cfg, nil)
	defer o.Close()

	id := o.AddAssets(memFile{name: "gone.jpg"})[0].ID
	assert.Eventually(t, func() bool {
		a, _ := o.Get(id)
		return a.State == StateUploading
	}, time.Second, 5*time.Millisecond)

	removed, err := o.Remove(id)
	require.NoError(t, err)
	assert.Equal(t, StateRemoved, removed.State)
	assert.True(t, preview.Released())

	close(up.gate)
	waitIdle(t, o)

	_, ok := o.Get(id)
	assert.False(t, ok, "late completion must not resurrect a removed asset")
	assert.Empty(t, o.Snapshot())

	_, err = o.Remove(id)
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestOrchestrator_Retry(t *testing.T) {
	up := newFakeUploader()
	up.failures["flaky.jpg"] = 3
	o := NewOrchestrator(up, testConfig(&sleepRecorder{}), nil)
	defer o.Close()

	id := o.AddAssets(memFile{name: "flaky.jpg"})[0].ID
	waitIdle(t, o)

	failed, _ := o.Get(id)
	require.Equal(t, StateFailed, failed.State)

	require.NoError(t, o.Retry(id))
	waitIdle(t, o)

	got, _ := o.Get(id)
	assert.Equal(t, StateUploaded, got.State)
	assert.Equal(t, 1, got.Attempts, "retry starts a fresh attempt budget")
	assert.Empty(t, got.FailureReason)
	assert.NotEmpty(t, got.RemoteRef)

	err := o.Retry(id)
	assert.ErrorIs(t, err, ErrNotRetryable)
	assert.ErrorIs(t, o.Retry("missing"), ErrAssetNotFound)
}

func TestOrchestrator_SetQuantity(t *testing.T) {
	up := newFakeUploader()
	o := NewOrchestrator(up, testConfig(&sleepRecorder{}), nil)
	defer o.Close()

	id := o.AddAssets(memFile{name: "q.jpg"})[0].ID

	require.NoError(t, o.SetQuantity(id, 4))
	assert.ErrorIs(t, o.SetQuantity(id, 0), ErrInvalidQuantity)
	assert.ErrorIs(t, o.SetQuantity("missing", 2), ErrAssetNotFound)

	waitIdle(t, o)
	got, _ := o.Get(id)
	assert.Equal(t, 4, got.Quantity, "upload completion keeps the quantity")
}

// ============================================
// Progress estimate
// ============================================

func TestOrchestrator_ProgressStaysBelowCeiling(t *testing.T) {
	up := newFakeUploader()
	up.gate = make(chan struct{})
	cfg := testConfig(&sleepRecorder{})
	cfg.ProgressInterval = time.Millisecond
	cfg.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	o := NewOrchestrator(up, cfg, nil)
	defer o.Close()

	var mu sync.Mutex
	var seen []float64
	o.OnChange(func(list []ImageAsset) {
		mu.Lock()
		defer mu.Unlock()
		for _, a := range list {
			if a.State == StateUploading {
				seen = append(seen, a.Progress)
			}
		}
	})

	id := o.AddAssets(memFile{name: "slow.jpg"})[0].ID
	assert.Eventually(t, func() bool {
		a, _ := o.Get(id)
		return a.Progress == 89
	}, time.Second, 5*time.Millisecond)

	close(up.gate)
	waitIdle(t, o)

	got, _ := o.Get(id)
	assert.Equal(t, float64(100), got.Progress)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1], "progress never moves backwards")
	}
	for _, p := range seen {
		assert.Less(t, p, float64(90))
	}
}

func TestNextProgress(t *testing.T) {
	assert.Equal(t, float64(9), nextProgress(0, 90))
	assert.Equal(t, float64(81), nextProgress(80, 90))
	assert.Equal(t, float64(89), nextProgress(88.5, 90))
	assert.Equal(t, float64(89), nextProgress(89, 90))
}

// ============================================
// Close / Wait
// ============================================

func TestOrchestrator_CloseStopsWork(t *testing.T) {
	up := newFakeUploader()
	up.gate = make(chan struct{})
	o := NewOrchestrator(up, testConfig(&sleepRecorder{}), nil)

	id := o.AddAssets(memFile{name: "x.jpg"})[0].ID
	assert.Eventually(t, func() bool {
		a, _ := o.Get(id)
		return a.State == StateUploading
	}, time.Second, 5*time.Millisecond)

	o.Close()

	assert.Len(t, o.AddAssets(memFile{name: "late.jpg"}), 1)
	assert.ErrorIs(t, o.Retry(id), ErrOrchestratorDone)
}

func TestOrchestrator_WaitHonoursContext(t *testing.T) {
	up := newFakeUploader()
	up.gate = make(chan struct{})
	o := NewOrchestrator(up, testConfig(&sleepRecorder{}), nil)
	defer func() {
		close(up.gate)
		o.Close()
	}()

	o.AddAssets(memFile{name: "stuck.jpg"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, o.Wait(ctx), context.DeadlineExceeded)
}
