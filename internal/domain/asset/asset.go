package asset

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
)

type State string

const (
	StatePending   State = "pending"
	StateUploading State = "uploading"
	StateUploaded  State = "uploaded"
	StateFailed    State = "failed"
	StateRemoved   State = "removed"
)

var (
	ErrAssetNotFound    = errors.New("asset not found")
	ErrNotRetryable     = errors.New("only failed assets can be retried")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrEmptyReference   = errors.New("upload returned an empty reference")
	ErrOrchestratorDone = errors.New("orchestrator is closed")
)

// FileHandle is the original payload selected by the buyer.
type FileHandle interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// PreviewHandle is a local, revocable preview of a file. It must be released
// once the asset is removed.
type PreviewHandle interface {
	Release()
}

// Uploader transfers a file to durable storage and returns its shareable reference.
type Uploader interface {
	Upload(ctx context.Context, file FileHandle) (string, error)
}

// ImageAsset is a value snapshot of one selected image. Source and Preview are
// owned by the orchestrator and never serialized.
type ImageAsset struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Source        FileHandle    `json:"-"`
	Preview       PreviewHandle `json:"-"`
	Quantity      int           `json:"quantity"`
	State         State         `json:"state"`
	Progress      float64       `json:"progress"` // estimated, see Orchestrator
	RemoteRef     string        `json:"remote_ref,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Attempts      int           `json:"attempts"`
}

// Settled reports whether no upload work is outstanding for the asset.
func (a ImageAsset) Settled() bool {
	return a.State != StatePending && a.State != StateUploading
}

// Percent returns the progress rounded down to a whole percentage.
func (a ImageAsset) Percent() int {
	return int(a.Progress)
}

// LocalFile is a FileHandle backed by a path on disk.
type LocalFile struct {
	Path string
}

func (f LocalFile) Name() string {
	return filepath.Base(f.Path)
}

func (f LocalFile) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}
