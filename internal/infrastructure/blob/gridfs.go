package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/domain/asset"
)

// Bucket is the subset of *gridfs.Bucket used by the uploader.
type Bucket interface {
	UploadFromStream(filename string, source io.Reader, opts ...*options.UploadOptions) (primitive.ObjectID, error)
}

// GridFSUploader stores images in a GridFS bucket and returns a public URL
// of the form <baseURL>/<object id>/<name>.
type GridFSUploader struct {
	bucket  Bucket
	baseURL string
	name    func(original string) string
	logger  *zap.Logger
}

// NewGridFSUploader creates an uploader. name maps the buyer's file name to
// the stored object name; nil keeps the original name.
func NewGridFSUploader(bucket Bucket, baseURL string, name func(string) string, logger *zap.Logger) *GridFSUploader {
	if name == nil {
		name = func(s string) string { return s }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GridFSUploader{
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		name:    name,
		logger:  logger.Named("gridfs"),
	}
}

func (u *GridFSUploader) Upload(ctx context.Context, file asset.FileHandle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", file.Name(), err)
	}
	defer src.Close()

	name := u.name(file.Name())
	opts := options.GridFSUpload().SetMetadata(bson.D{
		{Key: "original_name", Value: file.Name()},
		{Key: "uploaded_at", Value: time.Now().UTC()},
	})
	id, err := u.bucket.UploadFromStream(name, &contextReader{ctx: ctx, r: src}, opts)
	if err != nil {
		return "", fmt.Errorf("failed to store %s: %w", name, err)
	}

	ref := fmt.Sprintf("%s/%s/%s", u.baseURL, id.Hex(), name)
	u.logger.Debug("Image stored", zap.String("name", name), zap.String("ref", ref))
	return ref, nil
}

// contextReader stops a stream as soon as ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// ErrNotFound reports an unknown or malformed file id.
var ErrNotFound = errors.New("file not found")

// File is a stored upload opened for reading. The caller closes Body.
type File struct {
	Name       string
	Size       int64
	UploadedAt time.Time
	Body       io.ReadCloser
}

// DownloadBucket is the subset of *gridfs.Bucket used by the reader.
type DownloadBucket interface {
	OpenDownloadStream(fileID interface{}) (*gridfs.DownloadStream, error)
}

// GridFSReader opens uploads by the object id found in their public URL.
type GridFSReader struct {
	bucket DownloadBucket
}

func NewGridFSReader(bucket DownloadBucket) *GridFSReader {
	return &GridFSReader{bucket: bucket}
}

func (r *GridFSReader) Open(ctx context.Context, id string) (*File, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	stream, err := r.bucket.OpenDownloadStream(oid)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", id, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := stream.SetReadDeadline(deadline); err != nil {
			stream.Close()
			return nil, err
		}
	}
	f := stream.GetFile()
	return &File{Name: f.Name, Size: f.Length, UploadedAt: f.UploadDate, Body: stream}, nil
}

// ConnectGridFS connects to MongoDB and opens the named GridFS bucket.
func ConnectGridFS(ctx context.Context, uri, database, bucket string) (*gridfs.Bucket, func(context.Context) error, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	b, err := gridfs.NewBucket(client.Database(database), options.GridFSBucket().SetName(bucket))
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("failed to open GridFS bucket %s: %w", bucket, err)
	}
	return b, client.Disconnect, nil
}
