package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/domain/catalog"
	"github.com/example/print-storefront/internal/infrastructure/blob"
)

const defaultMaxUploadBytes = 25 << 20

// FileStore opens stored uploads by id.
type FileStore interface {
	Open(ctx context.Context, id string) (*blob.File, error)
}

type Handlers struct {
	bucket         blob.Bucket
	files          FileStore
	baseURL        string
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewHandlers creates the Upload API handlers. Stored files are addressed as
// <baseURL>/<id>/<name>; maxUploadBytes <= 0 selects the default limit.
func NewHandlers(bucket blob.Bucket, files FileStore, baseURL string, maxUploadBytes int64, logger *zap.Logger) *Handlers {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		bucket:         bucket,
		files:          files,
		baseURL:        baseURL,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.Named("api"),
	}
}

type uploadResponse struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Upload stores the multipart "file" part. The optional product and size
// fields select the variant naming of the stored object.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUploadBytes {
		respondError(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) != 1 {
		respondError(w, "Exactly one file is required", http.StatusBadRequest)
		return
	}
	header := headers[0]
	if !isImage(header) {
		respondError(w, "Only image files are accepted", http.StatusUnsupportedMediaType)
		return
	}

	var name func(string) string
	if product := r.FormValue("product"); product != "" {
		p, err := catalog.ParseProductType(product)
		if err != nil {
			respondError(w, err.Error(), http.StatusBadRequest)
			return
		}
		variant, err := catalog.Lookup(p, r.FormValue("size"))
		if err != nil {
			respondError(w, err.Error(), http.StatusBadRequest)
			return
		}
		name = variant.StorageName
	}

	uploader := blob.NewGridFSUploader(h.bucket, h.baseURL, name, h.logger)
	ref, err := uploader.Upload(r.Context(), multipartFile{header})
	if err != nil {
		h.logger.Error("Upload failed", zap.String("file", header.Filename), zap.Error(err))
		respondError(w, "Upload failed", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, uploadResponse{URL: ref, Name: path.Base(ref)})
}

// GetFile streams a stored upload. The name segment is informational; the
// id alone identifies the file.
func (h *Handlers) GetFile(w http.ResponseWriter, r *http.Request) {
	f, err := h.files.Open(r.Context(), r.PathValue("id"))
	if errors.Is(err, blob.ErrNotFound) {
		respondError(w, "File not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to open file", zap.String("id", r.PathValue("id")), zap.Error(err))
		respondError(w, "Failed to read file", http.StatusInternalServerError)
		return
	}
	defer f.Body.Close()

	contentType := mime.TypeByExtension(path.Ext(f.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if !f.UploadedAt.IsZero() {
		w.Header().Set("Last-Modified", f.UploadedAt.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, f.Body); err != nil {
		h.logger.Warn("File transfer interrupted", zap.String("id", r.PathValue("id")), zap.Error(err))
	}
}

// multipartFile adapts an uploaded part to asset.FileHandle.
type multipartFile struct {
	header *multipart.FileHeader
}

func (f multipartFile) Name() string { return path.Base(f.header.Filename) }

func (f multipartFile) Open() (io.ReadCloser, error) {
	return f.header.Open()
}

func isImage(header *multipart.FileHeader) bool {
	if ct := header.Header.Get("Content-Type"); strings.HasPrefix(ct, "image/") {
		return true
	}
	return strings.HasPrefix(mime.TypeByExtension(path.Ext(header.Filename)), "image/")
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}
