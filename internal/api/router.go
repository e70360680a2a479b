package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/api/middleware"
)

// NewRouter exposes the Upload API: storing images and serving them back
// under the public URL the uploader returned.
func NewRouter(handlers *Handlers, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /uploads", handlers.Upload)
	// GET patterns also match HEAD.
	mux.HandleFunc("GET /files/{id}/{name}", handlers.GetFile)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return middleware.Recover(logger)(middleware.Logging(logger)(mux))
}
