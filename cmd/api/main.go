// Command api serves the Upload API: images are stored in GridFS and served
// back under PUBLIC_BASE_URL.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/api"
	"github.com/example/print-storefront/internal/config"
	"github.com/example/print-storefront/internal/infrastructure/blob"
	"github.com/example/print-storefront/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(nil)
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bucket, disconnect, err := blob.ConnectGridFS(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Bucket)
	if err != nil {
		logger.Fatal("Failed to open GridFS", zap.Error(err))
	}
	defer func() {
		if err := disconnect(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to disconnect from MongoDB", zap.Error(err))
		}
	}()

	handlers := api.NewHandlers(bucket, blob.NewGridFSReader(bucket), cfg.Mongo.PublicBaseURL, cfg.Server.MaxUploadBytes, logger)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(handlers, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Starting Upload API",
		zap.String("addr", cfg.Server.Addr),
		zap.String("bucket", cfg.Mongo.Bucket),
		zap.String("public_base_url", cfg.Mongo.PublicBaseURL))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server stopped", zap.Error(err))
	}
	logger.Info("Shutting down")
}
