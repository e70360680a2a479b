package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/config"
	"github.com/example/print-storefront/internal/infrastructure/kafka"
	"github.com/example/print-storefront/internal/infrastructure/store"
	"github.com/example/print-storefront/internal/logging"
	"github.com/example/print-storefront/internal/projection"
	"github.com/example/print-storefront/internal/query"
)

const (
	consumerGroup  = "sales-projector"
	reportInterval = time.Minute
)

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
	logger = logger.Named("projector")

	if len(cfg.Kafka.Brokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	readStore := store.NewReadStore()
	var usage projection.UsageRecorder

	// With a PostgreSQL event log the projector owns coupon usage counting and
	// rebuilds its read models from history on startup.
	if cfg.EventStore == config.StorePostgres {
		db, err := store.ConnectPostgres(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		defer db.Close()
		usage = store.NewPostgresCouponStore(db)

		projector := projection.NewProjector(readStore, nil, logger)
		n, err := projector.Rebuild(ctx, store.NewPostgresEventStore(db, nil, logger))
		if err != nil {
			logger.Fatal("Failed to replay events", zap.Error(err))
		}
		logger.Info("Replayed event log", zap.Int("events", n))
	}

	projector := projection.NewProjector(readStore, usage, logger)
	queries := query.NewHandler(readStore)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, consumerGroup, logger)
	defer consumer.Close()

	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(logger, queries.SalesReport())
			}
		}
	}()

	logger.Info("Starting sales projector",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", consumerGroup))

	if err := consumer.Consume(ctx, projector.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Consumer stopped", zap.Error(err))
	}
	logReport(logger, queries.SalesReport())
	logger.Info("Shutting down")
}

func logReport(logger *zap.Logger, report query.SalesReport) {
	logger.Info("Sales report",
		zap.Int("orders", report.Summary.Orders),
		zap.String("revenue", report.Summary.Revenue.StringFixed(2)),
		zap.String("discounts", report.Summary.Discounts.StringFixed(2)),
		zap.String("costs", report.Summary.Costs.StringFixed(2)),
		zap.String("profit", report.Summary.Profit().StringFixed(2)),
		zap.Int("margin_pct", report.Summary.Margin()),
		zap.Int("returning_customers", report.ReturningCustomers))
	for _, p := range report.Products {
		logger.Info("Product sales",
			zap.String("product_type", p.ProductType),
			zap.Int("units", p.Units),
			zap.String("revenue", p.Revenue.StringFixed(2)),
			zap.String("costs", p.Costs.StringFixed(2)),
			zap.String("profit", p.Profit().StringFixed(2)))
	}
	for _, c := range report.Coupons {
		logger.Info("Coupon usage",
			zap.String("coupon", c.Code),
			zap.Int("uses", c.Uses),
			zap.String("total_discount", c.TotalDiscount.StringFixed(2)))
	}
}
