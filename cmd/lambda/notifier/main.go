package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/config"
	"github.com/example/print-storefront/internal/email"
	"github.com/example/print-storefront/internal/infrastructure/kinesis"
	"github.com/example/print-storefront/internal/logging"
	"github.com/example/print-storefront/internal/notification"
)

var (
	notificationHandler *notification.Handler
	logger              *zap.Logger
)

func init() {
	cfg, err := config.Load(nil)
	if err != nil {
		panic(err)
	}
	logger, err = logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(err)
	}
	logger = logger.Named("lambda_notifier")

	emailSvc := email.NewService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From)
	notificationHandler = notification.NewHandler(emailSvc, cfg.SMTP.BusinessEmail, cfg.SMTP.CountryCode, logger)

	logger.Info("Initialized", zap.String("smtp", cfg.SMTP.Host+":"+cfg.SMTP.Port))
}

func handler(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	logger.Info("Received records", zap.Int("count", len(kinesisEvent.Records)))

	resp := kinesis.Process(ctx, kinesisEvent, notificationHandler.HandleEvent, logger)

	logger.Info("Processed records",
		zap.Int("count", len(kinesisEvent.Records)),
		zap.Int("failed", len(resp.BatchItemFailures)))
	return resp, nil
}

func main() {
	defer logger.Sync()
	lambda.Start(handler)
}
