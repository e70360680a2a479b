package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/config"
	"github.com/example/print-storefront/internal/infrastructure/kinesis"
	"github.com/example/print-storefront/internal/infrastructure/store"
	"github.com/example/print-storefront/internal/logging"
	"github.com/example/print-storefront/internal/projection"
	"github.com/example/print-storefront/internal/query"
)

var (
	projector *projection.Projector
	queries   *query.Handler
	logger    *zap.Logger
)

// init rebuilds the sales read models from the DynamoDB event log on cold
// start. Live events then update them and count coupon redemptions.
func init() {
	ctx := context.Background()

	cfg, err := config.Load(nil)
	if err != nil {
		panic(err)
	}
	logger, err = logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(err)
	}
	logger = logger.Named("lambda_projector")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Fatal("Failed to load AWS config", zap.Error(err))
	}
	eventStore := store.NewDynamoEventStore(dynamodb.NewFromConfig(awsCfg), cfg.Dynamo.Table)

	var usage projection.UsageRecorder
	if cfg.CouponStore == config.StorePostgres {
		db, err := store.ConnectPostgres(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		usage = store.NewPostgresCouponStore(db)
	} else {
		logger.Warn("Coupon usage is not recorded", zap.String("coupon_store", cfg.CouponStore))
	}

	readStore := store.NewReadStore()
	n, err := projection.NewProjector(readStore, nil, logger).Rebuild(ctx, eventStore)
	if err != nil {
		logger.Fatal("Failed to replay events", zap.Error(err))
	}
	projector = projection.NewProjector(readStore, usage, logger)
	queries = query.NewHandler(readStore)

	logger.Info("Initialized", zap.String("table", cfg.Dynamo.Table), zap.Int("replayed", n))
}

func handler(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	resp := kinesis.Process(ctx, kinesisEvent, projector.HandleEvent, logger)

	report := queries.SalesReport()
	logger.Info("Processed records",
		zap.Int("count", len(kinesisEvent.Records)),
		zap.Int("failed", len(resp.BatchItemFailures)),
		zap.Int("orders", report.Summary.Orders),
		zap.String("revenue", report.Summary.Revenue.StringFixed(2)),
		zap.String("profit", report.Summary.Profit().StringFixed(2)))
	return resp, nil
}

func main() {
	defer logger.Sync()
	lambda.Start(handler)
}
