// Package bootstrap opens the storage backends selected by configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/config"
	"github.com/example/print-storefront/internal/domain/cart"
	"github.com/example/print-storefront/internal/domain/coupon"
	"github.com/example/print-storefront/internal/infrastructure/kafka"
	"github.com/example/print-storefront/internal/infrastructure/store"
	"github.com/example/print-storefront/internal/logging"
)

// CouponRepository is a coupon source that can also be written to.
type CouponRepository interface {
	coupon.Repository
	Save(ctx context.Context, c *coupon.Coupon) error
}

// Backends holds the storage selected by configuration. Close releases
// everything that was opened.
type Backends struct {
	Events    store.EventStoreInterface
	Snapshots cart.SnapshotStore
	Coupons   CouponRepository
	closers   []io.Closer
}

func (b *Backends) Close(logger *zap.Logger) {
	logger = logging.OrNop(logger)
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			logger.Warn("Failed to close backend", zap.Error(err))
		}
	}
}

// Open connects the event, snapshot and coupon stores named by cfg. Events
// are published to Kafka when brokers are configured.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Backends, err error) {
	logger = logging.OrNop(logger)
	b := &Backends{}
	defer func() {
		if err != nil {
			b.Close(logger)
		}
	}()

	var publisher store.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		b.closers = append(b.closers, producer)
		publisher = producer
	}

	var db *sql.DB
	postgres := func() (*sql.DB, error) {
		if db != nil {
			return db, nil
		}
		conn, err := store.ConnectPostgres(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, err
		}
		b.closers = append(b.closers, conn)
		db = conn
		return db, nil
	}

	var dynamo *dynamodb.Client
	dynamoClient := func() (*dynamodb.Client, error) {
		if dynamo != nil {
			return dynamo, nil
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		dynamo = dynamodb.NewFromConfig(awsCfg)
		return dynamo, nil
	}

	switch cfg.EventStore {
	case config.StorePostgres:
		conn, err := postgres()
		if err != nil {
			return nil, err
		}
		b.Events = store.NewPostgresEventStore(conn, publisher, logger)
	case config.StoreDynamo:
		client, err := dynamoClient()
		if err != nil {
			return nil, err
		}
		b.Events = store.NewDynamoEventStore(client, cfg.Dynamo.Table)
	default:
		b.Events = store.NewEventStore(publisher, logger)
	}

	switch cfg.SnapshotStore {
	case config.StoreRedis:
		client, err := store.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, client)
		b.Snapshots = store.NewRedisSnapshotStore(client, "storefront:", 0)
	case config.StoreDynamo:
		client, err := dynamoClient()
		if err != nil {
			return nil, err
		}
		b.Snapshots = store.NewDynamoSnapshotStore(client, cfg.Dynamo.SnapshotTable)
	default:
		b.Snapshots = store.NewSnapshotStore()
	}

	switch cfg.CouponStore {
	case config.StorePostgres:
		conn, err := postgres()
		if err != nil {
			return nil, err
		}
		b.Coupons = store.NewPostgresCouponStore(conn)
	default:
		b.Coupons = store.NewCouponStore()
	}

	logger.Info("Backends ready",
		zap.String("event_store", cfg.EventStore),
		zap.String("snapshot_store", cfg.SnapshotStore),
		zap.String("coupon_store", cfg.CouponStore),
		zap.Bool("kafka", publisher != nil))
	return b, nil
}
