package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(nil)

	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, StoreMemory, cfg.EventStore)
	assert.Equal(t, StoreMemory, cfg.SnapshotStore)
	assert.Equal(t, StoreMemory, cfg.CouponStore)
	assert.Equal(t, "972", cfg.SMTP.CountryCode)
	assert.Equal(t, 4, cfg.Upload.Concurrency)
	assert.Equal(t, 3, cfg.Upload.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Upload.RetryDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Cart.Debounce)
	assert.Equal(t, "blockclick_cart", cfg.Cart.SnapshotKey)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, int64(25<<20), cfg.Server.MaxUploadBytes)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EVENT_STORE", "Postgres")
	t.Setenv("SNAPSHOT_STORE", "redis")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("UPLOAD_CONCURRENCY", "0")
	t.Setenv("UPLOAD_RETRY_DELAY", "250ms")
	t.Setenv("PUBLIC_BASE_URL", "https://cdn.example.com/files/")

	cfg, err := Load(nil)

	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.EventStore)
	assert.Equal(t, StoreRedis, cfg.SnapshotStore)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 0, cfg.Upload.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Upload.RetryDelay)
	assert.Equal(t, "https://cdn.example.com/files", cfg.Mongo.PublicBaseURL)
}

func TestLoad_FlagOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	v := viper.New()
	v.Set("LOG_LEVEL", "debug")

	cfg, err := Load(v)

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			EventStore:    StoreMemory,
			SnapshotStore: StoreMemory,
			CouponStore:   StoreMemory,
			Upload:        UploadConfig{Concurrency: 2, MaxAttempts: 3},
			Cart:          CartConfig{SnapshotKey: "cart"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown event store", func(c *Config) { c.EventStore = "sqlite" }, true},
		{"unknown snapshot store", func(c *Config) { c.SnapshotStore = "disk" }, true},
		{"dynamo snapshot store", func(c *Config) { c.SnapshotStore = StoreDynamo }, false},
		{"postgres coupons", func(c *Config) { c.CouponStore = StorePostgres }, false},
		{"redis coupons", func(c *Config) { c.CouponStore = StoreRedis }, true},
		{"negative concurrency", func(c *Config) { c.Upload.Concurrency = -1 }, true},
		{"zero attempts", func(c *Config) { c.Upload.MaxAttempts = 0 }, true},
		{"missing snapshot key", func(c *Config) { c.Cart.SnapshotKey = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
