package main

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/app"
)

func mapLookup(values map[string]string) envLookup {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestReadConfigFromEnv_Defaults(t *testing.T) {
	cfg, warnings := readConfigFromEnv(mapLookup(nil))
	require.Empty(t, warnings)
	require.Equal(t, app.DefaultConfig(), cfg)
}

func TestReadConfigFromEnv_ValidOverrides(t *testing.T) {
	cfg, warnings := readConfigFromEnv(mapLookup(map[string]string{
		envGRPCAddr:                    "localhost:50051",
		envHTTPAddr:                    "localhost:8081",
		envMetricsAddr:                 "localhost:9091",
		envStorageDriver:               " MySQL ",
		envMySQLDSN:                    " root:root@tcp(localhost:3306)/storefront?parseTime=true ",
		envMySQLAutoMigrate:            "off",
		envPostgresAutoMigrate:         "no",
		envRedisAddr:                   "localhost:6379",
		envRedisDB:                     "2",
		envKafkaBrokers:                "k1:9092,k2:9092",
		envKafkaTopic:                  "orders",
		envPlacementMaxAttempts:        "5",
		envOutboxPollInterval:          "2s",
		envOutboxBatchSize:             "42",
		envOutboxMaxAttempts:           "7",
		envOutboxRetryDelay:            "0s",
		envOutboxMaxPending:            "0",
		envIdempotencyTTL:              "1h",
		envIdempotencyCleanupInterval:  "30m",
		envIdempotencyCleanupBatchSize: "123",
	}))
	require.Empty(t, warnings)

	require.Equal(t, "localhost:50051", cfg.GRPCAddr)
	require.Equal(t, "localhost:8081", cfg.HTTPAddr)
	require.Equal(t, "localhost:9091", cfg.MetricsAddr)
	require.Equal(t, app.StorageDriverMySQL, cfg.StorageDriver)
	require.Equal(t, "root:root@tcp(localhost:3306)/storefront?parseTime=true", cfg.MySQLDSN)
	require.False(t, cfg.MySQLAutoMigrate)
	require.False(t, cfg.PostgresAutoMigrate)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	require.Equal(t, 2, cfg.RedisDB)
	require.Equal(t, "k1:9092,k2:9092", cfg.KafkaBrokers)
	require.Equal(t, "orders", cfg.KafkaTopic)
	require.Equal(t, "storefront.dlq", cfg.KafkaDLQTopic)
	require.Equal(t, 5, cfg.PlacementMaxAttempts)
	require.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
	require.Equal(t, 42, cfg.OutboxBatchSize)
	require.Equal(t, 7, cfg.OutboxMaxAttempts)
	require.Zero(t, cfg.OutboxRetryDelay)
	require.Zero(t, cfg.OutboxMaxPending)
	require.Equal(t, time.Hour, cfg.IdempotencyTTL)
	require.Equal(t, 30*time.Minute, cfg.IdempotencyCleanupInterval)
	require.Equal(t, 123, cfg.IdempotencyCleanupBatchSize)
}

func TestReadConfigFromEnv_InvalidValuesFallbackToDefaults(t *testing.T) {
	defaults := app.DefaultConfig()

	cfg, warnings := readConfigFromEnv(mapLookup(map[string]string{
		envPostgresAutoMigrate:         "not-bool",
		envRedisDB:                     "-1",
		envPlacementMaxAttempts:        "0",
		envOutboxPollInterval:          "-1s",
		envOutboxBatchSize:             "0",
		envOutboxMaxAttempts:           "bad",
		envOutboxRetryDelay:            "invalid",
		envOutboxMaxPending:            "-2",
		envIdempotencyCleanupInterval:  "invalid",
		envIdempotencyCleanupBatchSize: "0",
	}))

	require.Len(t, warnings, 10)
	require.Equal(t, defaults, cfg)
}

func TestSetupLogger(t *testing.T) {
	prev := log.GetLevel()
	t.Cleanup(func() { log.SetLevel(prev) })

	setupLogger(mapLookup(map[string]string{envLogLevel: "debug"}))
	require.Equal(t, log.DebugLevel, log.GetLevel())

	setupLogger(mapLookup(map[string]string{envLogLevel: "loud"}))
	require.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestParseBool(t *testing.T) {
	v, err := parseBool(" YES ")
	require.NoError(t, err)
	require.True(t, v)

	v, err = parseBool("off")
	require.NoError(t, err)
	require.False(t, v)

	_, err = parseBool("sometimes")
	require.Error(t, err)
}

func TestParseInt(t *testing.T) {
	v, err := parseInt(" 12 ", func(v int) bool { return v > 0 }, "must be > 0")
	require.NoError(t, err)
	require.Equal(t, 12, v)

	_, err = parseInt("0", func(v int) bool { return v > 0 }, "must be > 0")
	require.ErrorContains(t, err, "must be > 0")
}

func TestParseDuration(t *testing.T) {
	v, err := parseDuration(" 250ms ", func(v time.Duration) bool { return v >= 0 }, "must be >= 0")
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, v)

	_, err = parseDuration("-1ms", func(v time.Duration) bool { return v >= 0 }, "must be >= 0")
	require.Error(t, err)
}
