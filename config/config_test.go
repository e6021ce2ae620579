package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOLD_REQUIRES_CUSTOMER", "")
	t.Setenv("SESSION_TTL_SECONDS", "")

	cfg := Load()

	assert.True(t, cfg.Business.HoldRequiresCustomer)
	assert.Equal(t, 12*time.Hour, cfg.Business.SessionTTL)
	assert.Equal(t, time.Minute, cfg.Business.CatalogCacheTTL)
	assert.Equal(t, 10*time.Second, cfg.Business.CheckoutLockTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HOLD_REQUIRES_CUSTOMER", "false")
	t.Setenv("CATALOG_CACHE_TTL_SECONDS", "5")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()

	assert.False(t, cfg.Business.HoldRequiresCustomer)
	assert.Equal(t, 5*time.Second, cfg.Business.CatalogCacheTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 0, cfg.Redis.DB)
}
