package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 15*time.Minute, cfg.ReservationTTL)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10000, cfg.FreeShippingCents)
	assert.Equal(t, 0.0725, cfg.TaxRates["CA"])
	assert.Equal(t, 599, cfg.ShippingRates["standard"])
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("RESERVATION_TTL", "90s")
	t.Setenv("TAX_RATES", "wa=0.065,bad,XX=oops")
	t.Setenv("SHIPPING_RATES", "Pickup=0")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 90*time.Second, cfg.ReservationTTL)

	require.Len(t, cfg.TaxRates, 1)
	assert.Equal(t, 0.065, cfg.TaxRates["WA"])
	assert.Equal(t, 0, cfg.ShippingRates["pickup"])
}
