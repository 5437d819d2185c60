package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "KAFKA_BROKERS", "CHECKOUT_PENDING_TIMEOUT", "NOTIFY_WORKERS", "TAX_RATE"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Minute, cfg.CheckoutPendingTimeout)
	assert.Equal(t, 4, cfg.NotifyWorkers)
	assert.Equal(t, "0", cfg.TaxRate)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("CHECKOUT_PENDING_TIMEOUT", "45s")
	t.Setenv("NOTIFY_WORKERS", "12")
	t.Setenv("SHIPPING_FEE", "7.50")
	t.Setenv("TAX_RATE", "0.0825")

	cfg := Load()

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 45*time.Second, cfg.CheckoutPendingTimeout)
	assert.Equal(t, 12, cfg.NotifyWorkers)
	assert.Equal(t, "7.50", cfg.ShippingFee)
	assert.Equal(t, "0.0825", cfg.TaxRate)
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("REAPER_INTERVAL", "soon")
	t.Setenv("NOTIFY_WORKERS", "-3")

	cfg := Load()

	assert.Equal(t, 15*time.Second, cfg.ReaperInterval)
	assert.Equal(t, 4, cfg.NotifyWorkers)
}
