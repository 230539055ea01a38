package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ZAR", cfg.Paystack.Currency)
	assert.Equal(t, 15.0, cfg.Paystack.PercentageCharge)
	assert.Equal(t, 150.0, cfg.Paystack.DefaultPrice)
	assert.Equal(t, 15*time.Minute, cfg.Booking.LiveExpiry)
	assert.Equal(t, 120*time.Minute, cfg.Booking.ScheduledExpiry)
	assert.Equal(t, 5, cfg.Booking.RefundMaxAttempts)
	assert.Equal(t, "memory", cfg.Events.Broker)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("BOOKING_LIVE_EXPIRY", "10m")
	t.Setenv("BOOKING_SCHEDULED_EXPIRY", "60m")
	t.Setenv("EVENTS_KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Booking.LiveExpiry)
	assert.Equal(t, time.Hour, cfg.Booking.ScheduledExpiry)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers())
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownBroker(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("EVENTS_BROKER", "nats")

	_, err := Load()
	assert.Error(t, err)
}
