package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	// Shield the assertions from whatever the ambient environment (CI,
	// a developer shell) happens to set.
	for _, key := range []string{"HTTP_PORT", "ACCESS_TTL", "CLOSING_TIME", "RECONCILE_INTERVAL", "RATE_LIMIT_PER_MIN"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 17*time.Hour, cfg.ClosingTime)
	assert.Equal(t, time.Hour, cfg.ReconcileInterval)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("CLOSING_TIME", "21:30")
	t.Setenv("RECONCILE_INTERVAL", "30m")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")

	cfg := Load()
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, 21*time.Hour+30*time.Minute, cfg.ClosingTime)
	assert.Equal(t, 30*time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, 10, cfg.RateLimitPerMin)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("CLOSING_TIME", "late")
	t.Setenv("RECONCILE_INTERVAL", "sometimes")
	t.Setenv("RATE_LIMIT_PER_MIN", "many")

	cfg := Load()
	assert.Equal(t, 17*time.Hour, cfg.ClosingTime)
	assert.Equal(t, time.Hour, cfg.ReconcileInterval)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
}

func TestClockEnvBounds(t *testing.T) {
	t.Setenv("CLOSING_TIME", "25:00")
	assert.Equal(t, 17*time.Hour, Load().ClosingTime)

	t.Setenv("CLOSING_TIME", "17")
	assert.Equal(t, 17*time.Hour, Load().ClosingTime)
}

func TestLocation(t *testing.T) {
	loc, err := App{Timezone: "Local"}.Location()
	assert.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = App{Timezone: "America/Los_Angeles"}.Location()
	assert.NoError(t, err)
	assert.Equal(t, "America/Los_Angeles", loc.String())

	_, err = App{Timezone: "Middle/Earth"}.Location()
	assert.Error(t, err)
}
