package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/dice-room-backend/internal/engine"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := parse(env.Options{Environment: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, time.Second, cfg.SchedulerInterval)
	assert.Equal(t, 8, cfg.SchedulerConcurrency)
	assert.Equal(t, 5, cfg.ClaimMaxRetries)
	assert.Equal(t, 8, cfg.CommitMaxRetries)

	assert.Equal(t, engine.DefaultSettings(), cfg.Settings())
}

func TestParseOverrides(t *testing.T) {
	cfg, err := parse(env.Options{Environment: map[string]string{
		"ADDR":               ":9000",
		"DATABASE_URL":       "postgres://localhost/dice",
		"SCHEDULER_INTERVAL": "250ms",
		"TRACK_LENGTH":       "40",
		"DICE_COUNT":         "2",
		"EVENT_DURATION":     "10s",
		"ALLOW_LATE_JOIN":    "true",
	}})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "postgres://localhost/dice", cfg.DatabaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.SchedulerInterval)

	s := cfg.Settings()
	assert.Equal(t, 40, s.TrackLength)
	assert.Equal(t, 2, s.DiceCount)
	assert.Equal(t, 10*time.Second, s.EventDuration)
	assert.True(t, s.AllowLateJoin)
	assert.Len(t, s.Events, 3)
}

func TestParseRejectsBadValues(t *testing.T) {
	_, err := parse(env.Options{Environment: map[string]string{"MAX_PLAYERS": "lots"}})
	assert.Error(t, err)

	_, err = parse(env.Options{Environment: map[string]string{"SCHEDULER_INTERVAL": "0s"}})
	assert.Error(t, err)
}
