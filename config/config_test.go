package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	def := DefaultServerConfig()
	assert.Equal(t, def.Port, cfg.Port)
	assert.Equal(t, def.MinEntrants, cfg.MinEntrants)
	assert.Equal(t, def.LapTarget, cfg.LapTarget)
	assert.Equal(t, 5*time.Second, cfg.Countdown)
	assert.Equal(t, 3*time.Second, cfg.FinishGrace)
}

func TestLoad_PortFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "4123")
	t.Setenv("LAP_TARGET", "5")
	t.Setenv("COUNTDOWN", "2s")

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 4123, cfg.Port)
	assert.Equal(t, 5, cfg.LapTarget)
	assert.Equal(t, 2*time.Second, cfg.Countdown)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "70000")

	_, err := LoadFrom(viper.New())
	assert.Error(t, err)
}

func TestClamp(t *testing.T) {
	cfg := &ServerConfig{
		MinEntrants: 0,
		LapTarget:   100,
		Countdown:   -time.Second,
		FinishGrace: time.Hour,
		HistorySize: 0,
		LogFormat:   "xml",
	}
	require.NoError(t, Clamp(cfg))

	assert.Equal(t, 1, cfg.MinEntrants)
	assert.Equal(t, 20, cfg.LapTarget)
	assert.Equal(t, time.Duration(0), cfg.Countdown)
	assert.Equal(t, time.Minute, cfg.FinishGrace)
	assert.Equal(t, 1, cfg.HistorySize)
	assert.Equal(t, "console", cfg.LogFormat)

	assert.Error(t, Clamp(nil))
}
