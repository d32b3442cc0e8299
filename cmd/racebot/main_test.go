package main

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestBotConfigDefaults(t *testing.T) {
	cfg := loadBotConfig(viper.New())
	assert.Equal(t, "ws://localhost:3000/ws", cfg.URL)
	assert.Equal(t, 0, cfg.Races)
	assert.True(t, cfg.Shop)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestBotConfigFromEnv(t *testing.T) {
	t.Setenv("RACEBOT_URL", "ws://example:9000/ws")
	t.Setenv("RACEBOT_RACES", "3")
	t.Setenv("RACEBOT_SHOP", "false")

	cfg := loadBotConfig(viper.New())
	assert.Equal(t, "ws://example:9000/ws", cfg.URL)
	assert.Equal(t, 3, cfg.Races)
	assert.False(t, cfg.Shop)
}
