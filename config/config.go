package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Game constants shared by the server and the headless client.
const (
	// Network
	SyncRateMS       = 50   // Client pose publish cadence
	ServerTickRate   = 30   // Hz, scheduler resolution of the event loop
	MaxMessageBytes  = 1024 // Inbound websocket frame limit
	InboxSize        = 1024 // Buffered events waiting for the event loop
	MoveRatePerSec   = 90.0 // Token refill for move messages
	MoveBurst        = 30
	WorldLimit       = 1e6 // Absolute coordinate bound for relayed poses
	MaxNameLength    = 20
	SendBufferFrames = 256
	MaxConnections   = 64 // Admission limit for the shared session

	// Simulation
	SimTickRate = 60
	SimTickDT   = 1.0 / float64(SimTickRate)

	// Terrain
	HubRadius       = 60.0
	HubHeight       = 10.0
	NoiseFrequency  = 0.003
	DetailFrequency = 0.02
	ChunkSize       = 250.0
	ChunkResolution = 32
	RenderDistance  = 2 // Chunks kept around the vehicle, Chebyshev radius

	// Track
	CheckpointCount  = 40
	CheckpointRadius = 60.0
	SpawnLift        = 2.0
	GridSpacing      = 8.0

	// Race
	DefaultMinEntrants = 2
	DefaultLapTarget   = 3
	DefaultCountdown   = 5 * time.Second
	DefaultFinishGrace = 3 * time.Second

	// Economy
	StartingBalance = 100
	WinnerPayout    = 500
	FinisherPayout  = 100
	DefaultCarID    = 0
)

// ServerConfig holds process level settings read from the environment.
type ServerConfig struct {
	Host        string
	Port        int
	StaticDir   string
	EnableCORS  bool
	LogLevel    string
	LogFormat   string
	MinEntrants int
	LapTarget   int
	Countdown   time.Duration
	FinishGrace time.Duration
	Level       int
	TerrainSeed int64
	HistorySize int
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:        "0.0.0.0",
		Port:        3000,
		StaticDir:   "./public",
		EnableCORS:  true,
		LogLevel:    "info",
		LogFormat:   "console",
		MinEntrants: DefaultMinEntrants,
		LapTarget:   DefaultLapTarget,
		Countdown:   DefaultCountdown,
		FinishGrace: DefaultFinishGrace,
		Level:       0,
		TerrainSeed: 1,
		HistorySize: 50,
	}
}

// Load reads the configuration from environment variables, falling back to
// DefaultServerConfig for anything unset.
func Load() (*ServerConfig, error) {
	return LoadFrom(viper.New())
}

// LoadFrom is Load against a caller supplied viper instance.
func LoadFrom(v *viper.Viper) (*ServerConfig, error) {
	def := DefaultServerConfig()

	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("static_dir", def.StaticDir)
	v.SetDefault("enable_cors", def.EnableCORS)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("min_entrants", def.MinEntrants)
	v.SetDefault("lap_target", def.LapTarget)
	v.SetDefault("countdown", def.Countdown)
	v.SetDefault("finish_grace", def.FinishGrace)
	v.SetDefault("level", def.Level)
	v.SetDefault("terrain_seed", def.TerrainSeed)
	v.SetDefault("history_size", def.HistorySize)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &ServerConfig{
		Host:        v.GetString("host"),
		Port:        v.GetInt("port"),
		StaticDir:   v.GetString("static_dir"),
		EnableCORS:  v.GetBool("enable_cors"),
		LogLevel:    strings.ToLower(v.GetString("log_level")),
		LogFormat:   strings.ToLower(v.GetString("log_format")),
		MinEntrants: v.GetInt("min_entrants"),
		LapTarget:   v.GetInt("lap_target"),
		Countdown:   v.GetDuration("countdown"),
		FinishGrace: v.GetDuration("finish_grace"),
		Level:       v.GetInt("level"),
		TerrainSeed: v.GetInt64("terrain_seed"),
		HistorySize: v.GetInt("history_size"),
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, errors.Errorf("invalid port %d", cfg.Port)
	}
	if err := Clamp(cfg); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	return cfg, nil
}

// Clamp enforces bounds on values that would otherwise wedge the race.
func Clamp(cfg *ServerConfig) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	cfg.MinEntrants = clampInt(cfg.MinEntrants, 1, 16)
	cfg.LapTarget = clampInt(cfg.LapTarget, 1, 20)
	cfg.Countdown = clampDuration(cfg.Countdown, 0, time.Minute)
	cfg.FinishGrace = clampDuration(cfg.FinishGrace, 0, time.Minute)
	cfg.HistorySize = clampInt(cfg.HistorySize, 1, 1000)
	if cfg.LogFormat != "json" {
		cfg.LogFormat = "console"
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
