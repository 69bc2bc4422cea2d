// Package config reads server settings from the environment, after loading
// a .env file when one is present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/DoyleJ11/dice-room-backend/internal/engine"
)

type Config struct {
	Addr        string `env:"ADDR"         envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"   envDefault:"json"`

	SchedulerInterval    time.Duration `env:"SCHEDULER_INTERVAL"    envDefault:"1s"`
	SchedulerConcurrency int           `env:"SCHEDULER_CONCURRENCY" envDefault:"8"`

	ClaimMaxRetries  int `env:"CLAIM_MAX_RETRIES"  envDefault:"5"`
	CommitMaxRetries int `env:"COMMIT_MAX_RETRIES" envDefault:"8"`

	Game GameDefaults
}

// GameDefaults seeds rooms created without explicit settings.
type GameDefaults struct {
	TrackLength      int           `env:"TRACK_LENGTH"       envDefault:"24"`
	MaxPlayers       int           `env:"MAX_PLAYERS"        envDefault:"8"`
	InitialDiceRolls int           `env:"INITIAL_DICE_ROLLS" envDefault:"10"`
	DiceFaces        int           `env:"DICE_FACES"         envDefault:"6"`
	DiceCount        int           `env:"DICE_COUNT"         envDefault:"1"`
	EventDuration    time.Duration `env:"EVENT_DURATION"     envDefault:"30s"`
	EventInterval    time.Duration `env:"EVENT_INTERVAL"     envDefault:"60s"`
	AllowLateJoin    bool          `env:"ALLOW_LATE_JOIN"    envDefault:"false"`
}

// Load reads .env (if any) and then the process environment. Variables
// already set in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return parse(env.Options{})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SchedulerInterval <= 0 {
		return Config{}, fmt.Errorf("SCHEDULER_INTERVAL must be positive, got %s", cfg.SchedulerInterval)
	}
	if cfg.SchedulerConcurrency <= 0 {
		cfg.SchedulerConcurrency = 1
	}
	return cfg, nil
}

// Settings turns the configured defaults into engine settings with the
// full event catalogue and no rewards.
func (c Config) Settings() engine.Settings {
	s := engine.DefaultSettings()
	s.TrackLength = c.Game.TrackLength
	s.MaxPlayers = c.Game.MaxPlayers
	s.InitialDiceRolls = c.Game.InitialDiceRolls
	s.DiceFaces = c.Game.DiceFaces
	s.DiceCount = c.Game.DiceCount
	s.EventDuration = c.Game.EventDuration
	s.EventInterval = c.Game.EventInterval
	s.AllowLateJoin = c.Game.AllowLateJoin
	return s
}
