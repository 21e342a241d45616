// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables on top of New().
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	// LogFormat selects the log encoding: json or text.
	LogFormat string `koanf:"log_format" validate:"oneof=json text"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// MaxLeaderboardLimit caps the limit query of a dimension leaderboard.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit" validate:"gte=1,lte=10000"`

	// CrossDimensionLimit is the row count per board of the all-dimensions view.
	CrossDimensionLimit int `koanf:"cross_dimension_limit" validate:"gte=1,lte=1000"`

	// StoreDriver selects persistence: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver" validate:"oneof=memory sqlite postgres"`

	// StoreDSN is the sqlite path or postgres connection string.
	StoreDSN string `koanf:"store_dsn" validate:"required_unless=StoreDriver memory"`

	// RefreshAllOverall recomputes every participant's overall rank after a
	// submission. When false only the submitter's overall rank is refreshed.
	RefreshAllOverall bool `koanf:"refresh_all_overall"`

	// RebuildConcurrency bounds problems rebuilt in parallel.
	RebuildConcurrency int `koanf:"rebuild_concurrency" validate:"gte=1,lte=64"`

	// SubmitRatePerSec and SubmitBurst shape the per-user submit limiter.
	// A zero rate disables limiting.
	SubmitRatePerSec float64 `koanf:"submit_rate_per_sec" validate:"gte=0"`
	SubmitBurst      int     `koanf:"submit_burst" validate:"gte=0"`

	// IdempotencyKeys bounds the remembered Idempotency-Key values.
	IdempotencyKeys int `koanf:"idempotency_keys" validate:"gte=0"`

	// Problems replaces the built-in catalog when non-empty.
	Problems []ProblemConfig `koanf:"problems" validate:"dive"`

	// Users and Contests are seeded on start.
	Users    []UserConfig    `koanf:"users" validate:"dive"`
	Contests []ContestConfig `koanf:"contests" validate:"dive"`
}

// ProblemConfig declares one catalog problem. Bounds default to the
// benchmark kind's domain.
type ProblemConfig struct {
	ID         string   `koanf:"id" validate:"required"`
	Name       string   `koanf:"name"`
	Kind       string   `koanf:"kind" validate:"required"`
	Dimensions []int    `koanf:"dimensions" validate:"min=1,dive,gt=0,lte=10000"`
	Lower      *float64 `koanf:"lower"`
	Upper      *float64 `koanf:"upper"`
	Status     string   `koanf:"status" validate:"omitempty,oneof=active pending inactive"`
	Category   string   `koanf:"category"`
	Level      string   `koanf:"level"`
	Owner      string   `koanf:"owner"`
}

// UserConfig declares a user profile.
type UserConfig struct {
	ID          string `koanf:"id" validate:"required"`
	Name        string `koanf:"name"`
	Email       string `koanf:"email" validate:"omitempty,email"`
	Institution string `koanf:"institution"`
	Country     string `koanf:"country"`
}

// ContestConfig declares a contest.
type ContestConfig struct {
	ID           string   `koanf:"id" validate:"required"`
	Name         string   `koanf:"name"`
	ProblemIDs   []string `koanf:"problems" validate:"min=1,dive,required"`
	Participants []string `koanf:"participants"`
	EventCode    string   `koanf:"event_code"`
	Status       string   `koanf:"status"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "json",
		Addr:                ":9080",
		ShutdownTimeout:     10 * time.Second,
		MaxLeaderboardLimit: 100,
		CrossDimensionLimit: 10,
		StoreDriver:         DriverMemory,
		RefreshAllOverall:   true,
		RebuildConcurrency:  4,
		SubmitRatePerSec:    5,
		SubmitBurst:         10,
		IdempotencyKeys:     50_000,
	}
}
