// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Log     LogConfig
	Ops     OpsConfig
	Yield   YieldConfig
	Default ProtocolDefaults
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
}

type OpsConfig struct {
	Addr            string // listen address for /metrics and /healthz
	ShutdownTimeout time.Duration
}

type YieldConfig struct {
	APY            float64 // annual rate of the mock reserve, e.g. 0.05
	ReserveFunding uint64  // initial payout funding in base units
}

// ProtocolDefaults seed the config registry when the process bootstraps a
// fresh arena.
type ProtocolDefaults struct {
	PlatformFeeBps uint16
	MinDuration    time.Duration
	MaxDuration    time.Duration
}

// Load reads the environment, merging a .env file when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Ops: OpsConfig{
			Addr:            getEnv("OPS_ADDR", ":9464"),
			ShutdownTimeout: 10 * time.Second,
		},
	}

	var err error
	if cfg.Yield.APY, err = getFloat("YIELD_APY", 0.05); err != nil {
		return nil, err
	}
	if cfg.Yield.ReserveFunding, err = getUint("YIELD_RESERVE_FUNDING", 1_000_000_000); err != nil {
		return nil, err
	}
	feeBps, err := getUint("PLATFORM_FEE_BPS", 500)
	if err != nil {
		return nil, err
	}
	if feeBps > 10_000 {
		return nil, fmt.Errorf("PLATFORM_FEE_BPS %d exceeds 10000", feeBps)
	}
	cfg.Default.PlatformFeeBps = uint16(feeBps)

	minDays, err := getUint("MIN_SUBSCRIPTION_DAYS", 30)
	if err != nil {
		return nil, err
	}
	maxDays, err := getUint("MAX_SUBSCRIPTION_DAYS", 365)
	if err != nil {
		return nil, err
	}
	cfg.Default.MinDuration = time.Duration(minDays) * 24 * time.Hour
	cfg.Default.MaxDuration = time.Duration(maxDays) * 24 * time.Hour
	if cfg.Default.MinDuration > cfg.Default.MaxDuration {
		return nil, fmt.Errorf("MIN_SUBSCRIPTION_DAYS %d exceeds MAX_SUBSCRIPTION_DAYS %d", minDays, maxDays)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q: %w", key, v, err)
	}
	return f, nil
}

func getUint(key string, fallback uint64) (uint64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	u, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q: %w", key, v, err)
	}
	return u, nil
}
