// Package config collects the deployment settings. Everything comes from
// the environment; cmd/server loads a .env file first via godotenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full runtime configuration.
type Config struct {
	ListenAddr  string
	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	// ReviewQuorum is the number of live peer reviews required before a
	// submission can be finalized.
	ReviewQuorum int

	// StreakBaseBonus scales linearly with streak length; the product is
	// capped at StreakBonusCap.
	StreakBaseBonus int64
	StreakBonusCap  int64
	PenaltyAmount   int64

	// ActivityThreshold is the minimum count of finalized submissions plus
	// completed reviews in a week for the week to count toward a streak.
	ActivityThreshold int

	NotificationRetention time.Duration
	RateLimitRetention    time.Duration

	CronSecret string
	JWTSecret  string

	// JobDeadline bounds a single weekly or aggregate run.
	JobDeadline time.Duration

	FinalizeSchedule  string
	WeeklySchedule    string
	AggregateSchedule string

	RequestsPerSecond int
	RequestBurst      int
}

// Load reads the configuration from the environment, applying defaults for
// everything except the secrets, which must be set.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:            envString("LISTEN_ADDR", ":8080"),
		DatabaseDSN:           os.Getenv("DATABASE_DSN"),
		RedisAddr:             envString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		CacheTTL:              envDuration("CACHE_TTL", 5*time.Minute),
		ReviewQuorum:          envInt("REVIEW_QUORUM", 3),
		StreakBaseBonus:       envInt64("STREAK_BASE_BONUS", 10),
		StreakBonusCap:        envInt64("STREAK_BONUS_CAP", 100),
		PenaltyAmount:         envInt64("PENALTY_AMOUNT", 25),
		ActivityThreshold:     envInt("ACTIVITY_THRESHOLD", 1),
		NotificationRetention: envDuration("NOTIFICATION_RETENTION", 30*24*time.Hour),
		RateLimitRetention:    envDuration("RATE_LIMIT_RETENTION", 24*time.Hour),
		CronSecret:            os.Getenv("CRON_SECRET"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		JobDeadline:           envDuration("JOB_DEADLINE", 5*time.Minute),
		FinalizeSchedule:      envString("FINALIZE_SCHEDULE", "*/10 * * * *"),
		WeeklySchedule:        envString("WEEKLY_SCHEDULE", "0 0 * * MON"),
		AggregateSchedule:     envString("AGGREGATE_SCHEDULE", "0 */6 * * *"),
		RequestsPerSecond:     envInt("REQUESTS_PER_SECOND", 20),
		RequestBurst:          envInt("REQUEST_BURST", 40),
	}

	if cfg.DatabaseDSN == "" {
		return Config{}, fmt.Errorf("DATABASE_DSN is required")
	}
	if cfg.CronSecret == "" {
		return Config{}, fmt.Errorf("CRON_SECRET is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.ReviewQuorum < 1 {
		return Config{}, fmt.Errorf("REVIEW_QUORUM must be at least 1")
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
