package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DSN", "postgres://localhost/xp?sslmode=disable")
	t.Setenv("CRON_SECRET", "cron-secret")
	t.Setenv("JWT_SECRET", "jwt-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen addr = %s", cfg.ListenAddr)
	}
	if cfg.ReviewQuorum != 3 {
		t.Fatalf("quorum = %d", cfg.ReviewQuorum)
	}
	if cfg.StreakBaseBonus != 10 || cfg.StreakBonusCap != 100 || cfg.PenaltyAmount != 25 {
		t.Fatalf("unexpected xp policy: %+v", cfg)
	}
	if cfg.JobDeadline != 5*time.Minute {
		t.Fatalf("deadline = %v", cfg.JobDeadline)
	}
	if cfg.WeeklySchedule != "0 0 * * MON" {
		t.Fatalf("weekly schedule = %q", cfg.WeeklySchedule)
	}
	if cfg.FinalizeSchedule != "*/10 * * * *" {
		t.Fatalf("finalize schedule = %q", cfg.FinalizeSchedule)
	}
	if cfg.NotificationRetention != 30*24*time.Hour {
		t.Fatalf("retention = %v", cfg.NotificationRetention)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("REVIEW_QUORUM", "5")
	t.Setenv("PENALTY_AMOUNT", "100")
	t.Setenv("JOB_DEADLINE", "90s")
	t.Setenv("CACHE_TTL", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ReviewQuorum != 5 || cfg.PenaltyAmount != 100 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.JobDeadline != 90*time.Second || cfg.CacheTTL != 30*time.Second {
		t.Fatalf("durations not applied: %+v", cfg)
	}
}

func TestLoadRejectsMissingSecrets(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/xp")
	t.Setenv("CRON_SECRET", "")
	t.Setenv("JWT_SECRET", "jwt-secret")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing CRON_SECRET")
	}

	t.Setenv("CRON_SECRET", "cron-secret")
	t.Setenv("DATABASE_DSN", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing DATABASE_DSN")
	}
}

func TestLoadRejectsZeroQuorum(t *testing.T) {
	setRequired(t)
	t.Setenv("REVIEW_QUORUM", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero quorum")
	}
}
