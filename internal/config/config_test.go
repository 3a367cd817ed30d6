package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SLOT_STEP", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SlotStep != 15*time.Minute {
		t.Fatalf("expected default slot step, got %s", cfg.SlotStep)
	}
	if !cfg.SquareSandbox {
		t.Fatalf("expected square sandbox enabled by default")
	}
	if cfg.TrialDays != 14 {
		t.Fatalf("expected default trial days, got %d", cfg.TrialDays)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("SLOT_STEP", "30m")
	t.Setenv("MONTHLY_PLAN_CENTS", "9900")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.SlotStep != 30*time.Minute {
		t.Fatalf("expected slot step override, got %s", cfg.SlotStep)
	}
	if cfg.MonthlyPlanCents != 9900 {
		t.Fatalf("expected plan cents override, got %d", cfg.MonthlyPlanCents)
	}
	if cfg.StripeSecretKey != "sk_test_123" {
		t.Fatalf("expected stripe key override, got %s", cfg.StripeSecretKey)
	}
}
