package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Errorf("IsDev() = false for env %q", cfg.Env)
	}
	if cfg.QueueLookbackDays != 7 {
		t.Errorf("QueueLookbackDays = %d, want 7", cfg.QueueLookbackDays)
	}
	if got := cfg.QueueLookback(); got != 7*24*time.Hour {
		t.Errorf("QueueLookback() = %v, want 168h", got)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("QUEUE_LOOKBACK_DAYS", "3")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.QueueLookbackDays != 3 {
		t.Errorf("QueueLookbackDays = %d, want 3", cfg.QueueLookbackDays)
	}
	origins := cfg.CORSOriginList()
	if len(origins) != 2 || origins[0] != "https://a.example" || origins[1] != "https://b.example" {
		t.Errorf("CORSOriginList() = %v", origins)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("QUEUE_LOOKBACK_DAYS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero lookback")
	}
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for empty JWT_SECRET in production")
	}
}
