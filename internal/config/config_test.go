package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.LockoutThreshold != 5 {
		t.Errorf("LockoutThreshold = %d, want 5", cfg.LockoutThreshold)
	}
	if cfg.ExportJustificationMin != 20 {
		t.Errorf("ExportJustificationMin = %d, want 20", cfg.ExportJustificationMin)
	}
}

func TestLoad_InvalidBcryptCost(t *testing.T) {
	t.Setenv("BCRYPT_COST", "99")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for BCRYPT_COST out of range")
	}
}

func TestLoad_ProductionRequiresKeyMaterial(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("MASTER_KEY", "")
	t.Setenv("KMS_KEY_ARN", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when production has no key material")
	}
}

func TestDurations_FallBackOnInvalid(t *testing.T) {
	cfg := &Config{SessionIdleWindow: "bogus", PrivilegedWindow: ""}
	if got := cfg.IdleWindow(); got != 15*time.Minute {
		t.Errorf("IdleWindow = %v, want 15m", got)
	}
	if got := cfg.PrivilegedTTL(); got != 5*time.Minute {
		t.Errorf("PrivilegedTTL = %v, want 5m", got)
	}
}

func TestDurations_ParseConfigured(t *testing.T) {
	cfg := &Config{SessionAbsoluteWindow: "4h", LockoutDuration: "1h"}
	if got := cfg.AbsoluteWindow(); got != 4*time.Hour {
		t.Errorf("AbsoluteWindow = %v, want 4h", got)
	}
	if got := cfg.LockoutTTL(); got != time.Hour {
		t.Errorf("LockoutTTL = %v, want 1h", got)
	}
}
