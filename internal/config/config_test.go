package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_AccessDefaults(t *testing.T) {
	os.Setenv("SESSION_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Access.MaxFailedAttempts != 5 {
		t.Errorf("MaxFailedAttempts: got %d, want 5", cfg.Access.MaxFailedAttempts)
	}
	if cfg.Access.FailureWindow != 5*time.Minute {
		t.Errorf("FailureWindow: got %v, want 5m", cfg.Access.FailureWindow)
	}
	if cfg.Access.BlockDuration != 15*time.Minute {
		t.Errorf("BlockDuration: got %v, want 15m", cfg.Access.BlockDuration)
	}
}

func TestLoad_AccessCustomValues(t *testing.T) {
	os.Setenv("SESSION_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("ACCESS_MAX_FAILED_ATTEMPTS", "3")
	os.Setenv("ACCESS_FAILURE_WINDOW", "2m")
	os.Setenv("ACCESS_BLOCK_DURATION", "30m")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Access.MaxFailedAttempts != 3 {
		t.Errorf("MaxFailedAttempts: got %d, want 3", cfg.Access.MaxFailedAttempts)
	}
	if cfg.Access.FailureWindow != 2*time.Minute {
		t.Errorf("FailureWindow: got %v, want 2m", cfg.Access.FailureWindow)
	}
	if cfg.Access.BlockDuration != 30*time.Minute {
		t.Errorf("BlockDuration: got %v, want 30m", cfg.Access.BlockDuration)
	}
}

func TestLoad_RequiresSessionSecret(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail without SESSION_SECRET")
	}
}

func TestLoad_RejectsShortSecretInProduction(t *testing.T) {
	os.Setenv("SESSION_SECRET", "too-short-for-prod")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("ENV", "production")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject a short secret in production")
	}
}
