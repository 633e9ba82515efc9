package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DOMAIN", "NODE_ENV", "REQUEST_TIMEOUT", "PING_INTERVAL", "MAX_FRAME_BYTES"} {
		original := os.Getenv(key)
		os.Unsetenv(key)
		defer func(k, v string) {
			if v != "" {
				os.Setenv(k, v)
			}
		}(key, original)
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("expected default port '8080', got %q", cfg.Port)
	}
	if cfg.Domain != "localhost" {
		t.Errorf("expected default domain 'localhost', got %q", cfg.Domain)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("expected default request timeout 30s, got %v", cfg.RequestTimeout)
	}
	if cfg.MaxFrameBytes != 50*1024*1024 {
		t.Errorf("expected default max frame bytes 50MiB, got %d", cfg.MaxFrameBytes)
	}
}

func TestLoadWithEnvVars(t *testing.T) {
	original := os.Getenv("PORT")
	defer func() {
		if original != "" {
			os.Setenv("PORT", original)
		} else {
			os.Unsetenv("PORT")
		}
	}()

	os.Setenv("PORT", "9999")

	cfg := Load()
	if cfg.Port != "9999" {
		t.Errorf("expected port '9999', got %q", cfg.Port)
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	os.Unsetenv("TEST_DURATION")
	got := getEnvAsDuration("TEST_DURATION", 5*time.Second)
	if got != 5*time.Second {
		t.Errorf("expected default 5s, got %v", got)
	}

	os.Setenv("TEST_DURATION", "10s")
	defer os.Unsetenv("TEST_DURATION")
	got = getEnvAsDuration("TEST_DURATION", 5*time.Second)
	if got != 10*time.Second {
		t.Errorf("expected 10s, got %v", got)
	}
}
