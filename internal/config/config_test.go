package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.CadenceMs != 25 {
		t.Errorf("CadenceMs = %d, want 25", cfg.CadenceMs)
	}
	if cfg.FadeStepMs != 10 {
		t.Errorf("FadeStepMs = %d, want 10", cfg.FadeStepMs)
	}
	if cfg.MaxConsecutiveSendErrs != 20 {
		t.Errorf("MaxConsecutiveSendErrs = %d, want 20", cfg.MaxConsecutiveSendErrs)
	}
	if len(cfg.Universes) != 1 {
		t.Fatalf("Universes = %v, want one default universe", cfg.Universes)
	}
	if cfg.Universes[0].Transport != TransportBroadcast {
		t.Errorf("default universe transport = %s, want broadcast", cfg.Universes[0].Transport)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.CORSOrigin != "*" {
		t.Errorf("CORSOrigin = %q, want *", cfg.CORSOrigin)
	}
}

func TestUniversesFromEnv(t *testing.T) {
	clearEnv(t)
	os.Setenv("UNIVERSES", "0:0,1:3:10.0.0.5")
	defer os.Unsetenv("UNIVERSES")

	cfg := Load()
	if len(cfg.Universes) != 2 {
		t.Fatalf("got %d universes, want 2", len(cfg.Universes))
	}
	if cfg.Universes[1].Transport != TransportUnicast || cfg.Universes[1].UnicastAddr != "10.0.0.5" {
		t.Errorf("second universe = %+v, want unicast to 10.0.0.5", cfg.Universes[1])
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	if !cfg.IsDevelopment() {
		t.Error("expected IsDevelopment() true")
	}
	cfg.Env = "production"
	if cfg.IsDevelopment() {
		t.Error("expected IsDevelopment() false")
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CADENCE_MS", "FADE_STEP_MS", "REFRESH_MS", "MAX_CONSECUTIVE_SEND_ERRORS",
		"DMX_IDLE_RATE_HZ", "DMX_HIGH_RATE_DURATION_MS", "ARTNET_ENABLED", "ARTNET_PORT",
		"ARTNET_BROADCAST", "CLOCK_DEFAULT_BPM", "DMX_DRIFT_THRESHOLD_MS", "DMX_DRIFT_THROTTLE_MS",
		"DATABASE_URL", "ENV", "UNIVERSES", "PORT", "CORS_ORIGIN",
	} {
		os.Unsetenv(key)
	}
}
