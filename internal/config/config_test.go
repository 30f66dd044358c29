package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

// chdir is t.Chdir for toolchains predating Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Mode != "release" {
		t.Errorf("mode = %q, want release", cfg.Mode)
	}
	if cfg.HTTPPort != 8090 {
		t.Errorf("http_port = %d, want 8090", cfg.HTTPPort)
	}
	if cfg.PingPeriod != 54*time.Second {
		t.Errorf("ping_period = %v, want 54s", cfg.PingPeriod)
	}
	if cfg.NegotiationTimeout != 15*time.Second {
		t.Errorf("negotiation_timeout = %v, want 15s", cfg.NegotiationTimeout)
	}
	if len(cfg.StunURLs) != 1 {
		t.Errorf("stun_urls = %v, want one default", cfg.StunURLs)
	}
	if _, err := uuid.Parse(cfg.ParticipantID); err != nil {
		t.Errorf("participant_id %q is not a generated uuid: %v", cfg.ParticipantID, err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CONFIG_ENV", "test")

	if err := os.Mkdir(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := []byte(`
mode: debug
http_port: 9999
signal_url: ws://relay.example/signal
participant_id: fixed-id
display_name: Tester
negotiation_timeout: 3s
`)
	if err := os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), yaml, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Mode != "debug" || cfg.HTTPPort != 9999 {
		t.Errorf("mode/port = %q/%d, want debug/9999", cfg.Mode, cfg.HTTPPort)
	}
	if cfg.SignalURL != "ws://relay.example/signal" {
		t.Errorf("signal_url = %q", cfg.SignalURL)
	}
	if cfg.ParticipantID != "fixed-id" {
		t.Errorf("participant_id = %q, want the configured id", cfg.ParticipantID)
	}
	if cfg.NegotiationTimeout != 3*time.Second {
		t.Errorf("negotiation_timeout = %v, want 3s", cfg.NegotiationTimeout)
	}
	// Values absent from the file keep their defaults.
	if cfg.ReconnectMin != 250*time.Millisecond {
		t.Errorf("reconnect_min = %v, want default", cfg.ReconnectMin)
	}
}
