package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(Sources{Lookup: envMap(nil)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Interface != "wg0" || cfg.HandshakeThresholdMinutes != 15 || cfg.PingTimeoutSeconds != 2 ||
		cfg.PingAttempts != 1 || cfg.ForceRestart || cfg.RestartIntervalMinutes != 30 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_Precedence(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	file := filepath.Join(tmp, "watchdog.yaml")
	if err := os.WriteFile(file, []byte("handshake_threshold_minutes: 20\nping_attempts: 3\nrestart_interval_minutes: 45\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	envFile := filepath.Join(tmp, "watchdog.env")
	if err := os.WriteFile(envFile, []byte("PING_COUNT=4\nRESTART_INTERVAL=60\nSTUN_SERVERS=stun.l.google.com:19302, stun1.l.google.com:19302\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(Sources{
		File:     file,
		EnvFiles: []string{envFile},
		Lookup:   envMap(map[string]string{"RESTART_INTERVAL": "90", "FORCE_RESTART": "true"}),
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HandshakeThresholdMinutes != 20 {
		t.Fatalf("threshold=%d", cfg.HandshakeThresholdMinutes)
	}
	if cfg.PingAttempts != 4 {
		t.Fatalf("attempts=%d", cfg.PingAttempts)
	}
	if cfg.RestartIntervalMinutes != 90 {
		t.Fatalf("interval=%d", cfg.RestartIntervalMinutes)
	}
	if !cfg.ForceRestart {
		t.Fatalf("force_restart not set")
	}
	if len(cfg.STUNServers) != 2 || cfg.STUNServers[1] != "stun1.l.google.com:19302" {
		t.Fatalf("stun=%v", cfg.STUNServers)
	}
}

func TestLoad_RejectsMalformedValues(t *testing.T) {
	t.Parallel()

	_, err := Load(Sources{Lookup: envMap(map[string]string{"PING_TIMEOUT": "2s", "FORCE_RESTART": "maybe"})})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "PING_TIMEOUT") || !strings.Contains(err.Error(), "FORCE_RESTART") {
		t.Fatalf("err=%v", err)
	}
}

func TestValidate_NumericFieldsMustBePositive(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	ApplyDefaults(&cfg)
	cfg.PingAttempts = -1
	cfg.RestartIntervalMinutes = -5
	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "ping_attempts") || !strings.Contains(err.Error(), "restart_interval_minutes") {
		t.Fatalf("err=%v", err)
	}
}

func TestValidate_Enums(t *testing.T) {
	t.Parallel()

	cfg := Config{StatusBackend: "ssh", RestartMethod: "reboot"}
	ApplyDefaults(&cfg)
	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "status_backend") || !strings.Contains(err.Error(), "restart_method") {
		t.Fatalf("err=%v", err)
	}

	cfg = Config{ServiceUnit: "wg-quick"}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected service_unit error")
	}
}

func TestLoad_MissingEnvFile(t *testing.T) {
	t.Parallel()

	_, err := Load(Sources{EnvFiles: []string{filepath.Join(t.TempDir(), "missing.env")}})
	if err == nil {
		t.Fatalf("expected error")
	}
}
