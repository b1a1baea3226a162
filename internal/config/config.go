package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultInterface          = "wg0"
	DefaultHandshakeThreshold = 15 // minutes
	DefaultPingTimeout        = 2  // seconds
	DefaultPingAttempts       = 1
	DefaultRestartInterval    = 30 // minutes
	DefaultStateDir           = "/run/wg-watchdog"
	DefaultStatusBackend      = BackendWgctrl
	DefaultRestartMethod      = RestartSystemd
	DefaultServiceUnit        = "wg-quick@%s"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

const (
	BackendWgctrl = "wgctrl"
	BackendWg     = "wg"

	RestartSystemd = "systemd"
	RestartWgQuick = "wg-quick"
)

// Config holds the per-run watchdog parameters. It is built once at startup
// and passed by value; nothing reads the environment after Load returns.
type Config struct {
	Interface                 string   `yaml:"interface_name"`
	HandshakeThresholdMinutes int      `yaml:"handshake_threshold_minutes"`
	PingTimeoutSeconds        int      `yaml:"ping_timeout_seconds"`
	PingAttempts              int      `yaml:"ping_attempts"`
	ForceRestart              bool     `yaml:"force_restart"`
	RestartIntervalMinutes    int      `yaml:"restart_interval_minutes"`
	StateDir                  string   `yaml:"state_dir"`
	StateLock                 bool     `yaml:"state_lock"`
	StatusBackend             string   `yaml:"status_backend"`
	RestartMethod             string   `yaml:"restart_method"`
	ServiceUnit               string   `yaml:"service_unit"`
	JournalPath               string   `yaml:"journal_path"`
	STUNServers               []string `yaml:"stun_servers"`
	LogLevel                  string   `yaml:"log_level"`
	LogFormat                 string   `yaml:"log_format"`
}

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Sources lists where Load reads settings from, lowest precedence first:
// defaults, the YAML file, env files, then the process environment.
type Sources struct {
	File     string
	EnvFiles []string
	Lookup   LookupFunc
}

// Load builds a Config from src and applies defaults. It does not validate.
func Load(src Sources) (Config, error) {
	var cfg Config
	if src.File != "" {
		fileCfg, err := LoadFile(src.File)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}
	ApplyDefaults(&cfg)

	dotenv := map[string]string{}
	for _, path := range src.EnvFiles {
		values, err := godotenv.Read(path)
		if err != nil {
			return Config{}, fmt.Errorf("read env file %s: %w", path, err)
		}
		for k, v := range values {
			dotenv[k] = v
		}
	}

	lookup := func(key string) (string, bool) {
		if src.Lookup != nil {
			if v, ok := src.Lookup(key); ok && v != "" {
				return v, true
			}
		}
		v, ok := dotenv[key]
		return v, ok && v != ""
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads and parses a YAML config file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Interface == "" {
		cfg.Interface = DefaultInterface
	}
	if cfg.HandshakeThresholdMinutes == 0 {
		cfg.HandshakeThresholdMinutes = DefaultHandshakeThreshold
	}
	if cfg.PingTimeoutSeconds == 0 {
		cfg.PingTimeoutSeconds = DefaultPingTimeout
	}
	if cfg.PingAttempts == 0 {
		cfg.PingAttempts = DefaultPingAttempts
	}
	if cfg.RestartIntervalMinutes == 0 {
		cfg.RestartIntervalMinutes = DefaultRestartInterval
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir
	}
	if cfg.StatusBackend == "" {
		cfg.StatusBackend = DefaultStatusBackend
	}
	if cfg.RestartMethod == "" {
		cfg.RestartMethod = DefaultRestartMethod
	}
	if cfg.ServiceUnit == "" {
		cfg.ServiceUnit = DefaultServiceUnit
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = DefaultLogFormat
	}
}

// Validate enforces that every numeric field is positive and enums are known.
func Validate(cfg Config) error {
	var errs []error
	if strings.TrimSpace(cfg.Interface) == "" {
		errs = append(errs, errors.New("interface_name is required"))
	}
	positive := []struct {
		name  string
		value int
	}{
		{"handshake_threshold_minutes", cfg.HandshakeThresholdMinutes},
		{"ping_timeout_seconds", cfg.PingTimeoutSeconds},
		{"ping_attempts", cfg.PingAttempts},
		{"restart_interval_minutes", cfg.RestartIntervalMinutes},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %d", p.name, p.value))
		}
	}
	if cfg.StateDir == "" {
		errs = append(errs, errors.New("state_dir is required"))
	}
	switch cfg.StatusBackend {
	case BackendWgctrl, BackendWg:
	default:
		errs = append(errs, fmt.Errorf("status_backend must be %q or %q, got %q", BackendWgctrl, BackendWg, cfg.StatusBackend))
	}
	switch cfg.RestartMethod {
	case RestartSystemd:
		if strings.Count(cfg.ServiceUnit, "%s") != 1 {
			errs = append(errs, fmt.Errorf("service_unit must contain exactly one %%s, got %q", cfg.ServiceUnit))
		}
	case RestartWgQuick:
	default:
		errs = append(errs, fmt.Errorf("restart_method must be %q or %q, got %q", RestartSystemd, RestartWgQuick, cfg.RestartMethod))
	}
	return errors.Join(errs...)
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, v))
			return
		}
		*dst = b
	}

	str("WG_INTERFACE", &cfg.Interface)
	num("HANDSHAKE_THRESHOLD", &cfg.HandshakeThresholdMinutes)
	num("PING_TIMEOUT", &cfg.PingTimeoutSeconds)
	num("PING_COUNT", &cfg.PingAttempts)
	flag("FORCE_RESTART", &cfg.ForceRestart)
	num("RESTART_INTERVAL", &cfg.RestartIntervalMinutes)
	str("STATE_DIR", &cfg.StateDir)
	flag("STATE_LOCK", &cfg.StateLock)
	str("STATUS_BACKEND", &cfg.StatusBackend)
	str("RESTART_METHOD", &cfg.RestartMethod)
	str("SERVICE_UNIT", &cfg.ServiceUnit)
	str("JOURNAL_PATH", &cfg.JournalPath)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	if v, ok := lookup("STUN_SERVERS"); ok {
		cfg.STUNServers = SplitList(v)
	}
	return errors.Join(errs...)
}

// SplitList splits a comma-separated list, dropping empty items.
func SplitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
