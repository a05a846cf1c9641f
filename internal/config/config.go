package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCycleIntervalMs  = 1000
	DefaultProbeTimeoutMs   = 5000
	DefaultPingTarget       = "google.com"
	DefaultPingCount        = 1
	DefaultSTUNServer       = "stun.l.google.com:19302"
	DefaultHistoryPath      = "netmon-history.yaml"
	DefaultHistoryBackend   = "yaml"
	DefaultFailureLatencyMs = 999

	DefaultResolverURL        = "https://api.maclookup.app/v2/macs/"
	DefaultResolverIntervalMs = 500
	DefaultResolverTimeoutMs  = 5000
	DefaultResolverRate       = 2.0

	DefaultLedgerIntervalMs = 1000
	DefaultLedgerRetryMs    = 2000
	DefaultLedgerRetryMaxMs = 30000
	DefaultLedgerOrigin     = "http://localhost/"
	DefaultListen           = "127.0.0.1:7070"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
)

// Config is the whole agent configuration.
type Config struct {
	Monitor  MonitorConfig  `yaml:"monitor"`
	Resolver ResolverConfig `yaml:"resolver"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Server   ServerConfig   `yaml:"server"`
}

// MonitorConfig drives the measurement cycle and history.
type MonitorConfig struct {
	CycleIntervalMs  int      `yaml:"cycle_interval_ms"`
	ProbeTimeoutMs   int      `yaml:"probe_timeout_ms"`
	PingTarget       string   `yaml:"ping_target"`
	PingCount        int      `yaml:"ping_count"`
	STUNServers      []string `yaml:"stun_servers"`
	HistoryPath      string   `yaml:"history_path"`
	HistoryBackend   string   `yaml:"history_backend"`
	MetricsPath      string   `yaml:"metrics_path,omitempty"`
	FailureLatencyMs int      `yaml:"failure_latency_ms"`
}

// ResolverConfig drives hardware-id vendor lookups.
type ResolverConfig struct {
	URL         string  `yaml:"url"`
	IntervalMs  int     `yaml:"interval_ms"`
	TimeoutMs   int     `yaml:"timeout_ms"`
	RatePerSec  float64 `yaml:"rate_per_sec"`
	RetryFailed bool    `yaml:"retry_failed"`
}

// LedgerConfig drives the websocket latency ledger. An empty Endpoint
// disables it.
type LedgerConfig struct {
	Endpoint        string `yaml:"endpoint,omitempty"`
	Origin          string `yaml:"origin"`
	IntervalMs      int    `yaml:"interval_ms"`
	RetryDelayMs    int    `yaml:"retry_delay_ms"`
	RetryMaxDelayMs int    `yaml:"retry_max_delay_ms"`
}

// ServerConfig is the local HTTP surface and logging.
type ServerConfig struct {
	Listen    string `yaml:"listen"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns a config with every default applied.
func Default() Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return cfg
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate rejects values the agent cannot run with.
func Validate(cfg Config) error {
	m := cfg.Monitor
	if m.CycleIntervalMs <= 0 {
		return fmt.Errorf("monitor.cycle_interval_ms must be > 0")
	}
	if m.ProbeTimeoutMs <= 0 {
		return fmt.Errorf("monitor.probe_timeout_ms must be > 0")
	}
	if m.PingTarget == "" {
		return fmt.Errorf("monitor.ping_target is required")
	}
	if m.PingCount <= 0 {
		return fmt.Errorf("monitor.ping_count must be > 0")
	}
	if len(m.STUNServers) == 0 {
		return fmt.Errorf("monitor.stun_servers is required")
	}
	switch m.HistoryBackend {
	case "yaml", "bolt":
	default:
		return fmt.Errorf("monitor.history_backend must be yaml or bolt, got %q", m.HistoryBackend)
	}

	r := cfg.Resolver
	if _, err := url.ParseRequestURI(r.URL); err != nil {
		return fmt.Errorf("resolver.url: %w", err)
	}
	if r.IntervalMs <= 0 || r.TimeoutMs <= 0 {
		return fmt.Errorf("resolver.interval_ms and resolver.timeout_ms must be > 0")
	}
	if r.RatePerSec < 0 {
		return fmt.Errorf("resolver.rate_per_sec must be >= 0")
	}

	l := cfg.Ledger
	if l.Endpoint != "" {
		u, err := url.Parse(l.Endpoint)
		if err != nil {
			return fmt.Errorf("ledger.endpoint: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("ledger.endpoint must be ws:// or wss://, got %q", l.Endpoint)
		}
		if l.IntervalMs <= 0 {
			return fmt.Errorf("ledger.interval_ms must be > 0")
		}
	}

	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	m := &cfg.Monitor
	if m.CycleIntervalMs == 0 {
		m.CycleIntervalMs = DefaultCycleIntervalMs
	}
	if m.ProbeTimeoutMs == 0 {
		m.ProbeTimeoutMs = DefaultProbeTimeoutMs
	}
	if m.PingTarget == "" {
		m.PingTarget = DefaultPingTarget
	}
	if m.PingCount == 0 {
		m.PingCount = DefaultPingCount
	}
	if len(m.STUNServers) == 0 {
		m.STUNServers = []string{DefaultSTUNServer}
	}
	if m.HistoryPath == "" {
		m.HistoryPath = DefaultHistoryPath
	}
	if m.HistoryBackend == "" {
		m.HistoryBackend = DefaultHistoryBackend
	}
	if m.FailureLatencyMs == 0 {
		m.FailureLatencyMs = DefaultFailureLatencyMs
	}

	r := &cfg.Resolver
	if r.URL == "" {
		r.URL = DefaultResolverURL
	}
	if r.IntervalMs == 0 {
		r.IntervalMs = DefaultResolverIntervalMs
	}
	if r.TimeoutMs == 0 {
		r.TimeoutMs = DefaultResolverTimeoutMs
	}
	if r.RatePerSec == 0 {
		r.RatePerSec = DefaultResolverRate
	}

	l := &cfg.Ledger
	if l.Origin == "" {
		l.Origin = DefaultLedgerOrigin
	}
	if l.IntervalMs == 0 {
		l.IntervalMs = DefaultLedgerIntervalMs
	}
	if l.RetryDelayMs == 0 {
		l.RetryDelayMs = DefaultLedgerRetryMs
	}
	if l.RetryMaxDelayMs == 0 {
		l.RetryMaxDelayMs = DefaultLedgerRetryMaxMs
	}

	s := &cfg.Server
	if s.Listen == "" {
		s.Listen = DefaultListen
	}
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	if s.LogFormat == "" {
		s.LogFormat = DefaultLogFormat
	}
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (m MonitorConfig) CycleInterval() time.Duration { return ms(m.CycleIntervalMs) }
func (m MonitorConfig) ProbeTimeout() time.Duration { return ms(m.ProbeTimeoutMs) }
func (r ResolverConfig) Interval() time.Duration { return ms(r.IntervalMs) }
func (r ResolverConfig) Timeout() time.Duration { return ms(r.TimeoutMs) }
func (l LedgerConfig) Interval() time.Duration { return ms(l.IntervalMs) }
func (l LedgerConfig) RetryDelay() time.Duration { return ms(l.RetryDelayMs) }
func (l LedgerConfig) RetryMaxDelay() time.Duration { return ms(l.RetryMaxDelayMs) }
