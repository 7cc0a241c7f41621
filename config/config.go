package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	gap "github.com/muesli/go-app-paths"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DOCKET_CACHE_"

// AppName names the per-user directories used for defaults.
const AppName = "docketcache"

// DefaultAuditMaxSize is the audit log size at which it starts over.
const DefaultAuditMaxSize int64 = 10_000_000

// Config configures a cache.
type Config struct {
	// Root is the store directory. Entry files and the sentinel live directly in it.
	Root string `yaml:"root" env:"ROOT"`

	// GlobalGroups are shared across all tenants of a host.
	GlobalGroups []string `yaml:"global_groups" env:"GLOBAL_GROUPS"`

	// NonPersistentGroups are kept in memory only.
	NonPersistentGroups []string `yaml:"non_persistent_groups" env:"NON_PERSISTENT_GROUPS"`

	// NonPersistentKeys are kept in memory only, matched after KeyPrefix is stripped.
	NonPersistentKeys []string `yaml:"non_persistent_keys" env:"NON_PERSISTENT_KEYS"`

	// KeyPrefix is the tenant prefix the host puts in front of keys.
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`

	// MaxTTL replaces a zero TTL and caps larger ones. Zero means no cap.
	MaxTTL time.Duration `yaml:"max_ttl" env:"MAXTTL"`

	// Compress writes records as zstd frames.
	Compress bool `yaml:"compress" env:"COMPRESS"`

	Audit     AuditConfig     `yaml:"audit" envPrefix:"DEBUG_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled         bool   `yaml:"enabled" env:"ENABLED"`
	Path            string `yaml:"path" env:"FILE"`
	MaxSize         int64  `yaml:"max_size" env:"SIZE"`
	TruncateOnFlush bool   `yaml:"truncate_on_flush" env:"FLUSH"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
}

// TelemetryConfig selects trace and metric exporters. "none" or empty
// turns a signal off.
type TelemetryConfig struct {
	Traces     string  `yaml:"traces" env:"TRACES"`
	Metrics    string  `yaml:"metrics" env:"METRICS"`
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Enabled reports whether any signal is exported.
func (t TelemetryConfig) Enabled() bool {
	return on(t.Traces) || on(t.Metrics)
}

// TracesOn reports whether traces are exported.
func (t TelemetryConfig) TracesOn() bool { return on(t.Traces) }

// MetricsOn reports whether metrics are exported.
func (t TelemetryConfig) MetricsOn() bool { return on(t.Metrics) }

func on(exporter string) bool {
	return exporter != "" && exporter != "none"
}

// DefaultGlobalGroups are shared groups in a multi-tenant host.
func DefaultGlobalGroups() []string {
	return []string{
		"blog-details", "blog-id-cache", "blog-lookup", "global-posts",
		"networks", "rss", "sites", "site-details", "site-lookup",
		"site-options", "site-transient", "users", "useremail",
		"userlogins", "usermeta", "user_meta", "userslugs",
	}
}

// DefaultNonPersistentGroups are groups whose values never reach disk.
func DefaultNonPersistentGroups() []string {
	return []string{
		"user_meta", "counts", "plugins", "themes", "comment",
		"wc_session_id", "bp_notifications", "bp_messages", "bp_pages",
	}
}

// Default returns the stock configuration.
func Default() Config {
	scope := gap.NewScope(gap.User, AppName)

	root, err := scope.CacheDir()
	if err != nil || root == "" {
		root = filepath.Join(os.TempDir(), AppName)
	}
	logPath, err := scope.LogPath("docket.log")
	if err != nil || logPath == "" {
		logPath = fallbackLogPath(root)
	}

	return Config{
		Root:                root,
		GlobalGroups:        DefaultGlobalGroups(),
		NonPersistentGroups: DefaultNonPersistentGroups(),
		Audit: AuditConfig{
			Path:    logPath,
			MaxSize: DefaultAuditMaxSize,
		},
		Log:       LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{Traces: "none", Metrics: "none", SampleRate: 1},
	}
}

// fallbackLogPath puts the audit log next to root, never inside it, so a
// flush cannot sweep it.
func fallbackLogPath(root string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(root)), AppName+"-docket.log")
}

// LoadOptions tunes Load. The zero value reads the process environment.
type LoadOptions struct {
	// Environment replaces the process environment when non-nil.
	Environment map[string]string
}

// Load builds a Config from Default, the YAML file at path (skipped when path
// is empty), and environment overrides.
func Load(path string) (Config, error) {
	return LoadWith(path, LoadOptions{})
}

// LoadWith is Load with explicit options.
func LoadWith(path string, opts LoadOptions) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	envOpts := env.Options{Prefix: EnvPrefix}
	lookup := os.LookupEnv
	if opts.Environment != nil {
		envOpts.Environment = opts.Environment
		lookup = func(k string) (string, bool) {
			v, ok := opts.Environment[k]
			return v, ok
		}
	}
	if err := env.ParseWithOptions(&cfg, envOpts); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}

	var err error
	if cfg.Root, err = expandWith(cfg.Root, lookup); err != nil {
		return Config{}, fmt.Errorf("config: root: %w", err)
	}
	if cfg.Audit.Path, err = expandWith(cfg.Audit.Path, lookup); err != nil {
		return Config{}, fmt.Errorf("config: audit path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Root) == "" {
		errs = append(errs, errors.New("root is empty"))
	}
	if c.MaxTTL < 0 {
		errs = append(errs, fmt.Errorf("max_ttl %s is negative", c.MaxTTL))
	}
	if c.Audit.MaxSize < 0 {
		errs = append(errs, fmt.Errorf("audit max_size %d is negative", c.Audit.MaxSize))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry sample_rate %g is outside [0, 1]", c.Telemetry.SampleRate))
	}
	if c.Audit.Enabled && strings.TrimSpace(c.Audit.Path) == "" {
		errs = append(errs, errors.New("audit enabled without a path"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
