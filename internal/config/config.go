package config

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath         = "/etc/folder-deleter/config.yaml"
	defaultDatabasePath = "/var/lib/folder-deleter/history.db"
	defaultLogDir       = "/var/log/folder-deleter"
	defaultItemPause    = 5 * time.Millisecond
	defaultRetention    = 90
)

type ServerCfg struct {
	Addr         string         `yaml:"addr" json:"addr"`
	ItemPause    *time.Duration `yaml:"item_pause" json:"item_pause"`       // Pause after each deleted item; 0 disables pacing
	StreamBuffer int            `yaml:"stream_buffer" json:"stream_buffer"` // Events queued ahead of a slow consumer
	MaxStreams   int            `yaml:"max_streams" json:"max_streams"`     // Concurrent deletions; 0 means unlimited
}

type PrometheusCfg struct {
	Port int `yaml:"port" json:"port"` // 0 serves /metrics on the main router
}

type LoggingCfg struct {
	Dir          string `yaml:"dir" json:"dir"`
	RotationDays int    `yaml:"rotation_days" json:"rotation_days"` // Days to keep logs before rotation
}

type RateLimitCfg struct {
	RPS            float64  `yaml:"rps" json:"rps"`
	Burst          int      `yaml:"burst" json:"burst"`
	TrustedProxies []string `yaml:"trusted_proxies" json:"trusted_proxies"` // Addresses or CIDRs whose X-Forwarded-For is believed
}

type AuthCfg struct {
	JWTSecret string        `yaml:"jwt_secret" json:"-"` // Empty disables authentication
	JWTExpiry time.Duration `yaml:"jwt_expiry" json:"jwt_expiry"`
}

type Config struct {
	Server         ServerCfg     `yaml:"server" json:"server"`
	Prometheus     PrometheusCfg `yaml:"prometheus" json:"prometheus"`
	Logging        LoggingCfg    `yaml:"logging" json:"logging"`
	RateLimit      RateLimitCfg  `yaml:"rate_limit" json:"rate_limit"`
	Auth           AuthCfg       `yaml:"auth" json:"auth"`
	AllowedRoots   []string      `yaml:"allowed_roots" json:"allowed_roots"`                   // Empty allows any non-protected directory
	ProtectedPaths []string      `yaml:"protected_paths" json:"protected_paths"`               // Added to the built-in system paths
	NFSTimeout     int           `yaml:"nfs_timeout_seconds" json:"nfs_timeout_seconds"`       // Timeout for the stale mount probe
	DatabasePath   string        `yaml:"database_path" json:"database_path"`                   // Path to SQLite database for deletion history
	HistoryDays    int           `yaml:"history_retention_days" json:"history_retention_days"` // Operations older than this are pruned

	source string
}

var (
	errInvalidPath  = errors.New("path must be absolute")
	errNegativeRate = errors.New("rate_limit values cannot be negative")
	errWeakSecret   = errors.New("auth.jwt_secret must be at least 32 bytes")
	errNegativeSize = errors.New("server sizes cannot be negative")
	errBadProxy     = errors.New("rate_limit.trusted_proxies entry is not an IP address or CIDR")
)

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	cfg.source = path
	return cfg, nil
}

// LoadOrDefault loads path. When the file does not exist and the caller did
// not ask for it explicitly, the built-in defaults are used instead.
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	cfg, err := Load(path)
	if err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	if err := cfg.validateAndDefault(); err != nil {
		panic(err)
	}
	return cfg
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) validateAndDefault() error {
	if c.Server.Addr == "" {
		c.Server.Addr = ":5001"
	}
	if c.Server.ItemPause == nil {
		d := defaultItemPause
		c.Server.ItemPause = &d
	}
	if *c.Server.ItemPause < 0 {
		*c.Server.ItemPause = 0
	}
	if c.Server.StreamBuffer < 0 || c.Server.MaxStreams < 0 {
		return errNegativeSize
	}

	// Set defaults for logging
	if c.Logging.RotationDays <= 0 {
		c.Logging.RotationDays = 30 // Default: keep logs for 30 days
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = defaultLogDir
	}

	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errNegativeRate
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
	if _, err := parsePrefixes(c.RateLimit.TrustedProxies); err != nil {
		return err
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return errWeakSecret
	}
	if c.Auth.JWTExpiry <= 0 {
		c.Auth.JWTExpiry = 24 * time.Hour
	}

	// Set defaults for NFS timeout
	if c.NFSTimeout <= 0 {
		c.NFSTimeout = 5 // Default: 5 seconds timeout for NFS operations
	}

	if c.HistoryDays <= 0 {
		c.HistoryDays = defaultRetention
	}

	if c.DatabasePath == "" {
		c.DatabasePath = defaultDatabasePath
	}

	var err error
	if c.Logging.Dir, err = cleanAbsolute(c.Logging.Dir); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	if c.DatabasePath, err = cleanAbsolute(c.DatabasePath); err != nil {
		return fmt.Errorf("database_path: %w", err)
	}
	if c.AllowedRoots, err = cleanAll(c.AllowedRoots); err != nil {
		return fmt.Errorf("allowed_roots: %w", err)
	}
	if c.ProtectedPaths, err = cleanAll(c.ProtectedPaths); err != nil {
		return fmt.Errorf("protected_paths: %w", err)
	}

	return nil
}

// parsePrefixes accepts single addresses and CIDR ranges
func parsePrefixes(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", errBadProxy, e)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func cleanAll(paths []string) ([]string, error) {
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return nil, err
		}
		cleaned = append(cleaned, cp)
	}
	return cleaned, nil
}

func cleanAbsolute(p string) (string, error) {
	if p == "" {
		return "", errInvalidPath
	}
	cp := filepath.Clean(p)
	if !filepath.IsAbs(cp) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return cp, nil
}

// Pause is the per-item pause of the deletion walk
func (c *Config) Pause() time.Duration {
	if c.Server.ItemPause == nil {
		return defaultItemPause
	}
	return *c.Server.ItemPause
}

func (c *Config) NFSProbeTimeout() time.Duration {
	return time.Duration(c.NFSTimeout) * time.Second
}

// TrustedProxies returns the proxies allowed to report the client address.
// Entries were checked when the config was loaded.
func (c *Config) TrustedProxies() []netip.Prefix {
	prefixes, _ := parsePrefixes(c.RateLimit.TrustedProxies)
	return prefixes
}

func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

// MetricsOnMainRouter reports whether /metrics is served by the main server
func (c *Config) MetricsOnMainRouter() bool {
	return c.Prometheus.Port == 0
}

func (c *Config) PrometheusAddress() string {
	return fmt.Sprintf(":%d", c.Prometheus.Port)
}

// ServiceDirs are the directories the service itself writes to. They are
// never valid deletion targets.
func (c *Config) ServiceDirs() []string {
	dirs := []string{filepath.Dir(c.DatabasePath), c.Logging.Dir}
	if c.source != "" {
		if abs, err := filepath.Abs(c.source); err == nil {
			dirs = append(dirs, filepath.Dir(abs))
		}
	}
	return dirs
}
