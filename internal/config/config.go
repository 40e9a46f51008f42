// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"rewrite-proxy-go/internal/model"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/rewrite-proxy/config.toml",
	"configs/config.toml",
}

// reservedRoutes are served by the proxy itself and cannot host the mount prefix
// or the metrics endpoint.
var reservedRoutes = []string{"/healthz", "/_proxy", "/_function"}

// Default upstream request settings.
const (
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultLandingPath = "/pages/main.html"
	DefaultMountPrefix = "/proxy"
)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config         string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host           string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port           int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	UpstreamDomain string `kong:"help='Upstream domain (overrides config).',env='UPSTREAM_DOMAIN'"`
	MountPrefix    string `kong:"help='Path prefix the proxy is mounted under; \"/\" mounts at root (overrides config).',env='MOUNT_PREFIX'"`
	Mode           string `kong:"help='Rewrite mode: prefix|strip (overrides config).',env='REWRITE_MODE'"`
	LogLevel       string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Rewrite  RewriteConfig  `toml:"rewrite"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64  `toml:"body_max_bytes"`
	// HideErrorDetails replaces the diagnostic page (error chain and stack)
	// with a generic message.
	HideErrorDetails bool `toml:"hide_error_details"`
	// FunctionEndpoint enables POST /_function/invoke.
	FunctionEndpoint bool            `toml:"function_endpoint"`
	RateLimit        RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	Domain          string `toml:"domain"`
	LandingPath     string `toml:"landing_path"`
	UserAgent       string `toml:"user_agent"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
	MaxBodyBytes    int64  `toml:"max_body_bytes"`
}

// RewriteConfig selects the rewrite behavior.
type RewriteConfig struct {
	Mode         string `toml:"mode"`
	MountPrefix  string `toml:"mount_prefix"`
	CookiePolicy string `toml:"cookie_policy"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/rewrite-proxy/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.UpstreamDomain != "" {
		c.Upstream.Domain = cli.UpstreamDomain
	}
	if cli.MountPrefix != "" {
		c.Rewrite.MountPrefix = cli.MountPrefix
	}
	if cli.Mode != "" {
		c.Rewrite.Mode = cli.Mode
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Upstream domain: a bare host, optionally with port.
	d := c.Upstream.Domain
	if d == "" {
		return fmt.Errorf("upstream.domain is required")
	}
	if strings.Contains(d, "://") || strings.ContainsAny(d, "/?# ") {
		return fmt.Errorf("upstream.domain must be a bare host name without scheme or path; got %q", d)
	}
	if p := c.Upstream.LandingPath; p != "" && p[0] != '/' {
		return fmt.Errorf("upstream.landing_path must start with '/'; got %q", p)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0-65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Upstream.MaxBodyBytes < 0 {
		return fmt.Errorf("upstream.max_body_bytes must be non-negative; got %d", c.Upstream.MaxBodyBytes)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Rewrite fields.
	switch strings.ToLower(c.Rewrite.Mode) {
	case "prefix", "strip", "":
		// valid
	default:
		return fmt.Errorf("rewrite.mode must be one of: prefix, strip; got %q", c.Rewrite.Mode)
	}
	switch strings.ToLower(c.Rewrite.CookiePolicy) {
	case "samesite_lax", "drop_secure", "":
		// valid
	default:
		return fmt.Errorf("rewrite.cookie_policy must be one of: samesite_lax, drop_secure; got %q", c.Rewrite.CookiePolicy)
	}
	if p := c.Rewrite.MountPrefix; p != "" && p != "/" {
		if p[0] != '/' {
			return fmt.Errorf("rewrite.mount_prefix must start with '/'; got %q", p)
		}
		if strings.HasSuffix(p, "/") || strings.ContainsAny(p, "*:?#") {
			return fmt.Errorf("rewrite.mount_prefix must be a plain path without trailing '/'; got %q", p)
		}
		if r := reservedConflict(p); r != "" {
			return fmt.Errorf("rewrite.mount_prefix %q conflicts with reserved route %q", p, r)
		}
	}

	// Strip mode emits root-relative URLs, which only reach the proxy when it
	// answers at the root.
	if strings.ToLower(c.Rewrite.Mode) == "strip" && c.Rewrite.MountPrefix != "/" {
		return fmt.Errorf("rewrite.mode \"strip\" requires rewrite.mount_prefix = \"/\"; got %q", c.Rewrite.MountPrefix)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		if r := reservedConflict(p); r != "" {
			return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, r)
		}
		if mp := c.Rewrite.MountPrefix; mp != "" && mp != "/" && (p == mp || strings.HasPrefix(p, mp+"/")) {
			return fmt.Errorf("metrics.path %q is shadowed by rewrite.mount_prefix %q", p, mp)
		}
	}

	return nil
}

// reservedConflict returns the reserved route p collides with, or "".
func reservedConflict(p string) string {
	for _, reserved := range reservedRoutes {
		if p == reserved || strings.HasPrefix(p, reserved+"/") || strings.HasPrefix(reserved, p+"/") {
			return reserved
		}
	}
	return ""
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. Setting port=0 in
// the config file therefore results in the default port (8000). The same holds for
// mount_prefix: use "/" to mount the proxy at the root.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Upstream.LandingPath == "" {
		c.Upstream.LandingPath = DefaultLandingPath
	}
	if c.Upstream.UserAgent == "" {
		c.Upstream.UserAgent = DefaultUserAgent
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 10
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.MaxBodyBytes == 0 {
		c.Upstream.MaxBodyBytes = 32 * 1024 * 1024 // 32 MB
	}
	c.Rewrite.Mode = strings.ToLower(c.Rewrite.Mode)
	if c.Rewrite.Mode == "" {
		c.Rewrite.Mode = "prefix"
	}
	c.Rewrite.CookiePolicy = strings.ToLower(c.Rewrite.CookiePolicy)
	if c.Rewrite.CookiePolicy == "" {
		c.Rewrite.CookiePolicy = "samesite_lax"
	}
	switch c.Rewrite.MountPrefix {
	case "":
		c.Rewrite.MountPrefix = DefaultMountPrefix
	case "/":
		c.Rewrite.MountPrefix = ""
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RewriteContext returns the immutable rewrite context derived from the config.
func (c *Config) RewriteContext() model.RewriteContext {
	return model.RewriteContext{
		MountPrefix:    c.Rewrite.MountPrefix,
		UpstreamDomain: c.Upstream.Domain,
	}
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
