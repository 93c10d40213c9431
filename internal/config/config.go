// ABOUTME: Configuration loading and parsing for warden
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults when a field is left empty.
const (
	DefaultHTTPAddr        = "localhost:3020"
	DefaultServiceUnit     = "minecraft.service"
	DefaultSystemctlPath   = "/usr/bin/systemctl"
	DefaultCommandTimeout  = 300 * time.Second
	DefaultMinecraftDir    = "/opt/minecraft"
	DefaultFileMode        = "0644"
	DefaultMaxAttempts     = 3
	DefaultStabilityWindow = 5 * time.Second
	DefaultAgentPath       = "/ws/minecraft"
	DefaultWriteTimeout    = 10 * time.Second
	DefaultReadLimit       = 1 << 20
	DefaultMetricsPath     = "/metrics"

	MinJWTSecretLength = 32
)

// Config represents the complete warden configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Service   ServiceConfig   `yaml:"service"`
	Plugins   PluginsConfig   `yaml:"plugins"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
	Agent     AgentConfig     `yaml:"agent"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	HTTPS     bool   `yaml:"https"` // serve on :443 with tailnet certificates instead of :80
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// ServiceConfig describes the managed service and how to drive it
type ServiceConfig struct {
	Unit           string        `yaml:"unit"`
	SystemctlPath  string        `yaml:"systemctl_path"`
	CommandTimeout time.Duration `yaml:"-"`

	CommandTimeoutRaw string `yaml:"command_timeout"`
}

// PluginsConfig locates the plugin artifact directories
type PluginsConfig struct {
	// MinecraftDir is the server root; EnabledDir and DisabledDir default to
	// <MinecraftDir>/mods and <MinecraftDir>/mods/disabled.
	MinecraftDir string `yaml:"minecraft_dir"`
	EnabledDir   string `yaml:"enabled_dir"`
	DisabledDir  string `yaml:"disabled_dir"`
	Owner        string `yaml:"owner"`     // chown target after moves, empty to skip
	FileMode     string `yaml:"file_mode"` // octal, e.g. "0644"
	Watch        bool   `yaml:"watch"`
}

// RecoveryConfig holds the restart supervisor tunables
type RecoveryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	StabilityWindow time.Duration `yaml:"-"`

	StabilityWindowRaw string `yaml:"stability_window"`
}

// AgentConfig holds settings for the in-game agent connection
type AgentConfig struct {
	Path         string        `yaml:"path"`
	Token        string        `yaml:"token"` // optional shared secret, empty allows any local agent
	ReadLimit    int64         `yaml:"read_limit"`
	WriteTimeout time.Duration `yaml:"-"`

	WriteTimeoutRaw string `yaml:"write_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes raw YAML into a validated Config with defaults applied.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills in zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Service.Unit == "" {
		c.Service.Unit = DefaultServiceUnit
	}
	if c.Service.SystemctlPath == "" {
		c.Service.SystemctlPath = DefaultSystemctlPath
	}
	if c.Service.CommandTimeout == 0 {
		c.Service.CommandTimeout = DefaultCommandTimeout
	}
	if c.Plugins.MinecraftDir == "" {
		c.Plugins.MinecraftDir = DefaultMinecraftDir
	}
	if c.Plugins.EnabledDir == "" {
		c.Plugins.EnabledDir = filepath.Join(c.Plugins.MinecraftDir, "mods")
	}
	if c.Plugins.DisabledDir == "" {
		c.Plugins.DisabledDir = filepath.Join(c.Plugins.EnabledDir, "disabled")
	}
	if c.Plugins.FileMode == "" {
		c.Plugins.FileMode = DefaultFileMode
	}
	if c.Recovery.MaxAttempts == 0 {
		c.Recovery.MaxAttempts = DefaultMaxAttempts
	}
	if c.Recovery.StabilityWindow == 0 {
		c.Recovery.StabilityWindow = DefaultStabilityWindow
	}
	if c.Agent.Path == "" {
		c.Agent.Path = DefaultAgentPath
	}
	if c.Agent.ReadLimit == 0 {
		c.Agent.ReadLimit = DefaultReadLimit
	}
	if c.Agent.WriteTimeout == 0 {
		c.Agent.WriteTimeout = DefaultWriteTimeout
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}

	if c.Recovery.MaxAttempts < 1 {
		return fmt.Errorf("recovery.max_attempts must be at least 1, got %d", c.Recovery.MaxAttempts)
	}

	if c.Recovery.StabilityWindow < 0 {
		return fmt.Errorf("recovery.stability_window must not be negative")
	}

	if c.Plugins.EnabledDir == c.Plugins.DisabledDir {
		return fmt.Errorf("plugins.enabled_dir and plugins.disabled_dir must differ")
	}

	if _, err := c.Plugins.Mode(); err != nil {
		return err
	}

	return nil
}

// Mode parses FileMode as an octal permission value.
func (p PluginsConfig) Mode() (os.FileMode, error) {
	v, err := strconv.ParseUint(p.FileMode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("plugins.file_mode %q is not an octal mode: %w", p.FileMode, err)
	}
	if v > 0o777 {
		return 0, fmt.Errorf("plugins.file_mode %q is out of range", p.FileMode)
	}
	return os.FileMode(v), nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"service.command_timeout", cfg.Service.CommandTimeoutRaw, &cfg.Service.CommandTimeout},
		{"recovery.stability_window", cfg.Recovery.StabilityWindowRaw, &cfg.Recovery.StabilityWindow},
		{"agent.write_timeout", cfg.Agent.WriteTimeoutRaw, &cfg.Agent.WriteTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
