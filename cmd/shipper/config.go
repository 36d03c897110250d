package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Registry RegistryConfig `mapstructure:"registry"`
	Build    BuildConfig    `mapstructure:"build"`
	Deploy   DeployConfig   `mapstructure:"deploy"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// RegistryConfig identifies the image repository and its credentials.
type RegistryConfig struct {
	// URL is the registry API base URL.
	URL string `mapstructure:"url"`

	// Namespace is the registry account, e.g. "acme".
	Namespace string `mapstructure:"namespace"`

	// Image is the image name within the namespace.
	Image string `mapstructure:"image"`

	// Username/Password authenticate pushes and tag deletion.
	// Password should be set via SHIPPER_REGISTRY_PASSWORD; it is never logged.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Repository returns the "namespace/image" repository reference.
func (c RegistryConfig) Repository() string {
	return fmt.Sprintf("%s/%s", c.Namespace, c.Image)
}

// BuildConfig holds image build configuration.
type BuildConfig struct {
	// ContextDir is the build context directory.
	ContextDir string `mapstructure:"context_dir"`

	// DockerHost overrides the local Docker daemon address.
	DockerHost string `mapstructure:"docker_host"`
}

// DeployConfig holds remote deployment configuration.
type DeployConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	User string `mapstructure:"user"`

	// KeyPath is the path to the SSH private key.
	// The key material itself is never logged.
	KeyPath string `mapstructure:"key_path"`

	// ContainerName is the canonical instance name on the host.
	ContainerName string `mapstructure:"container_name"`

	// AppPort is the fixed port the service binds on both sides.
	AppPort int `mapstructure:"app_port"`

	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// ProbeConfig holds the post-deploy health probe configuration.
// The probe is disabled when enabled is false.
type ProbeConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Path       string        `mapstructure:"path"`
	MaxElapsed time.Duration `mapstructure:"max_elapsed"`
}

// NotifyConfig holds the run-outcome webhook configuration.
type NotifyConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// JournalConfig holds the release journal configuration.
type JournalConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ServerConfig holds the status server configuration (shipper serve).
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("registry.url", "https://hub.docker.com")
	v.SetDefault("registry.namespace", "")
	v.SetDefault("registry.image", "")
	v.SetDefault("registry.username", "")
	v.SetDefault("registry.password", "")
	v.SetDefault("build.context_dir", ".")
	v.SetDefault("build.docker_host", "")
	v.SetDefault("deploy.host", "")
	v.SetDefault("deploy.port", 22)
	v.SetDefault("deploy.user", "root")
	v.SetDefault("deploy.key_path", "")
	v.SetDefault("deploy.container_name", "")
	v.SetDefault("deploy.app_port", 5090)
	v.SetDefault("deploy.command_timeout", "120s")
	v.SetDefault("probe.enabled", false)
	v.SetDefault("probe.path", "/api/health")
	v.SetDefault("probe.max_elapsed", "60s")
	v.SetDefault("notify.url", "")
	v.SetDefault("notify.token", "")
	v.SetDefault("journal.dsn", "./data/shipper.db")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("SHIPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ValidateRelease checks the fields a release run needs.
func (c *Config) ValidateRelease() error {
	if c.Registry.Namespace == "" || c.Registry.Image == "" {
		return fmt.Errorf("registry.namespace and registry.image are required")
	}
	if c.Deploy.Host == "" {
		return fmt.Errorf("deploy.host is required")
	}
	if c.Deploy.KeyPath == "" {
		return fmt.Errorf("deploy.key_path is required")
	}
	if c.Deploy.ContainerName == "" {
		return fmt.Errorf("deploy.container_name is required")
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
