// Package config loads playground settings from defaults, an optional
// playground.yaml and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/executor/docker"
	"github.com/sakif/js-playground/internal/executor/isolate"
)

const envPrefix = "PLAYGROUND"

// Sandbox backends.
const (
	BackendIsolate = "isolate"
	BackendDocker  = "docker"
)

// Config is the whole application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// SandboxConfig holds the per-execution budget and the backend that enforces it.
type SandboxConfig struct {
	Backend       string       `mapstructure:"backend"`
	MemoryLimitMB int          `mapstructure:"memory_limit_mb"`
	TimeoutMS     int          `mapstructure:"timeout_ms"`
	MaxCallStack  int          `mapstructure:"max_call_stack"`
	Docker        DockerConfig `mapstructure:"docker"`
}

type DockerConfig struct {
	Image    string  `mapstructure:"image"`
	PoolSize int     `mapstructure:"pool_size"`
	CPULimit float64 `mapstructure:"cpu_limit"`
}

// ExecutionConfig is the admission control in front of the sandbox.
type ExecutionConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	QueueWait     time.Duration `mapstructure:"queue_wait"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

type AuthConfig struct {
	// EditTokenSecret signs snippet edit tokens. Empty means a random secret
	// is generated at startup, so tokens do not survive a restart.
	EditTokenSecret string        `mapstructure:"edit_token_secret"`
	EditTokenTTL    time.Duration `mapstructure:"edit_token_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// legacyEnv are the unprefixed variables older deployments set.
var legacyEnv = map[string]string{
	"server.port":            "PORT",
	"storage.db_path":        "DB_PATH",
	"auth.edit_token_secret": "EDIT_TOKEN_SECRET",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("storage.db_path", "data/playground.db")

	v.SetDefault("sandbox.backend", BackendIsolate)
	v.SetDefault("sandbox.memory_limit_mb", 128)
	v.SetDefault("sandbox.timeout_ms", 1000)
	v.SetDefault("sandbox.max_call_stack", isolate.DefaultConfig().MaxCallStackSize)
	v.SetDefault("sandbox.docker.image", docker.DefaultConfig().Image)
	v.SetDefault("sandbox.docker.pool_size", docker.DefaultConfig().PoolSize)
	v.SetDefault("sandbox.docker.cpu_limit", docker.DefaultConfig().CPULimit)

	v.SetDefault("execution.max_concurrent", 8)
	v.SetDefault("execution.queue_wait", 2*time.Second)
	v.SetDefault("execution.rate_per_second", 5.0)
	v.SetDefault("execution.burst", 10)

	v.SetDefault("auth.edit_token_secret", "")
	v.SetDefault("auth.edit_token_ttl", 30*24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. configFile may be empty, in which case
// playground.yaml is looked up in the working directory and ./config; a
// missing file is not an error then.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("playground")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("binding %s: %w", legacy, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Sandbox.Backend = strings.ToLower(strings.TrimSpace(cfg.Sandbox.Backend))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Storage.DBPath == "" {
		return errors.New("storage.db_path is required")
	}

	switch c.Sandbox.Backend {
	case BackendIsolate, BackendDocker:
	default:
		return fmt.Errorf("unsupported sandbox.backend %q, must be %q or %q", c.Sandbox.Backend, BackendIsolate, BackendDocker)
	}
	if c.Sandbox.MemoryLimitMB <= 0 {
		return fmt.Errorf("sandbox.memory_limit_mb must be positive, got %d", c.Sandbox.MemoryLimitMB)
	}
	if c.Sandbox.TimeoutMS <= 0 {
		return fmt.Errorf("sandbox.timeout_ms must be positive, got %d", c.Sandbox.TimeoutMS)
	}
	if c.Sandbox.MaxCallStack <= 0 {
		return fmt.Errorf("sandbox.max_call_stack must be positive, got %d", c.Sandbox.MaxCallStack)
	}
	if c.Sandbox.Backend == BackendDocker && c.Sandbox.Docker.Image == "" {
		return errors.New("sandbox.docker.image is required for the docker backend")
	}

	if c.Execution.MaxConcurrent <= 0 {
		return fmt.Errorf("execution.max_concurrent must be positive, got %d", c.Execution.MaxConcurrent)
	}
	if c.Execution.RatePerSecond <= 0 || c.Execution.Burst <= 0 {
		return errors.New("execution.rate_per_second and execution.burst must be positive")
	}

	if s := c.Auth.EditTokenSecret; s != "" && len(s) < 16 {
		return errors.New("auth.edit_token_secret must be at least 16 characters")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log.format %q", c.Log.Format)
	}
	return nil
}

// Limits is the budget every execution gets.
func (c *Config) Limits() executor.Limits {
	return executor.Limits{
		MemoryLimitBytes: int64(c.Sandbox.MemoryLimitMB) << 20,
		Timeout:          time.Duration(c.Sandbox.TimeoutMS) * time.Millisecond,
	}
}

func (c *Config) IsolateConfig() isolate.Config {
	cfg := isolate.DefaultConfig()
	cfg.MaxCallStackSize = c.Sandbox.MaxCallStack
	return cfg
}

func (c *Config) DockerConfig() docker.Config {
	cfg := docker.DefaultConfig()
	cfg.Image = c.Sandbox.Docker.Image
	cfg.PoolSize = c.Sandbox.Docker.PoolSize
	cfg.CPULimit = c.Sandbox.Docker.CPULimit
	return cfg
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q: %w", l.Level, err)
	}
	return level, nil
}
