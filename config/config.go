package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/swarmflow/swarmflow/bus"
	"github.com/swarmflow/swarmflow/cache"
	"github.com/swarmflow/swarmflow/llm"
	"github.com/swarmflow/swarmflow/llm/openaicompat"
	"github.com/swarmflow/swarmflow/registry"
)

// Config is the full process configuration. Component sections reuse the
// config types of the packages they configure, so a loaded Config hands
// straight into bus.New, cache.New and friends.
type Config struct {
	Server   ServerConfig        `yaml:"server"`
	Bus      bus.Config          `yaml:"bus"`
	Redis    cache.Config        `yaml:"redis"`
	Registry RegistryConfig      `yaml:"registry"`
	LLM      openaicompat.Config `yaml:"llm"`
	Retry    llm.RetryConfig     `yaml:"retry"`
	Log      LogConfig           `yaml:"log"`
}

// ServerConfig configures the per-agent HTTP listener.
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// MaxTokens caps completion length for every turn, 0 means provider
	// default.
	MaxTokens int `yaml:"max_tokens"`
}

// RegistryConfig covers both sides of the registry: the client every agent
// uses for lookups, and the directory the registry server serves from.
type RegistryConfig struct {
	Client registry.ClientConfig `yaml:"client"`
	// DescriptorDir is only read by the registry subcommand.
	DescriptorDir string `yaml:"descriptor_dir"`
	// ListenAddr is only read by the registry subcommand.
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is json or console.
	Format string `yaml:"format"`
	// EnableCaller annotates entries with file:line.
	EnableCaller bool `yaml:"enable_caller"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8000",
			ShutdownTimeout: 10 * time.Second,
		},
		Bus:   bus.DefaultConfig(),
		Redis: cache.DefaultConfig(),
		Registry: RegistryConfig{
			Client:        registry.DefaultClientConfig(),
			DescriptorDir: "descriptors",
			ListenAddr:    ":8080",
		},
		LLM: openaicompat.Config{
			ProviderName: "openai",
			BaseURL:      "https://api.openai.com",
			DefaultModel: "gpt-4o",
		},
		Retry: llm.DefaultRetryConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate rejects configurations no process can run with.
func (c *Config) Validate() error {
	var errs []string
	if len(c.Bus.Brokers) == 0 {
		errs = append(errs, "bus.brokers must not be empty")
	}
	if c.Redis.Addr == "" {
		errs = append(errs, "redis.addr must not be empty")
	}
	if c.Retry.MaxRetries <= 0 {
		errs = append(errs, "retry.max_retries must be positive")
	}
	if c.Retry.BaseWait < 0 {
		errs = append(errs, "retry.base_wait must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
