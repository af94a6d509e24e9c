// Package config loads application settings from an optional YAML file merged
// with environment variables. Provider API keys follow their conventional
// names (OPENAI_API_KEY etc.); everything else uses the CITYSENSE_ prefix.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `mapstructure:"addr"`
	// DBPath is the SQLite file backing sessions; empty keeps them in memory.
	DBPath string `mapstructure:"db_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	Model    ModelConfig    `mapstructure:"model"`
	Location LocationConfig `mapstructure:"location"`
	Search   SearchConfig   `mapstructure:"search"`

	// ResearchTimeout bounds the parallel research stage.
	ResearchTimeout time.Duration `mapstructure:"research_timeout"`
}

// ModelConfig selects and configures the language model provider.
type ModelConfig struct {
	// Provider is "openai" or "anthropic".
	Provider string `mapstructure:"provider"`
	// Name overrides the provider's default model.
	Name            string  `mapstructure:"name"`
	Temperature     float64 `mapstructure:"temperature"`
	OpenAIAPIKey    string  `mapstructure:"openai_api_key"`
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key"`
}

// LocationConfig configures IP geolocation fallback.
type LocationConfig struct {
	// Endpoint overrides the geolocation service URL.
	Endpoint string `mapstructure:"endpoint"`
	// Token is the optional ipinfo bearer token.
	Token string `mapstructure:"token"`
}

// SearchConfig configures the web search provider.
type SearchConfig struct {
	TavilyAPIKey string `mapstructure:"tavily_api_key"`
	// Depth is the Tavily search depth, "basic" or "advanced".
	Depth string `mapstructure:"depth"`
}

// Load reads configuration from path (optional, "" skips the file) merged
// with environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("addr", ":8080")
	v.SetDefault("db_path", "citysense.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.temperature", 0.7)
	v.SetDefault("search.depth", "basic")
	v.SetDefault("research_timeout", 2*time.Minute)

	v.SetEnvPrefix("CITYSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// API keys and tokens keep their conventional unprefixed names.
	_ = v.BindEnv("model.openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("model.anthropic_api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("location.token", "IPINFO_TOKEN")
	_ = v.BindEnv("search.tavily_api_key", "TAVILY_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(*os.PathError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the selected provider has its API key set.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai":
		if c.Model.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	case "anthropic":
		if c.Model.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	return nil
}
