package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the choir service. It is loaded once at
// start and passed explicitly to every component; nothing mutates it later.
type Config struct {
	General      GeneralConfig      `mapstructure:"general"`
	Auth         AuthConfig         `mapstructure:"auth"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Dispatch     DispatchConfig     `mapstructure:"dispatch"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Tools        ToolsConfig        `mapstructure:"tools"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Listen    string `mapstructure:"listen"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // json or text
}

// AuthConfig holds the fixed per-ring secrets. An empty secret disables its ring.
type AuthConfig struct {
	Ring0 string `mapstructure:"ring0"`
	Ring1 string `mapstructure:"ring1"`
	Ring2 string `mapstructure:"ring2"`
}

func (a AuthConfig) Validate() error {
	seen := map[string]string{}
	for name, secret := range map[string]string{"ring0": a.Ring0, "ring1": a.Ring1, "ring2": a.Ring2} {
		if secret == "" {
			continue
		}
		if other, ok := seen[secret]; ok {
			return fmt.Errorf("auth.%s and auth.%s share the same secret", other, name)
		}
		seen[secret] = name
	}
	return nil
}

// LLMConfig describes the single completion provider used by every stage.
type LLMConfig struct {
	Type             string           `mapstructure:"type"` // openai or anthropic
	APIKey           string           `mapstructure:"api_key"`
	BaseURL          string           `mapstructure:"base_url"`
	Model            string           `mapstructure:"model"`
	InteractiveModel string           `mapstructure:"interactive_model"`
	Temperature      float64          `mapstructure:"temperature"`
	MaxTokens        int              `mapstructure:"max_tokens"`
	Timeout          time.Duration    `mapstructure:"timeout"`
	Routing          LLMRoutingConfig `mapstructure:"routing"`
}

// LLMRoutingConfig optionally overrides the model per pipeline stage.
type LLMRoutingConfig struct {
	Planning   string `mapstructure:"planning"`
	Agents     string `mapstructure:"agents"`
	Assessment string `mapstructure:"assessment"`
	Synthesis  string `mapstructure:"synthesis"`
}

func (l LLMConfig) Validate() error {
	switch l.Type {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.type %q is not supported (openai, anthropic)", l.Type)
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model required")
	}
	if l.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be > 0")
	}
	return nil
}

// ModelFor returns the model for a stage, falling back to the default model.
func (l LLMConfig) ModelFor(stage string) string {
	var m string
	switch stage {
	case "planning":
		m = l.Routing.Planning
	case "agents":
		m = l.Routing.Agents
	case "assessment":
		m = l.Routing.Assessment
	case "synthesis":
		m = l.Routing.Synthesis
	case "interactive":
		m = l.InteractiveModel
	}
	if m == "" {
		return l.Model
	}
	return m
}

// DispatchConfig bounds concurrent outbound provider calls.
type DispatchConfig struct {
	Capacity int64 `mapstructure:"capacity"`
}

func (d DispatchConfig) Validate() error {
	if d.Capacity <= 0 {
		return fmt.Errorf("dispatch.capacity must be > 0")
	}
	return nil
}

// ConversationConfig controls the interactive tool-calling loop.
type ConversationConfig struct {
	MaxRounds    int    `mapstructure:"max_rounds"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

func (c ConversationConfig) Validate() error {
	if c.MaxRounds <= 0 {
		return fmt.Errorf("conversation.max_rounds must be > 0")
	}
	return nil
}

// ToolsConfig configures the built-in functions.
type ToolsConfig struct {
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Weather WeatherConfig `mapstructure:"weather"`
	Search  SearchConfig  `mapstructure:"search"`
}

// FetchConfig configures website_to_md.
type FetchConfig struct {
	Type         string        `mapstructure:"type"` // http, chromedp or firecrawl
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxChars     int           `mapstructure:"max_chars"`
	UserAgent    string        `mapstructure:"user_agent"`
	FirecrawlKey string        `mapstructure:"firecrawl_key"`
	FirecrawlURL string        `mapstructure:"firecrawl_url"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

func (f FetchConfig) Validate() error {
	switch f.Type {
	case "http", "chromedp":
	case "firecrawl":
		if strings.TrimSpace(f.FirecrawlKey) == "" {
			return fmt.Errorf("tools.fetch.firecrawl_key required for firecrawl fetcher")
		}
	default:
		return fmt.Errorf("tools.fetch.type %q is not supported (http, chromedp, firecrawl)", f.Type)
	}
	return nil
}

// WeatherConfig configures get_weather.
type WeatherConfig struct {
	GeocodeURL  string        `mapstructure:"geocode_url"`
	ForecastURL string        `mapstructure:"forecast_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SearchConfig configures web_search. The function is only registered when
// an API key is present.
type SearchConfig struct {
	Provider   string        `mapstructure:"provider"` // brave or serper
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether web_search should be registered.
func (s SearchConfig) Enabled() bool { return strings.TrimSpace(s.APIKey) != "" }

func (s SearchConfig) Validate() error {
	if !s.Enabled() {
		return nil
	}
	switch s.Provider {
	case "brave", "serper":
	default:
		return fmt.Errorf("tools.search.provider %q is not supported (brave, serper)", s.Provider)
	}
	return nil
}

// CacheConfig holds the optional page cache backend.
type CacheConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a redis page cache is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("cache.redis.port required when host is set")
	}
	return nil
}

// Addr returns host:port.
func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.listen", ":10001")
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_format", "json")
	v.SetDefault("auth.ring0", "")
	v.SetDefault("auth.ring1", "")
	v.SetDefault("auth.ring2", "")
	v.SetDefault("llm.type", "openai")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.interactive_model", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("llm.routing.planning", "")
	v.SetDefault("llm.routing.agents", "")
	v.SetDefault("llm.routing.assessment", "")
	v.SetDefault("llm.routing.synthesis", "")
	v.SetDefault("dispatch.capacity", 15)
	v.SetDefault("conversation.max_rounds", 8)
	v.SetDefault("conversation.system_prompt", "Cut, to the point, and concise. Do not repeat yourself.")
	v.SetDefault("tools.fetch.type", "http")
	v.SetDefault("tools.fetch.timeout", 15*time.Second)
	v.SetDefault("tools.fetch.max_chars", 20000)
	v.SetDefault("tools.fetch.user_agent", "choir/1.0")
	v.SetDefault("tools.fetch.firecrawl_key", "")
	v.SetDefault("tools.fetch.firecrawl_url", "https://api.firecrawl.dev/v1/scrape")
	v.SetDefault("tools.fetch.cache_ttl", 10*time.Minute)
	v.SetDefault("tools.weather.geocode_url", "https://geocoding-api.open-meteo.com/v1/search")
	v.SetDefault("tools.weather.forecast_url", "https://api.open-meteo.com/v1/forecast")
	v.SetDefault("tools.weather.timeout", 10*time.Second)
	v.SetDefault("tools.search.provider", "brave")
	v.SetDefault("tools.search.api_key", "")
	v.SetDefault("tools.search.base_url", "")
	v.SetDefault("tools.search.max_results", 5)
	v.SetDefault("tools.search.timeout", 10*time.Second)
	v.SetDefault("cache.redis.host", "")
	v.SetDefault("cache.redis.port", "6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.timeout", 2*time.Second)
	v.SetDefault("telemetry.enabled", true)
}

// Load reads config.json (explicit path, or searched in the usual places)
// and applies CHOIR_* environment overrides. A missing config file is fine
// when no explicit path was given.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("CHOIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	for _, fn := range []func() error{
		c.Auth.Validate,
		c.LLM.Validate,
		c.Dispatch.Validate,
		c.Conversation.Validate,
		c.Tools.Fetch.Validate,
		c.Tools.Search.Validate,
		c.Cache.Redis.Validate,
	} {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}
