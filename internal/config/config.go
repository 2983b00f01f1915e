// Package config loads igfetch settings from defaults, an optional YAML file,
// a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Apify     ApifyConfig     `mapstructure:"apify"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Stealth   StealthConfig   `mapstructure:"stealth"`
	Retry     RetryConfig     `mapstructure:"retry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// EngineConfig locates the extraction engine and its transcoder.
type EngineConfig struct {
	Binary     string        `mapstructure:"binary"`
	Transcoder string        `mapstructure:"transcoder"`
	Timeout    time.Duration `mapstructure:"timeout"`
	// Retries and FragmentRetries are passed to the engine's own retry loop.
	Retries           int  `mapstructure:"retries"`
	FragmentRetries   int  `mapstructure:"fragment_retries"`
	CheckCertificates bool `mapstructure:"check_certificates"`
}

// ApifyConfig mirrors the environment the Apify platform injects into actor runs.
type ApifyConfig struct {
	Token           string `mapstructure:"token"`
	BaseURL         string `mapstructure:"base_url"`
	DatasetID       string `mapstructure:"dataset_id"`
	KeyValueStoreID string `mapstructure:"key_value_store_id"`
	InputKey        string `mapstructure:"input_key"`
	ProxyPassword   string `mapstructure:"proxy_password"`
	ProxyHostname   string `mapstructure:"proxy_hostname"`
	ProxyPort       int    `mapstructure:"proxy_port"`
	IsAtHome        bool   `mapstructure:"is_at_home"`
}

// StorageConfig holds the local runtime paths.
type StorageConfig struct {
	Dir       string `mapstructure:"dir"`
	InputFile string `mapstructure:"input_file"`
	Database  string `mapstructure:"database"`
}

type StealthConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RetryConfig configures both extraction tiers.
type RetryConfig struct {
	PrimaryAttempts   int           `mapstructure:"primary_attempts"`
	PrimaryBaseDelay  time.Duration `mapstructure:"primary_base_delay"`
	FallbackAttempts  int           `mapstructure:"fallback_attempts"`
	FallbackBaseDelay time.Duration `mapstructure:"fallback_base_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
}

// RateLimitConfig drives the inter-item pause: min(Base+PerItem*N, Max) * U(JitterMin, JitterMax).
type RateLimitConfig struct {
	Base      time.Duration `mapstructure:"base"`
	PerItem   time.Duration `mapstructure:"per_item"`
	Max       time.Duration `mapstructure:"max"`
	JitterMin float64       `mapstructure:"jitter_min"`
	JitterMax float64       `mapstructure:"jitter_max"`
}

type MetricsConfig struct {
	File string `mapstructure:"file"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("engine.binary", "yt-dlp")
	v.SetDefault("engine.transcoder", "ffmpeg")
	v.SetDefault("engine.timeout", 10*time.Minute)
	v.SetDefault("engine.retries", 3)
	v.SetDefault("engine.fragment_retries", 5)
	v.SetDefault("engine.check_certificates", false)

	v.SetDefault("apify.base_url", "https://api.apify.com")
	v.SetDefault("apify.input_key", "INPUT")
	v.SetDefault("apify.proxy_hostname", "proxy.apify.com")
	v.SetDefault("apify.proxy_port", 8000)

	v.SetDefault("storage.dir", "./storage")
	v.SetDefault("storage.input_file", "./storage/key_value_stores/default/INPUT.json")
	v.SetDefault("storage.database", "./storage/datasets/default.db")

	v.SetDefault("stealth.enabled", true)
	v.SetDefault("stealth.timeout", 20*time.Second)

	v.SetDefault("retry.primary_attempts", 3)
	v.SetDefault("retry.primary_base_delay", 2*time.Second)
	v.SetDefault("retry.fallback_attempts", 2)
	v.SetDefault("retry.fallback_base_delay", 3*time.Second)
	v.SetDefault("retry.max_delay", 30*time.Second)

	v.SetDefault("rate_limit.base", 2*time.Second)
	v.SetDefault("rate_limit.per_item", 500*time.Millisecond)
	v.SetDefault("rate_limit.max", 10*time.Second)
	v.SetDefault("rate_limit.jitter_min", 0.5)
	v.SetDefault("rate_limit.jitter_max", 2.0)
}

// envBindings maps config keys to the platform variable names that feed them.
var envBindings = map[string][]string{
	"log.level":                {"IGFETCH_LOG_LEVEL", "LOG_LEVEL"},
	"apify.token":              {"APIFY_TOKEN"},
	"apify.base_url":           {"APIFY_API_BASE_URL"},
	"apify.dataset_id":         {"APIFY_DEFAULT_DATASET_ID"},
	"apify.key_value_store_id": {"APIFY_DEFAULT_KEY_VALUE_STORE_ID"},
	"apify.input_key":          {"APIFY_INPUT_KEY"},
	"apify.proxy_password":     {"APIFY_PROXY_PASSWORD"},
	"apify.proxy_hostname":     {"APIFY_PROXY_HOSTNAME"},
	"apify.proxy_port":         {"APIFY_PROXY_PORT"},
	"apify.is_at_home":         {"APIFY_IS_AT_HOME"},
}

// BindEnv enables IGFETCH_* lookups for every key and binds the platform variables.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix("IGFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// Load reads the optional config file into v and decodes the result.
// A missing file named through configFile is an error; a missing default file is not.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("igfetch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
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

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Engine.Binary == "" {
		return errors.New("engine.binary must not be empty")
	}
	if c.Engine.Retries < 0 || c.Engine.FragmentRetries < 0 {
		return fmt.Errorf("engine retries must not be negative, got %d and %d", c.Engine.Retries, c.Engine.FragmentRetries)
	}
	if c.Retry.PrimaryAttempts < 1 {
		return fmt.Errorf("retry.primary_attempts must be at least 1, got %d", c.Retry.PrimaryAttempts)
	}
	if c.Retry.FallbackAttempts < 0 {
		return fmt.Errorf("retry.fallback_attempts must not be negative, got %d", c.Retry.FallbackAttempts)
	}
	if c.RateLimit.JitterMin < 0 || c.RateLimit.JitterMax < c.RateLimit.JitterMin {
		return fmt.Errorf("rate_limit jitter range [%g, %g] is invalid", c.RateLimit.JitterMin, c.RateLimit.JitterMax)
	}
	return nil
}

// OnPlatform reports whether the process runs inside an Apify actor with API access.
func (c *Config) OnPlatform() bool {
	return c.Apify.IsAtHome && c.Apify.Token != ""
}
