// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Tier is an authentication class determining a caller's rate budget.
type Tier string

// API key tiers. Anonymous callers (no key) get their own budget.
const (
	TierInternal  Tier = "internal"
	TierOutsider  Tier = "outsider"
	TierAnonymous Tier = "anonymous"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Source    SourceConfig    `mapstructure:"source"`
	Images    ImagesConfig    `mapstructure:"images"`
	DB        DBConfig        `mapstructure:"db"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// APIKeyEntry names one configured API key and its tier.
type APIKeyEntry struct {
	Name string `mapstructure:"name"`
	Key  string `mapstructure:"key"`
	Tier string `mapstructure:"tier"`
}

// AuthConfig defines API authentication behavior. When RequireKey is
// false, requests without a key are admitted as the anonymous tier; a
// supplied key that matches nothing is rejected either way.
type AuthConfig struct {
	RequireKey bool          `mapstructure:"require_key"`
	Keys       []APIKeyEntry `mapstructure:"keys"`
}

// RateLimitConfig sets per-tier requests-per-minute budgets. A budget
// of zero or less disables limiting for that tier.
type RateLimitConfig struct {
	InternalPerMinute  int `mapstructure:"internal_per_minute"`
	OutsiderPerMinute  int `mapstructure:"outsider_per_minute"`
	AnonymousPerMinute int `mapstructure:"anonymous_per_minute"`
}

// SourceConfig bounds source-image acquisition.
type SourceConfig struct {
	MaxBytes            int64 `mapstructure:"max_bytes"`
	FetchTimeoutSeconds int   `mapstructure:"fetch_timeout_seconds"`
	AllowPrivateNetwork bool  `mapstructure:"allow_private_network"`
}

// ImagesConfig selects where rendered PNGs are persisted.
type ImagesConfig struct {
	Provider  string `mapstructure:"provider"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// DBConfig selects the job/mapping store backend.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OGCARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Server.PublicBaseURL == "" {
		cfg.Server.PublicBaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 4010)
	v.SetDefault("auth.require_key", false)
	v.SetDefault("ratelimit.internal_per_minute", 0)
	v.SetDefault("ratelimit.outsider_per_minute", 60)
	v.SetDefault("ratelimit.anonymous_per_minute", 20)
	v.SetDefault("source.max_bytes", 10*1024*1024)
	v.SetDefault("source.fetch_timeout_seconds", 8)
	v.SetDefault("source.allow_private_network", false)
	v.SetDefault("images.provider", "local")
	v.SetDefault("images.dir", "data/og-images")
	v.SetDefault("images.gcs_prefix", "og-images")
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.MaxBytes <= 0 {
		return fmt.Errorf("source.max_bytes must be > 0")
	}
	if c.Source.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("source.fetch_timeout_seconds must be > 0")
	}
	switch c.Images.Provider {
	case "local":
		if c.Images.Dir == "" {
			return fmt.Errorf("images.dir must be set when images.provider is 'local'")
		}
	case "gcs":
		if c.Images.GCSBucket == "" {
			return fmt.Errorf("images.gcs_bucket must be set when images.provider is 'gcs'")
		}
	default:
		return fmt.Errorf("unknown images.provider: %s", c.Images.Provider)
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is 'postgres'")
		}
	default:
		return fmt.Errorf("unknown db.provider: %s", c.DB.Provider)
	}
	seen := make(map[string]struct{}, len(c.Auth.Keys))
	for _, entry := range c.Auth.Keys {
		if entry.Name == "" || entry.Key == "" {
			return fmt.Errorf("auth.keys entries require both name and key")
		}
		if entry.Tier != string(TierInternal) && entry.Tier != string(TierOutsider) {
			return fmt.Errorf("auth key %q has invalid tier %q (use internal or outsider)", entry.Name, entry.Tier)
		}
		if _, dup := seen[entry.Key]; dup {
			return fmt.Errorf("duplicate API key configured for name %q", entry.Name)
		}
		seen[entry.Key] = struct{}{}
	}
	if c.Auth.RequireKey && len(c.Auth.Keys) == 0 {
		return fmt.Errorf("auth.require_key is set but no auth.keys are configured")
	}
	return nil
}

// FetchTimeout converts the configured fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Source.FetchTimeoutSeconds) * time.Second
}

// BudgetFor returns the requests-per-minute budget for a tier.
func (c Config) BudgetFor(tier Tier) int {
	switch tier {
	case TierInternal:
		return c.RateLimit.InternalPerMinute
	case TierOutsider:
		return c.RateLimit.OutsiderPerMinute
	default:
		return c.RateLimit.AnonymousPerMinute
	}
}
