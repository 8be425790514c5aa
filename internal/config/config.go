// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the name of the per-repository configuration file inside .drift.
const FileName = "config.yaml"

type Config struct {
	LogLevel string `mapstructure:"log_level"` // debug, info, warn, error

	Remote struct {
		URL         string        `mapstructure:"url"`
		Timeout     time.Duration `mapstructure:"timeout"`
		Concurrency int           `mapstructure:"concurrency"`
		Retries     int           `mapstructure:"retries"`

		S3 struct {
			Region          string `mapstructure:"region"`
			Endpoint        string `mapstructure:"endpoint"`
			PathStyle       bool   `mapstructure:"path_style"`
			AccessKeyID     string `mapstructure:"access_key_id"`
			SecretAccessKey string `mapstructure:"secret_access_key"`
		} `mapstructure:"s3"`

		GS struct {
			CredentialsFile string `mapstructure:"credentials_file"`
		} `mapstructure:"gs"`
	} `mapstructure:"remote"`

	Content struct {
		CacheSize   int `mapstructure:"cache_size"`
		Compression struct {
			Enabled bool `mapstructure:"enabled"`
			MinSize int  `mapstructure:"min_size"`
			Level   int  `mapstructure:"level"`
		} `mapstructure:"compression"`
	} `mapstructure:"content"`
}

var defaults = map[string]any{
	"log_level":                    "warn",
	"remote.url":                   "",
	"remote.timeout":               2 * time.Minute,
	"remote.concurrency":           4,
	"remote.retries":               3,
	"remote.s3.region":             "",
	"remote.s3.endpoint":           "",
	"remote.s3.path_style":         false,
	"remote.s3.access_key_id":      "",
	"remote.s3.secret_access_key":  "",
	"remote.gs.credentials_file":   "",
	"content.cache_size":           1000,
	"content.compression.enabled":  true,
	"content.compression.min_size": 1024,
	"content.compression.level":    2,
}

// NewViper returns a viper instance with defaults and DRIFT_* environment
// overrides (remote.url is read from DRIFT_REMOTE_URL and so on).
func NewViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("DRIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path, if it exists, into v and decodes the
// merged result. A missing file is not an error: defaults and environment apply.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("checking config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Remote.Concurrency < 1 {
		return fmt.Errorf("remote.concurrency must be at least 1, got %d", c.Remote.Concurrency)
	}
	if c.Remote.Retries < 0 {
		return fmt.Errorf("remote.retries must not be negative, got %d", c.Remote.Retries)
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive, got %s", c.Remote.Timeout)
	}
	if c.Content.CacheSize < 1 {
		return fmt.Errorf("content.cache_size must be at least 1, got %d", c.Content.CacheSize)
	}
	if l := c.Content.Compression.Level; l < 1 || l > 4 {
		return fmt.Errorf("content.compression.level must be between 1 and 4, got %d", l)
	}
	return nil
}

// Set writes a single key into the config file at path, keeping the other
// keys already in the file.
func Set(path, key string, value any) error {
	v := viper.New()
	v.SetConfigFile(path)
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	v.Set(key, value)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}
