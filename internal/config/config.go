package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type FXConfig struct {
	QuoteURL       string `mapstructure:"quote_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type BillingConfig struct {
	// Day of month after which the dashboard defaults to the current
	// month instead of the previous one.
	CutoverDay int `mapstructure:"cutover_day"`
}

type JobsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Weeks of recurring sessions kept materialized ahead of today.
	HorizonWeeks int `mapstructure:"horizon_weeks"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	FX       FXConfig       `mapstructure:"fx"`
	Billing  BillingConfig  `mapstructure:"billing"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

// FXTimeout returns the quote timeout as a duration.
func (c *Config) FXTimeout() time.Duration {
	return time.Duration(c.FX.TimeoutSeconds) * time.Second
}

var (
	appConfig *Config
	once      sync.Once
)

// Load loads configuration from the given file path (e.g. "config.yaml").
// If path is empty, it defaults to "config.yaml" in the current working
// directory; a missing file falls back to defaults so the server can start
// with zero setup.
func Load(path string) (*Config, error) {
	var err error
	once.Do(func() {
		v := viper.New()

		v.SetDefault("server.port", 8080)
		v.SetDefault("database.path", "./data/practice.db")
		v.SetDefault("fx.quote_url", "")
		v.SetDefault("fx.timeout_seconds", 5)
		v.SetDefault("billing.cutover_day", 15)
		v.SetDefault("jobs.enabled", true)
		v.SetDefault("jobs.horizon_weeks", 8)

		if path == "" {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath(".")
		} else {
			v.SetConfigFile(path)
		}

		// environment overrides, e.g. PBE_SERVER_PORT=9000
		v.SetEnvPrefix("PBE")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		if readErr := v.ReadInConfig(); readErr != nil {
			if _, notFound := readErr.(viper.ConfigFileNotFoundError); !notFound {
				err = fmt.Errorf("read config: %w", readErr)
				return
			}
		}

		var c Config
		if err = v.Unmarshal(&c); err != nil {
			err = fmt.Errorf("unmarshal config: %w", err)
			return
		}

		appConfig = &c
	})

	if err != nil {
		return nil, err
	}
	return appConfig, nil
}

// Get returns the loaded global configuration.
// Call Load() once at application startup.
func Get() *Config {
	return appConfig
}
