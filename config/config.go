// Package config loads stockledger settings from the environment and an
// optional config file through viper.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config groups every setting of the application.
type Config struct {
	App    AppConfig
	DB     DBConfig
	HTTP   HTTPConfig
	Report ReportConfig
}

type AppConfig struct {
	Env      string `validate:"required"` // development, production
	LogLevel string `validate:"omitempty,oneof=trace debug info warn error"`
}

// DBConfig points at the SQLite file holding the catalog and the ledger.
type DBConfig struct {
	Path string `validate:"required"`
}

type HTTPConfig struct {
	Host string
	Port int `validate:"min=1,max=65535"`
}

// Addr returns host:port.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ReportConfig tunes the read-side reports.
type ReportConfig struct {
	TopN       int `validate:"min=1"` // HighValueItems default
	WindowDays int `validate:"min=1"` // MonthlyComparison window length
}

// Load reads configuration. Environment variables win over the file.
// When configFile is empty, ./.env and ./config.{yaml,env} are tried and
// silently skipped if missing; an explicit configFile must exist.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName(".env")
		v.SetConfigType("env")
		v.AddConfigPath(".")
		_ = v.ReadInConfig()

		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		_ = v.MergeInConfig()
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
		},
		DB: DBConfig{
			Path: getString(v, "LEDGER_DB_PATH", "stockledger.db"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		Report: ReportConfig{
			TopN:       getInt(v, "REPORT_TOP_N", 10),
			WindowDays: getInt(v, "REPORT_WINDOW_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if !v.IsSet(key) {
		return def
	}
	switch v.Get(key).(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return def
		}
		return n
	default:
		return v.GetInt(key)
	}
}
