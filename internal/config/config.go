package config

import (
	"fmt"
	"strings"

	"github.com/Veraticus/runway/internal/common"
	"github.com/spf13/viper"
)

// Defaults.
const (
	DefaultDatabasePath  = "$HOME/.local/share/runway/runway.db"
	DefaultUserID        = "default"
	DefaultForecastWeeks = 13
	MaxForecastWeeks     = 104
)

// Config is the resolved runtime configuration.
type Config struct {
	DatabasePath  string
	UserID        string
	LogLevel      string
	LogFormat     string
	MetricsAddr   string
	RulesFile     string
	ForecastWeeks int
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("user.id", DefaultUserID)
	v.SetDefault("forecast.weeks", DefaultForecastWeeks)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads configuration from v, applying defaults for unset keys and
// expanding paths.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		DatabasePath:  ExpandPath(v.GetString("database.path")),
		UserID:        strings.TrimSpace(v.GetString("user.id")),
		ForecastWeeks: v.GetInt("forecast.weeks"),
		LogLevel:      v.GetString("logging.level"),
		LogFormat:     v.GetString("logging.format"),
		MetricsAddr:   v.GetString("metrics.addr"),
		RulesFile:     ExpandPath(v.GetString("rules.file")),
	}

	if cfg.UserID == "" {
		return nil, fmt.Errorf("%w: user.id must not be empty", common.ErrInvalidConfig)
	}
	if cfg.ForecastWeeks < 1 || cfg.ForecastWeeks > MaxForecastWeeks {
		return nil, fmt.Errorf("%w: forecast.weeks must be between 1 and %d, got %d",
			common.ErrInvalidConfig, MaxForecastWeeks, cfg.ForecastWeeks)
	}
	if _, err := common.ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}
