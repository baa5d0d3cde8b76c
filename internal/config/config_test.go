package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/runway/internal/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".local/share/runway/runway.db"), cfg.DatabasePath)
	assert.Equal(t, DefaultUserID, cfg.UserID)
	assert.Equal(t, DefaultForecastWeeks, cfg.ForecastWeeks)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Empty(t, cfg.RulesFile)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: `+dir+`/runway.db
user:
  id: studio
forecast:
  weeks: 26
rules:
  file: `+dir+`/rules.yaml
metrics:
  addr: ":9090"
`), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "runway.db"), cfg.DatabasePath)
	assert.Equal(t, "studio", cfg.UserID)
	assert.Equal(t, 26, cfg.ForecastWeeks)
	assert.Equal(t, filepath.Join(dir, "rules.yaml"), cfg.RulesFile)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{name: "zero weeks", key: "forecast.weeks", val: 0},
		{name: "too many weeks", key: "forecast.weeks", val: MaxForecastWeeks + 1},
		{name: "blank user", key: "user.id", val: "  "},
		{name: "bad log level", key: "logging.level", val: "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.val)
			_, err := Load(v)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("RUNWAY_TEST_DIR", "/srv/runway")

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, "x.db"), ExpandPath("~/x.db"))
	assert.Equal(t, "/srv/runway/x.db", ExpandPath("$RUNWAY_TEST_DIR/x.db"))
}
