// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "pagecheck", cfg.Logger.ServiceName)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "chromium", cfg.Browser.DefaultEngine)
	assert.Equal(t, []string{"chrome", "chromium"}, cfg.Browser.EngineNames())
	assert.Equal(t, 30*time.Second, cfg.Navigation.LongTimeout)
	assert.Equal(t, 15*time.Second, cfg.Navigation.ShortTimeout)
	assert.Equal(t, "about:blank", cfg.Navigation.BlankURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Executor.PollInterval)
	assert.Equal(t, 300, cfg.Executor.MaxPresses)
	assert.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Unknown default engine", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Browser.DefaultEngine = "netscape"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `default_engine "netscape" is not a configured engine`)
	})

	t.Run("Unknown failover engine", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Browser.Failover = []string{"chromium", "lynx"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `failover engine "lynx"`)
	})

	t.Run("No engines", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Browser.Engines = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("Short timeout longer than long timeout", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Navigation.ShortTimeout = time.Minute
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must not exceed long_timeout")
	})

	t.Run("Non-positive presses", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Executor.MaxPresses = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_presses must be greater than 0")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
browser:
  default_engine: edge
  engines:
    edge:
      exec_path: /usr/bin/microsoft-edge
  failover: [edge]
navigation:
  long_timeout: 45s
executor:
  max_presses: 50
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "edge", cfg.Browser.DefaultEngine)
		assert.Equal(t, "/usr/bin/microsoft-edge", cfg.Browser.Engines["edge"].ExecPath)
		assert.Equal(t, 45*time.Second, cfg.Navigation.LongTimeout)
		assert.Equal(t, 50, cfg.Executor.MaxPresses)
		// Defaults survive alongside overrides.
		assert.Equal(t, "info", cfg.Logger.Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("executor.poll_interval", "0s")

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "poll_interval must be a positive duration")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		t.Setenv("PAGECHECK_DATABASE_URL", "postgres://u:p@localhost/reports")
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "postgres://u:p@localhost/reports", cfg.Store.DatabaseURL)
	})
}
