// File: internal/config/config_test.go
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "console", cfg.Logger().Format)
	assert.Equal(t, "lancet", cfg.Logger().ServiceName)
	assert.Equal(t, "green", cfg.Logger().Colors.Info)
	assert.Equal(t, 8, cfg.Engine().WorkerConcurrency)
	assert.False(t, cfg.Rules().DisableBuiltin)
	assert.Empty(t, cfg.Rules().Paths)
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Overrides Layer Over Defaults", func(t *testing.T) {
		yamlBytes := []byte(`
logger:
  level: debug
  format: json
engine:
  worker_concurrency: 2
rules:
  disable_builtin: true
  paths:
    - rules/custom.yaml
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.Logger().Level)
		assert.Equal(t, "json", cfg.Logger().Format)
		assert.Equal(t, 2, cfg.Engine().WorkerConcurrency)
		assert.True(t, cfg.Rules().DisableBuiltin)
		assert.Equal(t, []string{"rules/custom.yaml"}, cfg.Rules().Paths)

		// Untouched defaults survive the merge.
		assert.Equal(t, "lancet", cfg.Logger().ServiceName)
		assert.Equal(t, 100, cfg.Logger().MaxSize)
	})

	t.Run("Colors Mapping", func(t *testing.T) {
		yamlBytes := []byte(`
logger:
  colors:
    info: blue
    error: magenta
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "blue", cfg.Logger().Colors.Info)
		assert.Equal(t, "magenta", cfg.Logger().Colors.Error)
		assert.Equal(t, "yellow", cfg.Logger().Colors.Warn)
	})
}

// -- Load Tests --

func TestLoad(t *testing.T) {
	t.Run("Explicit File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lancet.yaml")
		require.NoError(t, os.WriteFile(path, []byte("engine:\n  worker_concurrency: 3\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Engine().WorkerConcurrency)
	})

	t.Run("Missing Explicit File Is Not Fatal", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Engine().WorkerConcurrency)
	})

	t.Run("Malformed File Is Fatal", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("logger: [not a map"), 0o600))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("Environment Overrides", func(t *testing.T) {
		t.Setenv("LANCET_LOGGER_LEVEL", "warn")
		t.Setenv("LANCET_ENGINE_WORKER_CONCURRENCY", "5")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "warn", cfg.Logger().Level)
		assert.Equal(t, 5, cfg.Engine().WorkerConcurrency)
	})
}

// -- Setter Tests --

func TestSetters(t *testing.T) {
	cfg := NewDefault()

	sc := ScanConfig{
		Targets:      []string{"src/"},
		Frameworks:   []string{"express"},
		OutputFormat: "sarif",
		OutputFile:   "out.sarif",
	}
	cfg.SetScanConfig(sc)
	assert.Equal(t, sc, cfg.Scan())

	cfg.SetEngineWorkerConcurrency(1)
	assert.Equal(t, 1, cfg.Engine().WorkerConcurrency)
}
