// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Engine() EngineConfig
	Rules() RulesConfig
	Scan() ScanConfig
	SetScanConfig(sc ScanConfig)

	// Engine Setters
	SetEngineWorkerConcurrency(int)
}

// Config holds the entire application configuration. It uses private fields
// to enforce access through the Interface's getter methods.
type Config struct {
	logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
	engine EngineConfig `mapstructure:"engine" yaml:"engine"`
	rules  RulesConfig  `mapstructure:"rules" yaml:"rules"`
	// scan gets its marching orders from CLI flags, not the config file.
	scan ScanConfig `mapstructure:"-" yaml:"-"`
}

// --- Interface Method Implementations ---

func (c *Config) Logger() LoggerConfig { return c.logger }
func (c *Config) Engine() EngineConfig { return c.engine }
func (c *Config) Rules() RulesConfig   { return c.rules }
func (c *Config) Scan() ScanConfig     { return c.scan }

func (c *Config) SetScanConfig(sc ScanConfig)      { c.scan = sc }
func (c *Config) SetEngineWorkerConcurrency(w int) { c.engine.WorkerConcurrency = w }

// LoggerConfig controls log output destinations, formats and rotation.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for console output.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// EngineConfig tunes the analysis engine.
type EngineConfig struct {
	// WorkerConcurrency bounds concurrent function analysis in both the
	// summary and detection phases.
	WorkerConcurrency int `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
}

// RulesConfig controls which detection rules are loaded.
type RulesConfig struct {
	// DisableBuiltin drops the built-in catalog, leaving only rule files.
	DisableBuiltin bool `mapstructure:"disable_builtin" yaml:"disable_builtin"`
	// Paths lists YAML rule files layered over the built-ins; a file rule
	// sharing an ID with a built-in replaces it.
	Paths []string `mapstructure:"paths" yaml:"paths"`
}

// ScanConfig describes one analysis invocation. Populated from CLI flags.
type ScanConfig struct {
	// Targets are the files or directories to analyze.
	Targets []string `mapstructure:"-" yaml:"-"`
	// Frameworks overrides automatic framework detection when non-empty.
	Frameworks []string `mapstructure:"-" yaml:"-"`
	// OutputFormat is "json" or "sarif".
	OutputFormat string `mapstructure:"-" yaml:"-"`
	// OutputFile receives the report; empty means stdout.
	OutputFile string `mapstructure:"-" yaml:"-"`
}

// SetDefaults initializes default values for various configuration
// parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "lancet")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Engine --
	v.SetDefault("engine.worker_concurrency", 8)

	// -- Rules --
	v.SetDefault("rules.disable_builtin", false)
	v.SetDefault("rules.paths", []string{})
}

// NewDefault returns a configuration built purely from defaults.
func NewDefault() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// Defaults always unmarshal; a failure here is a programming error.
		panic(fmt.Sprintf("failed to build default config: %v", err))
	}
	return cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var raw struct {
		Logger LoggerConfig `mapstructure:"logger"`
		Engine EngineConfig `mapstructure:"engine"`
		Rules  RulesConfig  `mapstructure:"rules"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &Config{logger: raw.Logger, engine: raw.Engine, rules: raw.Rules}, nil
}

// Load reads configuration from the given file (optional), environment
// variables prefixed LANCET_, and defaults, in that precedence order.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("LANCET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
			}
		}
	} else {
		v.SetConfigName("lancet")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/lancet")
		}
		// A missing default config file is not an error.
		_ = v.ReadInConfig()
	}

	return NewConfigFromViper(v)
}
