// Package config provides configuration management for tessera using Viper,
// loading from .tessera.yml, TESSERA_-prefixed environment variables, and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Environment names recognized in config.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the application configuration
type Config struct {
	App         AppConfig         `yaml:"app" mapstructure:"app"`
	Environment string            `yaml:"environment" mapstructure:"environment"`
	Templates   TemplatesConfig   `yaml:"templates" mapstructure:"templates"`
	Docs        DocsConfig        `yaml:"docs" mapstructure:"docs"`
	Development DevelopmentConfig `yaml:"development" mapstructure:"development"`
	LogLevel    string            `yaml:"log_level" mapstructure:"log_level"`
	LogFormat   string            `yaml:"log_format" mapstructure:"log_format"`
}

// AppConfig holds application identity and bind settings
type AppConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Description string `yaml:"description" mapstructure:"description"`
	Version     string `yaml:"version" mapstructure:"version"`
	Address     string `yaml:"address" mapstructure:"address"`
	Port        int    `yaml:"port" mapstructure:"port"`
}

// TemplatesConfig holds template and static file settings
type TemplatesConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	StaticDir  string `yaml:"static_dir" mapstructure:"static_dir"`
	StaticPath string `yaml:"static_path" mapstructure:"static_path"`
}

// DocsConfig holds API documentation paths
type DocsConfig struct {
	DocsPath        string `yaml:"docs_path" mapstructure:"docs_path"`
	OpenAPIJSONPath string `yaml:"openapi_json_path" mapstructure:"openapi_json_path"`
}

// DevelopmentConfig holds development-mode settings
type DevelopmentConfig struct {
	HotReload      *bool         `yaml:"hot_reload" mapstructure:"hot_reload"`
	DebounceWindow time.Duration `yaml:"debounce_window" mapstructure:"debounce_window"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// Init wires viper to tessera's configuration sources: an optional .env
// file, the given config file (default .tessera.yml in the working
// directory), and TESSERA_-prefixed environment variables. A missing config
// file is not an error.
func Init(cfgFile string) error {
	// Load .env if present, matching the original dotenv behavior.
	_ = gotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".tessera")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("TESSERA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// Load builds a Config from viper's current state and applies defaults
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Workarounds for viper's handling of nested keys set via env
	if viper.IsSet("environment") {
		config.Environment = viper.GetString("environment")
	}
	if viper.IsSet("templates.path") && config.Templates.Path == "" {
		config.Templates.Path = viper.GetString("templates.path")
	}
	if viper.IsSet("development.hot_reload") {
		v := viper.GetBool("development.hot_reload")
		config.Development.HotReload = &v
	}
	if viper.IsSet("log_level") {
		config.LogLevel = viper.GetString("log_level")
	}
	if viper.IsSet("log_format") {
		config.LogFormat = viper.GetString("log_format")
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns the configuration used when no sources are present
func Default() *Config {
	var config Config
	config.ApplyDefaults()
	return &config
}

// ApplyDefaults fills in zero values
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "tessera"
	}
	if c.App.Version == "" {
		c.App.Version = "dev"
	}
	if c.App.Address == "" {
		c.App.Address = "127.0.0.1"
	}
	if c.App.Port == 0 {
		c.App.Port = 8000
	}
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
	if c.Templates.Path == "" {
		c.Templates.Path = "templates"
	}
	if c.Templates.StaticDir == "" {
		c.Templates.StaticDir = "./public"
	}
	if c.Templates.StaticPath == "" {
		c.Templates.StaticPath = "/public"
	}
	if c.Docs.DocsPath == "" {
		c.Docs.DocsPath = "/swagger"
	}
	if c.Docs.OpenAPIJSONPath == "" {
		c.Docs.OpenAPIJSONPath = "/openapi.json"
	}
	if c.Development.DebounceWindow == 0 {
		c.Development.DebounceWindow = 100 * time.Millisecond
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	if c.App.Port < 1 || c.App.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.App.Port)
	}
	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if c.Development.DebounceWindow < 0 {
		return fmt.Errorf("negative debounce window %s", c.Development.DebounceWindow)
	}
	return nil
}

// IsDevelopment reports whether the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// HotReloadEnabled reports whether hot reload should run: explicit setting
// wins, otherwise it follows the environment (on in development, off in
// production).
func (c *Config) HotReloadEnabled() bool {
	if c.Development.HotReload != nil {
		return *c.Development.HotReload
	}
	return c.IsDevelopment()
}

// BindAddr returns the host:port the server listens on
func (c *Config) BindAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Address, c.App.Port)
}
