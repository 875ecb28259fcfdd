package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(wd)) })
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "tessera", cfg.App.Name)
	assert.Equal(t, "127.0.0.1", cfg.App.Address)
	assert.Equal(t, 8000, cfg.App.Port)
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, "templates", cfg.Templates.Path)
	assert.Equal(t, "./public", cfg.Templates.StaticDir)
	assert.Equal(t, "/public", cfg.Templates.StaticPath)
	assert.Equal(t, "/swagger", cfg.Docs.DocsPath)
	assert.Equal(t, "/openapi.json", cfg.Docs.OpenAPIJSONPath)
	assert.Equal(t, 100*time.Millisecond, cfg.Development.DebounceWindow)
	assert.Nil(t, cfg.Development.HotReload)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestInitMissingConfigFileIsNotAnError(t *testing.T) {
	resetViper(t)
	chdir(t, t.TempDir())

	assert.NoError(t, Init(""))
}

func TestInitExplicitMissingFileIsAnError(t *testing.T) {
	resetViper(t)

	err := Init(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	assert.Error(t, err)
}

func TestLoadFromConfigFile(t *testing.T) {
	resetViper(t)

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "tessera.yml")
	contents := `app:
  name: myapp
  address: 0.0.0.0
  port: 9090
environment: production
templates:
  path: views
  static_dir: ./assets
development:
  hot_reload: true
  debounce_window: 250ms
log_level: debug
`
	require.NoError(t, os.WriteFile(cfgFile, []byte(contents), 0644))
	require.NoError(t, Init(cfgFile))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "myapp", cfg.App.Name)
	assert.Equal(t, "0.0.0.0", cfg.App.Address)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, "views", cfg.Templates.Path)
	assert.Equal(t, "./assets", cfg.Templates.StaticDir)
	// Unset keys still get defaults.
	assert.Equal(t, "/public", cfg.Templates.StaticPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.Development.DebounceWindow)
	require.NotNil(t, cfg.Development.HotReload)
	assert.True(t, *cfg.Development.HotReload)
}

func TestLoadFromEnvironment(t *testing.T) {
	resetViper(t)
	chdir(t, t.TempDir())

	t.Setenv("TESSERA_ENVIRONMENT", "production")
	t.Setenv("TESSERA_TEMPLATES_PATH", "site/templates")
	t.Setenv("TESSERA_DEVELOPMENT_HOT_RELOAD", "true")

	require.NoError(t, Init(""))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, "site/templates", cfg.Templates.Path)
	require.NotNil(t, cfg.Development.HotReload)
	assert.True(t, *cfg.Development.HotReload)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"zero port", func(c *Config) { c.App.Port = -1 }, true},
		{"port too high", func(c *Config) { c.App.Port = 70000 }, true},
		{"unknown environment", func(c *Config) { c.Environment = "staging" }, true},
		{"negative debounce", func(c *Config) { c.Development.DebounceWindow = -time.Second }, true},
		{"production", func(c *Config) { c.Environment = EnvProduction }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHotReloadEnabled(t *testing.T) {
	on := true
	off := false

	testCases := []struct {
		name        string
		environment string
		hotReload   *bool
		expected    bool
	}{
		{"development default", EnvDevelopment, nil, true},
		{"production default", EnvProduction, nil, false},
		{"explicit on in production", EnvProduction, &on, true},
		{"explicit off in development", EnvDevelopment, &off, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Environment = tc.environment
			cfg.Development.HotReload = tc.hotReload
			assert.Equal(t, tc.expected, cfg.HotReloadEnabled())
		})
	}
}

func TestBindAddr(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1:8000", cfg.BindAddr())

	cfg.App.Address = "0.0.0.0"
	cfg.App.Port = 3000
	assert.Equal(t, "0.0.0.0:3000", cfg.BindAddr())
}

func TestIsDevelopment(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.IsDevelopment())

	cfg.Environment = EnvProduction
	assert.False(t, cfg.IsDevelopment())
}

func TestDotEnvFileIsLoaded(t *testing.T) {
	resetViper(t)

	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TESSERA_LOG_LEVEL=debug\n"), 0644))

	require.NoError(t, Init(""))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}
