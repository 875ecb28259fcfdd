// Package app assembles a tessera application: configuration, template
// store, renderer, live reload, and HTTP server.
//
// App is the composition root. It constructs the template store exactly
// once and hands the same instance to every consumer, so there is no
// process-global state; the hot reload machinery (watcher plus hub) is
// wired only when the configuration asks for it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/conneroisu/tessera/internal/config"
	"github.com/conneroisu/tessera/internal/livereload"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/server"
	"github.com/conneroisu/tessera/internal/templates"
	"github.com/conneroisu/tessera/internal/watcher"
)

// App is a builder for tessera applications
type App struct {
	cfg    *config.Config
	cfgErr error

	environment   string
	templatesPath string
	staticPath    string
	staticDir     string
	noStatic      bool
	liveReload    *bool
	debounce      time.Duration

	web     http.Handler
	apiBase string
	api     http.Handler

	logger logging.Logger
}

// New creates an app with default configuration
func New() *App {
	return &App{}
}

// AutoConfig loads configuration from .tessera.yml, environment variables,
// and .env. Errors are deferred to Serve so the builder chain stays clean.
func (a *App) AutoConfig() *App {
	if err := config.Init(""); err != nil {
		a.cfgErr = err
		return a
	}
	a.cfg, a.cfgErr = config.Load()
	return a
}

// WithConfig uses cfg instead of loading one
func (a *App) WithConfig(cfg *config.Config) *App {
	a.cfg = cfg
	return a
}

// Environment overrides the configured environment
func (a *App) Environment(env string) *App {
	a.environment = env
	return a
}

// TemplatesPath overrides the template source directory
func (a *App) TemplatesPath(path string) *App {
	a.templatesPath = path
	return a
}

// Web sets the handler for page routes, replacing the default
// render-by-path handler
func (a *App) Web(h http.Handler) *App {
	a.web = h
	return a
}

// API mounts h under base
func (a *App) API(base string, h http.Handler) *App {
	a.apiBase = base
	a.api = h
	return a
}

// StaticFiles serves dir under servePath
func (a *App) StaticFiles(servePath, dir string) *App {
	a.staticPath = servePath
	a.staticDir = dir
	a.noStatic = false
	return a
}

// NoStaticFiles disables static file serving
func (a *App) NoStaticFiles() *App {
	a.noStatic = true
	return a
}

// LiveReload forces hot reload on or off, overriding the environment default
func (a *App) LiveReload(enabled bool) *App {
	a.liveReload = &enabled
	return a
}

// DebounceWindow overrides the watcher's quiet period
func (a *App) DebounceWindow(d time.Duration) *App {
	a.debounce = d
	return a
}

// Logger sets the logger for all components
func (a *App) Logger(logger logging.Logger) *App {
	a.logger = logger
	return a
}

// resolve merges builder overrides into the configuration
func (a *App) resolve() (*config.Config, error) {
	if a.cfgErr != nil {
		return nil, a.cfgErr
	}
	cfg := a.cfg
	if cfg == nil {
		cfg = config.Default()
	}

	if a.environment != "" {
		cfg.Environment = a.environment
	}
	if a.templatesPath != "" {
		cfg.Templates.Path = a.templatesPath
	}
	if a.staticPath != "" {
		cfg.Templates.StaticPath = a.staticPath
	}
	if a.staticDir != "" {
		cfg.Templates.StaticDir = a.staticDir
	}
	if a.liveReload != nil {
		cfg.Development.HotReload = a.liveReload
	}
	if a.debounce > 0 {
		cfg.Development.DebounceWindow = a.debounce
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Serve builds the application and runs it until ctx is cancelled or an
// interrupt arrives
func (a *App) Serve(ctx context.Context) error {
	cfg, err := a.resolve()
	if err != nil {
		return fmt.Errorf("resolving configuration: %w", err)
	}

	logger := a.logger
	if logger == nil {
		logger = logging.NewLogger(&logging.LoggerConfig{
			Level:  logging.ParseLevel(cfg.LogLevel),
			Format: cfg.LogFormat,
		})
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := templates.NewStore(cfg.Templates.Path, templates.WithLogger(logger))
	renderer := templates.NewRenderer(store, templates.WithRendererLogger(logger))

	opts := []server.Option{server.WithLogger(logger)}
	if a.web != nil {
		opts = append(opts, server.WithWebHandler(a.web))
	}
	if a.api != nil {
		opts = append(opts, server.WithAPIHandler(a.apiBase, a.api))
	}
	if a.noStatic {
		opts = append(opts, server.WithoutStaticFiles())
	}

	if cfg.HotReloadEnabled() {
		hub := livereload.NewHub(
			livereload.WithLogger(logger),
			livereload.WithAllowedOrigins(cfg.Development.AllowedOrigins),
		)
		go hub.Run(ctx)
		opts = append(opts, server.WithHub(hub))

		fw, err := watcher.NewFileWatcher(cfg.Development.DebounceWindow, watcher.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("creating file watcher: %w", err)
		}
		defer fw.Stop()

		fw.AddFilter(watcher.TemplateFilter)
		fw.AddFilter(watcher.NoGitFilter)
		fw.AddHandler(func([]watcher.ChangeEvent) error {
			err := store.Reload()
			// Clients refresh either way: a failed reload should show the
			// diagnostic page immediately, not on the next manual refresh.
			hub.NotifyAll()
			return err
		})

		if err := fw.AddRecursive(cfg.Templates.Path); err != nil {
			return fmt.Errorf("watching %s: %w", cfg.Templates.Path, err)
		}
		fw.Start(ctx)

		logger.Info(ctx, "hot reload enabled",
			"path", cfg.Templates.Path,
			"debounce", cfg.Development.DebounceWindow.String())
	}

	srv := server.New(cfg, renderer, opts...)
	return srv.Start(ctx)
}

// Fullstack runs an app with page routes and an API mounted at /api
func Fullstack(ctx context.Context, web, api http.Handler) error {
	return New().AutoConfig().Web(web).API("/api", api).Serve(ctx)
}

// WebOnly runs an app with page routes only
func WebOnly(ctx context.Context, web http.Handler) error {
	return New().AutoConfig().Web(web).Serve(ctx)
}

// APIOnly runs an app exposing only an API under /api
func APIOnly(ctx context.Context, api http.Handler) error {
	return New().AutoConfig().API("/api", api).NoStaticFiles().Serve(ctx)
}
