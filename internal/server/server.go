// Package server hosts the tessera development and application HTTP server.
//
// The server is glue: it mounts caller-provided routers, static assets, the
// live reload endpoints, and a page handler that feeds requests through the
// rendering pipeline. All template semantics live in internal/templates.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/conneroisu/tessera/internal/config"
	"github.com/conneroisu/tessera/internal/livereload"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/static"
	"github.com/conneroisu/tessera/internal/templates"
)

// Server serves rendered templates, static assets, and live reload
type Server struct {
	config   *config.Config
	renderer *templates.Renderer
	hub      *livereload.Hub
	web      http.Handler
	api      http.Handler
	apiBase  string
	noStatic bool
	logger   logging.Logger

	httpServer *http.Server
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server's logger
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHub attaches a live reload hub; nil leaves live reload unmounted
func WithHub(hub *livereload.Hub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithWebHandler overrides the default page handler for non-reserved paths
func WithWebHandler(h http.Handler) Option {
	return func(s *Server) {
		s.web = h
	}
}

// WithAPIHandler mounts h under base
func WithAPIHandler(base string, h http.Handler) Option {
	return func(s *Server) {
		s.apiBase = base
		s.api = h
	}
}

// WithoutStaticFiles disables the static asset mount
func WithoutStaticFiles() Option {
	return func(s *Server) {
		s.noStatic = true
	}
}

// New creates a server around cfg and renderer
func New(cfg *config.Config, renderer *templates.Renderer, opts ...Option) *Server {
	s := &Server{
		config:   cfg,
		renderer: renderer,
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("server")
	return s
}

// Handler builds the full route tree
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if !s.noStatic {
		prefix := s.config.Templates.StaticPath
		mux.Handle(prefix+"/", static.Handler(prefix, s.config.Templates.StaticDir))
	}

	if s.api != nil && s.apiBase != "" {
		base := strings.TrimSuffix(s.apiBase, "/")
		mux.Handle(base+"/", http.StripPrefix(base, s.api))
	}

	var pages http.Handler
	if s.web != nil {
		pages = s.web
	} else {
		pages = s.PageHandler()
	}

	if s.hub != nil {
		mux.Handle(livereload.WebSocketPath, s.hub)
		mux.Handle(livereload.ScriptPath, livereload.ScriptHandler())
		pages = livereload.Inject(pages)
	}

	mux.Handle("/", pages)
	return mux
}

// PageHandler maps request paths to template names and renders them through
// the pipeline: / serves index.html, /about serves about.html, and paths
// with an extension are used as-is.
func (s *Server) PageHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		name := templateName(r.URL.Path)

		ctx := templates.Context{
			"request_path": r.URL.Path,
			"query":        r.URL.Query(),
		}

		status := http.StatusOK
		if !s.renderer.Store().Has(name) {
			if _, tracked := s.renderer.Store().Errors().Get(); !tracked {
				status = http.StatusNotFound
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		w.Write([]byte(s.renderer.HTML(name, ctx)))
	})
}

// templateName converts a URL path to a template name. Cleaning the rooted
// path resolves any .. segments; the result is only ever a lookup key into
// the compiled set, never a filesystem path.
func templateName(urlPath string) string {
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" {
		name = "index"
	}
	if path.Ext(name) == "" {
		name += ".html"
	}
	return name
}

// Start runs the server until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.config.BindAddr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	s.logger.Info(ctx, "server listening",
		"addr", s.config.BindAddr(),
		"environment", s.config.Environment)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
