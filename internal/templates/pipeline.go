package templates

import (
	"context"
	"fmt"
	"html"

	"github.com/conneroisu/tessera/internal/logging"
)

// Diagnostic page skeletons. All dynamic text is entity-escaped before
// insertion: error messages can embed attacker-influenced strings (for
// example a template with a syntax mistake inside user-provided markup)
// and must never execute in the diagnostic page.
const (
	trackedErrorPage = "<!DOCTYPE html><html><body><h1>Template Error</h1><pre>%s</pre></body></html>"
	renderErrorPage  = "<!DOCTYPE html><html><body><h1>Template Render Error</h1><p>Template: %s</p><pre>%s</pre></body></html>"
)

// Renderer is the public rendering entry point. HTML never fails: every
// error path degrades to a well-formed diagnostic document, so request
// handlers can treat the result as plain output.
type Renderer struct {
	store  *Store
	logger logging.Logger
}

// RendererOption configures a Renderer
type RendererOption func(*Renderer)

// WithRendererLogger sets the renderer's logger
func WithRendererLogger(logger logging.Logger) RendererOption {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// NewRenderer creates a renderer over store
func NewRenderer(store *Store, opts ...RendererOption) *Renderer {
	r := &Renderer{
		store:  store,
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("renderer")
	return r
}

// Store returns the underlying template store
func (r *Renderer) Store() *Store {
	return r.store
}

// HTML renders template name against ctx, degrading every failure to a
// diagnostic page:
//
//  1. If the error tracker holds an init/reload failure, return it as a
//     diagnostic without touching the requested template.
//  2. Otherwise render through the store.
//  3. A render failure produces a diagnostic naming the template; it is
//     local to this call and alters neither tracker nor store.
func (r *Renderer) HTML(name string, ctx Context) string {
	if msg, ok := r.store.Errors().Get(); ok {
		r.logger.Error(context.Background(), nil, "serving tracked template error", "template", name)
		return fmt.Sprintf(trackedErrorPage, html.EscapeString(msg))
	}

	out, err := r.store.Render(name, ctx)
	if err != nil {
		r.logger.Error(context.Background(), err, "template render failed", "template", name)
		return fmt.Sprintf(renderErrorPage, html.EscapeString(name), html.EscapeString(err.Error()))
	}
	return out
}
