// Package templates implements tessera's hot-reloadable template store.
//
// A Store owns a compiled set of pongo2 templates discovered under a
// directory. The set is built lazily on first access, read concurrently by
// renders, and replaced wholesale by Reload: a new set is compiled off to
// the side and published with a single swap under a brief write lock, so
// readers always observe either the old set or the new one in full.
//
// Failures never leave the store unusable. A failed initial build installs
// an empty set, a failed reload keeps the previous set live, and either way
// the failure is recorded in an ErrorState that the render pipeline turns
// into a diagnostic page.
package templates

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/flosch/pongo2/v6"

	"github.com/conneroisu/tessera/internal/logging"
)

// DefaultPath is the template source directory used when none is configured.
const DefaultPath = "templates"

// Context carries the variables a template is rendered against.
type Context = pongo2.Context

// escapedExts lists the extensions rendered with HTML auto-escaping.
// Everything else renders raw, for plaintext and email templates. This is
// a fixed security policy, not per-call configuration.
var escapedExts = map[string]bool{
	".html": true,
	".htm":  true,
	".xml":  true,
	".svg":  true,
}

// Store is a concurrently readable compiled template set.
type Store struct {
	mu  sync.RWMutex
	set map[string]*pongo2.Template

	once  sync.Once
	ready atomic.Bool

	pathMu sync.Mutex
	path   string

	errs   *ErrorState
	logger logging.Logger
}

// StoreOption configures a Store at construction
type StoreOption func(*Store)

// WithLogger sets the store's logger
func WithLogger(logger logging.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a store rooted at dir. The set is not compiled until
// the first Render, Names, or Reload call.
func NewStore(dir string, opts ...StoreOption) *Store {
	if dir == "" {
		dir = DefaultPath
	}
	s := &Store{
		path:   dir,
		errs:   NewErrorState(),
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("templates")
	return s
}

// Errors returns the store's failure tracker
func (s *Store) Errors() *ErrorState {
	return s.errs
}

// Path returns the configured template directory
func (s *Store) Path() string {
	s.pathMu.Lock()
	defer s.pathMu.Unlock()
	return s.path
}

// SetPath changes the template directory. Before the first build it takes
// effect on initialization; afterwards it only matters on the next explicit
// Reload, and a warning is logged since that is usually a misordered call.
func (s *Store) SetPath(dir string) {
	if dir == "" {
		dir = DefaultPath
	}
	s.pathMu.Lock()
	s.path = dir
	s.pathMu.Unlock()

	if s.ready.Load() {
		s.logger.Warn(context.Background(), nil, "template path changed after initialization; takes effect on next reload",
			"path", dir)
	}
}

// Render evaluates template name against ctx. Concurrent calls are safe
// and run in parallel; a reload in flight only delays the snapshot grab,
// not the evaluation.
func (s *Store) Render(name string, ctx Context) (string, error) {
	tpl, ok := s.snapshot()[name]
	if !ok {
		return "", newNotFoundError(name)
	}

	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", newRuntimeError(name, err)
	}
	return out, nil
}

// Names returns the template names in the current set, in no particular order
func (s *Store) Names() []string {
	set := s.snapshot()
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	return names
}

// Has reports whether the current set contains name
func (s *Store) Has(name string) bool {
	_, ok := s.snapshot()[name]
	return ok
}

// Reload recompiles the entire set from the configured path. On success
// the new set is swapped in atomically and the error tracker cleared; on
// failure the previous set stays live and the tracker records the failure.
func (s *Store) Reload() error {
	compiled, err := s.compile()
	if err != nil {
		s.errs.Set(err.Error())
		s.logger.Error(context.Background(), err, "template reload failed", "path", s.Path())
		// Seed an empty set if nothing has been built yet, so renders
		// degrade to diagnostics instead of triggering a second build.
		s.once.Do(func() {
			s.publish(map[string]*pongo2.Template{})
		})
		return &ReloadError{Path: s.Path(), Err: err}
	}

	// Claim initialization so a concurrent first access does not compile a
	// competing set. The publish happens inside the once when this is the
	// first build: readers wait on the once and then must see a committed
	// set, never the nil zero value.
	published := false
	s.once.Do(func() {
		s.publish(compiled)
		published = true
	})
	if !published {
		s.publish(compiled)
	}
	s.errs.Clear()
	s.logger.Info(context.Background(), "templates reloaded", "path", s.Path(), "count", len(compiled))
	return nil
}

// snapshot returns the current committed set, building it on first use.
// Exactly one caller runs the build; the rest wait on the sync.Once and
// then observe its result, success or captured failure.
func (s *Store) snapshot() map[string]*pongo2.Template {
	s.once.Do(s.initialize)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

func (s *Store) initialize() {
	compiled, err := s.compile()
	if err != nil {
		ierr := &InitError{Path: s.Path(), Err: err}
		s.errs.Set(err.Error())
		s.logger.Error(context.Background(), ierr, "template initialization failed")
		compiled = map[string]*pongo2.Template{}
	} else {
		s.logger.Info(context.Background(), "templates initialized", "path", s.Path(), "count", len(compiled))
	}
	s.publish(compiled)
}

// publish swaps in a fully built set. The write lock is held only for the
// assignment; compilation always happens off to the side.
func (s *Store) publish(set map[string]*pongo2.Template) {
	s.mu.Lock()
	s.set = set
	s.mu.Unlock()
	s.ready.Store(true)
}

// compile builds a fresh set from the configured directory. The returned
// map is never mutated after publish, so renders may use it lock-free.
func (s *Store) compile() (map[string]*pongo2.Template, error) {
	root := s.Path()

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("template path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template path %q is not a directory", root)
	}

	loader, err := pongo2.NewLocalFileSystemLoader(root)
	if err != nil {
		return nil, fmt.Errorf("template loader: %w", err)
	}
	set := pongo2.NewSet("tessera", loader)

	compiled := make(map[string]*pongo2.Template)
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if skipSource(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		src, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}

		tpl, err := parseTemplate(set, name, src)
		if err != nil {
			return newSyntaxError(name, err)
		}
		compiled[name] = tpl
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return compiled, nil
}

// parseTemplate compiles one source, applying the extension escape policy.
// pongo2's autoescape switch is package-global, so raw extensions are
// wrapped in an autoescape-off block at compile time instead. Sources that
// start with an extends tag cannot be wrapped (extends must come first);
// they follow their parent's escaping.
func parseTemplate(set *pongo2.TemplateSet, name string, src []byte) (*pongo2.Template, error) {
	body := string(src)
	if !escapedExts[strings.ToLower(path.Ext(name))] && !strings.HasPrefix(strings.TrimSpace(body), "{% extends") {
		body = "{% autoescape off %}" + body + "{% endautoescape %}"
	}
	return set.FromString(body)
}

// skipSource filters out editor droppings and hidden files
func skipSource(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	if strings.HasSuffix(name, "~") {
		return true
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".swp", ".swx", ".tmp", ".bak":
		return true
	}
	return false
}
