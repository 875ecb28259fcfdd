package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tessera/internal/config"
	"github.com/conneroisu/tessera/internal/livereload"
	"github.com/conneroisu/tessera/internal/templates"
)

func newTestRenderer(t *testing.T, files map[string]string) *templates.Renderer {
	t.Helper()

	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	}
	return templates.NewRenderer(templates.NewStore(dir))
}

func TestTemplateName(t *testing.T) {
	testCases := []struct {
		urlPath  string
		expected string
	}{
		{"/", "index.html"},
		{"", "index.html"},
		{"/about", "about.html"},
		{"/about.html", "about.html"},
		{"/email/welcome.txt", "email/welcome.txt"},
		{"/blog/post", "blog/post.html"},
		// Rooted cleaning resolves traversal before lookup.
		{"/../etc/passwd", "etc/passwd.html"},
		{"/a/../b", "b.html"},
		// Dots inside a filename are just a filename.
		{"/notes..txt", "notes..txt"},
	}

	for _, tc := range testCases {
		t.Run(tc.urlPath, func(t *testing.T) {
			assert.Equal(t, tc.expected, templateName(tc.urlPath))
		})
	}
}

func TestPageHandlerServesIndex(t *testing.T) {
	renderer := newTestRenderer(t, map[string]string{
		"index.html": "<html><body>Hello {{ name }}</body></html>",
	})
	srv := New(config.Default(), renderer)

	rec := httptest.NewRecorder()
	srv.PageHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Hello")
}

func TestPageHandlerMapsExtensionlessPaths(t *testing.T) {
	renderer := newTestRenderer(t, map[string]string{
		"about.html": "<html><body>About us</body></html>",
	})
	srv := New(config.Default(), renderer)

	rec := httptest.NewRecorder()
	srv.PageHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/about", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "About us")
}

func TestPageHandlerMissingTemplateIs404WithDiagnostic(t *testing.T) {
	renderer := newTestRenderer(t, map[string]string{
		"index.html": "<html><body>index</body></html>",
	})
	srv := New(config.Default(), renderer)

	rec := httptest.NewRecorder()
	srv.PageHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	// The pipeline still produces a page rather than an empty body.
	assert.Contains(t, rec.Body.String(), "missing.html")
}

func TestPageHandlerServesDottedFilenames(t *testing.T) {
	renderer := newTestRenderer(t, map[string]string{
		"release..notes.html": "<html><body>release notes</body></html>",
	})
	srv := New(config.Default(), renderer)

	rec := httptest.NewRecorder()
	srv.PageHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/release..notes.html", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "release notes")
}

func TestPageHandlerRejectsNonGet(t *testing.T) {
	renderer := newTestRenderer(t, map[string]string{
		"index.html": "<html><body>index</body></html>",
	})
	srv := New(config.Default(), renderer)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		srv.PageHandler().ServeHTTP(rec, httptest.NewRequest(method, "/", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
	}
}

func TestPageHandlerExposesRequestContext(t *testing.T) {
	renderer := newTestRenderer(t, map[string]string{
		"where.html": "<html><body>{{ request_path }}</body></html>",
	})
	srv := New(config.Default(), renderer)

	rec := httptest.NewRecorder()
	srv.PageHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/where", nil))

	assert.Contains(t, rec.Body.String(), "/where")
}

func TestHandlerMountsStaticFiles(t *testing.T) {
	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "style.css"), []byte("body{}"), 0644))

	cfg := config.Default()
	cfg.Templates.StaticDir = staticDir

	renderer := newTestRenderer(t, map[string]string{
		"index.html": "<html><body>index</body></html>",
	})
	srv := New(cfg, renderer)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public/style.css", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{}", rec.Body.String())
}

func TestHandlerWithoutStaticFiles(t *testing.T) {
	renderer := newTestRenderer(t, map[string]string{
		"index.html": "<html><body>index</body></html>",
	})
	srv := New(config.Default(), renderer, WithoutStaticFiles())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public/style.css", nil))

	// Falls through to the page handler, which 404s the unknown template.
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerMountsAPI(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "api:%s", r.URL.Path)
	})

	renderer := newTestRenderer(t, map[string]string{
		"index.html": "<html><body>index</body></html>",
	})
	srv := New(config.Default(), renderer, WithAPIHandler("/api", api))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "api:/users", rec.Body.String())
}

func TestHandlerWithHubMountsLiveReload(t *testing.T) {
	renderer := newTestRenderer(t, map[string]string{
		"index.html": "<html><body>index</body></html>",
	})
	hub := livereload.NewHub()
	srv := New(config.Default(), renderer, WithHub(hub))
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, livereload.ScriptPath, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")

	// Pages get the reload script injected.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), livereload.ScriptPath)
}

func TestHandlerWithoutHubSkipsInjection(t *testing.T) {
	renderer := newTestRenderer(t, map[string]string{
		"index.html": "<html><body>index</body></html>",
	})
	srv := New(config.Default(), renderer)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotContains(t, rec.Body.String(), livereload.ScriptPath)
}

func TestHandlerWithWebHandlerOverride(t *testing.T) {
	web := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "custom web")
	})

	renderer := newTestRenderer(t, map[string]string{
		"index.html": "<html><body>index</body></html>",
	})
	srv := New(config.Default(), renderer, WithWebHandler(web))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))
	assert.Equal(t, "custom web", rec.Body.String())
}

func TestStartShutsDownOnContextCancel(t *testing.T) {
	cfg := config.Default()
	cfg.App.Address = "127.0.0.1"
	cfg.App.Port = pickFreePort(t)

	renderer := newTestRenderer(t, map[string]string{
		"index.html": "<html><body>index</body></html>",
	})
	srv := New(cfg, renderer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/", cfg.BindAddr()))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func pickFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
