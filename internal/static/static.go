// Package static serves a directory of static assets.
package static

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// dirFS is an http.FileSystem that refuses dotfiles and directory
// listings, which a public asset directory has no business exposing.
type dirFS struct {
	fs http.FileSystem
}

func (d dirFS) Open(name string) (http.File, error) {
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return nil, os.ErrNotExist
		}
	}

	f, err := d.fs.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		// Serve an index.html if present, otherwise 404 the directory.
		index := filepath.ToSlash(filepath.Join(name, "index.html"))
		idx, err := d.fs.Open(index)
		if err != nil {
			f.Close()
			return nil, os.ErrNotExist
		}
		idx.Close()
	}
	return f, nil
}

// Handler serves files from dir, mounted under prefix. The prefix is
// stripped before lookup, so Handler("/public", "./public") maps
// /public/app.css to ./public/app.css.
func Handler(prefix, dir string) http.Handler {
	server := http.FileServer(dirFS{http.Dir(dir)})
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return server
	}
	return http.StripPrefix(prefix, server)
}
