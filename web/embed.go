// Package web embeds the built game client (dist/) and serves it as a
// single-page application.
//
// During development run the Vite dev server instead; the embedded dist/
// then only carries a placeholder page.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// reserved prefixes never fall back to index.html, so a mistyped API call
// gets a 404 instead of the client shell.
var reserved = []string{"api/", "ws/"}

// SPAHandler returns an http.Handler that serves the embedded client.
func SPAHandler() http.Handler {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return newSPAHandler(subFS)
}

func newSPAHandler(root fs.FS) http.Handler {
	fileServer := http.FileServerFS(root)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		for _, prefix := range reserved {
			if strings.HasPrefix(name+"/", prefix) {
				http.NotFound(w, r)
				return
			}
		}

		if name != "" && name != "." {
			if f, err := root.Open(name); err == nil {
				if closeErr := f.Close(); closeErr != nil {
					slog.Debug("web: failed to close embedded file", "path", name, "error", closeErr)
				}
				if strings.HasPrefix(name, "assets/") {
					w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
				}
				fileServer.ServeHTTP(w, r)
				return
			}
		}

		// Client-side routes (/play/easy, /leaderboard) get the shell.
		w.Header().Set("Cache-Control", "no-cache")
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/"
		fileServer.ServeHTTP(w, r2)
	})
}
