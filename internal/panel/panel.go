package panel

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
)

//go:embed web/*
var content embed.FS

// Handler returns an http.Handler that serves the control page.
//
// When dir is non-empty and the directory exists, assets are served from the
// filesystem (edit the page without a rebuild). Otherwise the embedded copy
// is used. Requests for missing files are passed to notFound; a nil
// notFound falls back to http.NotFoundHandler.
// Panics if the embedded web assets cannot be loaded (build error).
func Handler(dir string, notFound http.Handler) http.Handler {
	if notFound == nil {
		notFound = http.NotFoundHandler()
	}

	var fileSystem http.FileSystem
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			fileSystem = http.Dir(dir)
		}
	}

	if fileSystem == nil {
		webFS, err := fs.Sub(content, "web")
		if err != nil {
			panic(fmt.Sprintf("panel: failed to load embedded web assets: %v", err))
		}
		fileSystem = http.FS(webFS)
	}

	fileServer := http.FileServer(fileSystem)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			notFound.ServeHTTP(w, r)
			return
		}

		upath := path.Clean("/" + r.URL.Path)
		if upath == "/" {
			upath = "/index.html"
		}

		f, err := fileSystem.Open(upath)
		if err != nil {
			notFound.ServeHTTP(w, r)
			return
		}
		info, err := f.Stat()
		f.Close()
		if err != nil || info.IsDir() {
			notFound.ServeHTTP(w, r)
			return
		}

		// The page polls live state; never serve a stale copy.
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")
		fileServer.ServeHTTP(w, r)
	})
}
