package server

import (
	"net/http"
	"os"
	"path/filepath"
)

// pageHandler serves the single-page UI shell for the app routes so deep
// links like /queue survive a refresh.
func pageHandler(publicDir string) http.HandlerFunc {
	index := filepath.Join(publicDir, "index.html")
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(index); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, index)
	}
}
