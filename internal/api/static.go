package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/irregularchat/speech-memorization/pkg/logger"
)

// StaticHandler serves the practice frontend from disk without caching,
// so UI edits show up on refresh during development.
type StaticHandler struct {
	root   string
	logger *logger.Logger
}

// NewStaticHandler creates a handler rooted at dir
func NewStaticHandler(dir string, log *logger.Logger) *StaticHandler {
	return &StaticHandler{
		root:   dir,
		logger: log.Named("static"),
	}
}

// ServeHTTP resolves the request path inside the root directory and
// serves the file, falling back to index.html for directories.
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(filepath.Clean(r.URL.Path), "/")
	if rel == "" || rel == "." {
		rel = "index.html"
	}

	absRoot, err := filepath.Abs(h.root)
	if err != nil {
		h.logger.Error("Failed to resolve static root", logger.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	path := filepath.Join(absRoot, rel)
	if !strings.HasPrefix(path, absRoot+string(filepath.Separator)) && path != absRoot {
		h.logger.Warn("Rejected path outside static root",
			logger.String("requested_path", r.URL.Path))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		path = filepath.Join(path, "index.html")
		info, err = os.Stat(path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("Failed to stat static file", logger.Error(err), logger.String("path", path))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if info.IsDir() {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	http.ServeFile(w, r, path)
}
