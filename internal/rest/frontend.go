package rest

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

type frontendHandler struct {
	dir        string
	index      string
	fileServer http.Handler
}

// NewFrontendHandler serves static files from dir. Unknown paths fall back to index so client side
// routing keeps working; unknown /api paths stay 404.
func NewFrontendHandler(dir string, index string) http.Handler {
	return &frontendHandler{
		dir:        dir,
		index:      index,
		fileServer: http.FileServer(http.Dir(dir)),
	}
}

func (h *frontendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.NotFound(w, r)
		return
	}

	requested := filepath.Join(h.dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
	info, err := os.Stat(requested)
	if err == nil && !info.IsDir() {
		h.fileServer.ServeHTTP(w, r)
		return
	}
	if err != nil && !os.IsNotExist(err) {
		log.Errorf("failed to stat frontend file %s: %v", requested, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	log.Tracef("Serving %s for %s", h.index, r.URL.Path)
	http.ServeFile(w, r, filepath.Join(h.dir, h.index))
}
