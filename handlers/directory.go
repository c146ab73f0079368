package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"tmdbhelper/services/container"
)

// Directory renders one listing into a sink.
type Directory interface {
	Directory(ctx context.Context, params map[string]string, sink container.Sink) error
}

// DirectoryHandler serves listings as JSON.
type DirectoryHandler struct {
	directory Directory
}

func NewDirectoryHandler(directory Directory) *DirectoryHandler {
	return &DirectoryHandler{directory: directory}
}

// List builds the listing described by the query string.
// GET /directory?info=popular&tmdb_type=movie
func (h *DirectoryHandler) List(w http.ResponseWriter, r *http.Request) {
	params := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	sink := container.NewCollector()
	if err := h.directory.Directory(r.Context(), params, sink); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, container.ErrTraktUnavailable) {
			status = http.StatusServiceUnavailable
		}
		log.Printf("[directory] %s: %v", r.URL.RawQuery, err)
		jsonError(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sink)
}

// Helper for JSON error responses
func jsonError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
	})
}
