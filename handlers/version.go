package handlers

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// Version is set at build time with -ldflags "-X tmdbhelper/handlers.Version=..."
var Version = "dev"

type VersionHandler struct{}

type VersionResponse struct {
	Version string `json:"version"`
	Go      string `json:"go"`
}

func NewVersionHandler() *VersionHandler {
	return &VersionHandler{}
}

func (h *VersionHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(VersionResponse{
		Version: Version,
		Go:      runtime.Version(),
	})
}
