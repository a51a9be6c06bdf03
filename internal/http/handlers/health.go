package handlers

import (
	"net/http"
)

type healthResponse struct {
	Status          string `json:"status"`
	ArtifactBackend string `json:"artifact_backend,omitempty"`
	WorklistBackend string `json:"worklist_backend,omitempty"`
	TextProvider    string `json:"text_provider,omitempty"`
	ImageProvider   string `json:"image_provider,omitempty"`
}

// Health reports liveness plus the configured backends. Secrets are never
// included.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if cfg := a.Config; cfg != nil {
		resp.ArtifactBackend = cfg.ArtifactBackend
		resp.WorklistBackend = cfg.WorklistBackend
		resp.TextProvider = cfg.TextProvider
		resp.ImageProvider = cfg.ImageProvider
	}
	a.json(w, http.StatusOK, resp)
}
