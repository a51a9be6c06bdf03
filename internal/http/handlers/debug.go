package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

type generateImageRequest struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
}

type generateImageResponse struct {
	URL      string `json:"url,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     string `json:"data_base64,omitempty"`
}

// DebugGenerateImage calls the image generator directly.
func (a *App) DebugGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req generateImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}
	if req.Size == "" && a.Config != nil {
		req.Size = a.Config.ImageSize
	}
	img, err := a.Images.GenerateImage(r.Context(), req.Prompt, req.Size)
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: debug image generation failed")
		a.error(w, http.StatusBadGateway, "upstream_failed", err.Error())
		return
	}
	resp := generateImageResponse{URL: img.URL, MIMEType: img.MIMEType}
	if img.URL == "" && len(img.Data) > 0 {
		resp.Data = base64.StdEncoding.EncodeToString(img.Data)
	}
	a.json(w, http.StatusOK, resp)
}
