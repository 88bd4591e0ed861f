package api

import (
	"encoding/json"
	"net/http"

	"github.com/saveenergy/playertester/internal/bridge"
	"github.com/saveenergy/playertester/internal/logging"
)

// Handler serves the harness's own status endpoints.
type Handler struct {
	hub     *bridge.Hub
	version string
}

func NewHandler(hub *bridge.Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) SetVersion(version string) {
	if version == "" {
		version = "dev"
	}
	h.version = version
}

type VersionResponse struct {
	Version string `json:"version"`
}

type StatusResponse struct {
	PageConnected bool   `json:"page_connected"`
	Agent         string `json:"agent,omitempty"`
}

func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	version := h.version
	if version == "" {
		version = "dev"
	}
	respondJSON(w, VersionResponse{Version: version}, http.StatusOK)
}

// GetStatus reports whether a player page is attached to the bridge.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{}
	if h.hub != nil {
		if page := h.hub.Page(); page != nil {
			resp.PageConnected = true
			resp.Agent = page.Agent()
		}
	}
	respondJSON(w, resp, http.StatusOK)
}

func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Warn("JSON response encode failed",
			logging.F("error", err))
	}
}
