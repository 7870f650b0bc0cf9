package server

import "net/http"

// ConfigResponse represents the public configuration sent to the frontend
type ConfigResponse struct {
	APIPrefix string               `json:"apiPrefix"`
	Upload    UploadConfigResponse `json:"upload"`
	Player    PlayerConfigResponse `json:"player"`
	PublicURL string               `json:"publicUrl,omitempty"`
}

// UploadConfigResponse tells clients what the upload endpoint accepts
type UploadConfigResponse struct {
	MaxUploadSizeMB  int64    `json:"maxUploadSizeMb"`
	AllowedMimeTypes []string `json:"allowedMimeTypes"`
	Storage          string   `json:"storage"`
}

// PlayerConfigResponse describes the remote player endpoints
type PlayerConfigResponse struct {
	WebSocketPath string `json:"webSocketPath"`
}

// handleGetConfig returns public configuration settings for the frontend
func (ms *MusicServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	prefix := ms.config.Server.APIPrefix
	ms.respondJSON(w, http.StatusOK, ConfigResponse{
		APIPrefix: prefix,
		Upload: UploadConfigResponse{
			MaxUploadSizeMB:  ms.config.Storage.MaxUploadMB,
			AllowedMimeTypes: ms.config.Library.AllowedMimeTypes,
			Storage:          ms.config.Storage.Backend,
		},
		Player: PlayerConfigResponse{
			WebSocketPath: prefix + "/player/ws",
		},
		PublicURL: ms.ngrokService.PublicURL(),
	})
}
