package server

import (
	"context"
	"net/http"
	"time"
)

// healthProbeName is checked against storage; it never exists
const healthProbeName = ".health-probe"

// HealthStatus represents operational status for the /health endpoint.
type HealthStatus struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Database  string         `json:"database"`
	Storage   string         `json:"storage"`
	Tracks    int            `json:"trackCount"`
	Playlists int            `json:"playlistCount"`
	Renderers int            `json:"renderers"`
	PublicURL string         `json:"publicUrl,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// handleHealthCheck returns basic liveness + dependency checks.
func (ms *MusicServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Database:  "ok",
		Storage:   "ok",
		Renderers: ms.remote.Renderers(),
		PublicURL: ms.ngrokService.PublicURL(),
		Details:   make(map[string]any),
	}

	tracks, err := ms.store.ListTracks()
	if err != nil {
		health.Status = "unhealthy"
		health.Database = "error"
		health.Details["database_error"] = err.Error()
	} else {
		health.Tracks = len(tracks)
	}

	if playlists, err := ms.store.ListPlaylists(); err == nil {
		health.Playlists = len(playlists)
	}

	if err := ms.checkStorageHealth(r.Context()); err != nil {
		health.Status = "unhealthy"
		health.Storage = "error"
		health.Details["storage_error"] = err.Error()
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	ms.respondJSON(w, statusCode, health)
}

// checkStorageHealth verifies the storage backend answers lookups.
func (ms *MusicServer) checkStorageHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := ms.delivery.Backend().Exists(ctx, healthProbeName)
	return err
}
