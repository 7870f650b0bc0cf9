package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tunebox/internal/cache"
	"tunebox/internal/config"
	"tunebox/internal/library"
	"tunebox/internal/media"
	"tunebox/internal/ngrok"
	"tunebox/internal/player"
	"tunebox/internal/store"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// shutdownTimeout bounds graceful shutdown
const shutdownTimeout = 10 * time.Second

// MusicServer represents the music library HTTP server
type MusicServer struct {
	config       *config.Config
	store        store.Store
	delivery     *media.Delivery
	library      *library.Service
	player       *player.Controller
	remote       *player.RemoteMedia
	covers       *cache.CoverCache
	logger       *logrus.Logger
	router       *mux.Router
	watcher      *fsnotify.Watcher
	ngrokService *ngrok.Service
}

// NewMusicServer creates a new music server instance
func NewMusicServer(cfg *config.Config, st store.Store, delivery *media.Delivery, lib *library.Service, logger *logrus.Logger) *MusicServer {
	remote := player.NewRemoteMedia()

	ms := &MusicServer{
		config:   cfg,
		store:    st,
		delivery: delivery,
		library:  lib,
		player:   player.NewController(remote, player.AudioSource(cfg.Server.APIPrefix), logger),
		remote:   remote,
		covers:   cache.NewCoverCache(),
		logger:   logger,
	}
	ms.setupRoutes()
	return ms
}

// Handler returns the router wrapped in the middleware chain
func (ms *MusicServer) Handler() http.Handler {
	var h http.Handler = ms.router
	h = ms.corsMiddleware(h)
	h = ms.requestLoggingMiddleware(h)
	h = ms.requestIDMiddleware(h)
	return ms.panicRecoveryMiddleware(h)
}

// Player returns the playback controller
func (ms *MusicServer) Player() *player.Controller {
	return ms.player
}

func (ms *MusicServer) setupRoutes() {
	router := mux.NewRouter()
	router.HandleFunc("/health", ms.handleHealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix(ms.config.Server.APIPrefix).Subrouter()
	api.HandleFunc("/config", ms.handleGetConfig).Methods(http.MethodGet)

	// Tracks
	api.HandleFunc("/tracks", ms.handleGetTracks).Methods(http.MethodGet)
	api.HandleFunc("/tracks", ms.handleUploadTrack).Methods(http.MethodPost)
	api.HandleFunc("/tracks/{id}", ms.handleGetTrack).Methods(http.MethodGet)
	api.HandleFunc("/tracks/{id}", ms.handleDeleteTrack).Methods(http.MethodDelete)

	// Media
	api.HandleFunc("/audio/{filename}", ms.handleStreamAudio).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/covers/{name}", ms.handleGetCover).Methods(http.MethodGet)

	// Playlists
	api.HandleFunc("/playlists", ms.handleGetPlaylists).Methods(http.MethodGet)
	api.HandleFunc("/playlists", ms.handleCreatePlaylist).Methods(http.MethodPost)
	api.HandleFunc("/playlists/{id}", ms.handleGetPlaylist).Methods(http.MethodGet)
	api.HandleFunc("/playlists/{id}", ms.handleRenamePlaylist).Methods(http.MethodPut)
	api.HandleFunc("/playlists/{id}", ms.handleDeletePlaylist).Methods(http.MethodDelete)
	api.HandleFunc("/playlists/{id}/tracks", ms.handleAddTrackToPlaylist).Methods(http.MethodPost)
	api.HandleFunc("/playlists/{playlistId}/tracks/{trackId}", ms.handleRemoveTrackFromPlaylist).Methods(http.MethodDelete)

	// Player
	api.HandleFunc("/player", ms.handleGetPlayerState).Methods(http.MethodGet)
	api.HandleFunc("/player/play", ms.handlePlayerPlay).Methods(http.MethodPost)
	api.HandleFunc("/player/pause", ms.handlePlayerPause).Methods(http.MethodPost)
	api.HandleFunc("/player/resume", ms.handlePlayerResume).Methods(http.MethodPost)
	api.HandleFunc("/player/next", ms.handlePlayerNext).Methods(http.MethodPost)
	api.HandleFunc("/player/previous", ms.handlePlayerPrevious).Methods(http.MethodPost)
	api.HandleFunc("/player/seek", ms.handlePlayerSeek).Methods(http.MethodPost)
	api.HandleFunc("/player/volume", ms.handlePlayerVolume).Methods(http.MethodPost)
	api.HandleFunc("/player/queue", ms.handlePlayerEnqueue).Methods(http.MethodPost)
	api.HandleFunc("/player/queue", ms.handlePlayerClearQueue).Methods(http.MethodDelete)
	api.HandleFunc("/player/events", ms.handlePlayerEvent).Methods(http.MethodPost)
	api.HandleFunc("/player/ws", ms.handlePlayerWebSocket).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ms.respondWithError(w, r, http.StatusNotFound, "Not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ms.respondWithError(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	ms.router = router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (ms *MusicServer) Run(ctx context.Context) error {
	if ms.config.Library.WatchUploads {
		if err := ms.startFileWatcher(); err != nil {
			ms.logger.WithError(err).Warn("Could not start upload watcher")
		}
	}
	defer ms.stopFileWatcher()
	defer ms.covers.Stop()

	server := &http.Server{
		Addr:         ms.config.GetAddress(),
		Handler:      ms.Handler(),
		ReadTimeout:  time.Duration(ms.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(ms.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(ms.config.Server.IdleTimeout) * time.Second,
	}

	trackCount := 0
	if tracks, err := ms.store.ListTracks(); err == nil {
		trackCount = len(tracks)
	}
	ms.logger.WithFields(logrus.Fields{
		"address":     ms.config.GetAddress(),
		"api_prefix":  ms.config.Server.APIPrefix,
		"storage":     ms.config.Storage.Backend,
		"database":    ms.config.Database.Driver,
		"track_count": trackCount,
	}).Info("tunebox server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if err := ms.startTunnel(ctx); err != nil {
		ms.logger.WithError(err).Warn("Could not start ngrok tunnel")
	}
	defer ms.ngrokService.Stop()
	go ms.watchTunnel(ctx, ms.ngrokService.Done())

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	ms.logger.Info("Shutting down music server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	ms.logger.Info("Music server shutdown complete")
	return nil
}

// watchTunnel logs when the public tunnel closes before shutdown. The local
// listener keeps serving.
func (ms *MusicServer) watchTunnel(ctx context.Context, done <-chan struct{}) {
	if done == nil {
		return
	}
	select {
	case <-done:
		ms.logger.WithField("public_url", ms.ngrokService.PublicURL()).Warn("Ngrok tunnel closed, server is only reachable locally")
	case <-ctx.Done():
	}
}

// startTunnel exposes the server through ngrok when configured
func (ms *MusicServer) startTunnel(ctx context.Context) error {
	svc, err := ngrok.NewService(ms.config.Ngrok, ms.logger)
	if err != nil {
		return err
	}
	if svc == nil {
		return nil
	}
	localAddress := fmt.Sprintf("http://localhost:%s", ms.config.Server.Port)
	if err := svc.StartTunnel(ctx, localAddress); err != nil {
		return err
	}
	ms.ngrokService = svc
	return nil
}
