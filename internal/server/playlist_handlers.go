package server

import (
	"net/http"

	"tunebox/internal/store"
	"tunebox/pkg/models"

	"github.com/sirupsen/logrus"
)

// playlistRequest is the body of playlist create and rename requests
type playlistRequest struct {
	Name string `json:"name"`
}

// playlistTrackRequest is the body of add-to-playlist and enqueue requests
type playlistTrackRequest struct {
	TrackID int `json:"trackId"`
}

// handleGetPlaylists returns all playlists with their track counts
func (ms *MusicServer) handleGetPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := ms.store.ListPlaylists()
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving playlists", err)
		return
	}

	ms.respondJSON(w, http.StatusOK, playlists)
}

// handleGetPlaylist returns one playlist with its tracks in insertion order
func (ms *MusicServer) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, verr := pathID(r, "id", "playlist_id")
	if verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	playlist, err := ms.store.GetPlaylist(id)
	if err != nil {
		ms.respondWithLookupError(w, r, err, "Playlist not found")
		return
	}

	tracks, err := ms.store.ListTracksForPlaylist(id)
	if err != nil {
		ms.respondWithLookupError(w, r, err, "Playlist not found")
		return
	}

	ms.respondJSON(w, http.StatusOK, models.PlaylistDetail{
		Playlist: playlist,
		Tracks:   tracks,
	})
}

// handleCreatePlaylist creates a new empty playlist
func (ms *MusicServer) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if verr := decodeJSON(w, r, &req); verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	name := sanitizeInput(req.Name)
	if verr := validatePlaylistName(name); verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	playlist, err := ms.store.CreatePlaylist(name)
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Failed to create playlist", err)
		return
	}

	ms.logger.WithFields(logrus.Fields{
		"playlist_id": playlist.ID,
		"name":        playlist.Name,
	}).Info("Playlist created")

	ms.respondJSON(w, http.StatusCreated, playlist)
}

// handleRenamePlaylist changes a playlist's name
func (ms *MusicServer) handleRenamePlaylist(w http.ResponseWriter, r *http.Request) {
	id, verr := pathID(r, "id", "playlist_id")
	if verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	var req playlistRequest
	if verr := decodeJSON(w, r, &req); verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	name := sanitizeInput(req.Name)
	if verr := validatePlaylistName(name); verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	playlist, err := ms.store.RenamePlaylist(id, name)
	if err != nil {
		ms.respondWithLookupError(w, r, err, "Playlist not found")
		return
	}

	ms.respondJSON(w, http.StatusOK, playlist)
}

// handleDeletePlaylist removes a playlist and its track associations.
// Default playlists may be deleted like any other.
func (ms *MusicServer) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, verr := pathID(r, "id", "playlist_id")
	if verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	playlist, err := ms.store.GetPlaylist(id)
	if err != nil {
		ms.respondWithLookupError(w, r, err, "Playlist not found")
		return
	}

	if err := ms.store.DeletePlaylist(id); err != nil {
		ms.respondWithLookupError(w, r, err, "Playlist not found")
		return
	}

	entry := ms.logger.WithFields(logrus.Fields{
		"playlist_id": id,
		"name":        playlist.Name,
	})
	if playlist.Name == store.FavoritesPlaylist || playlist.Name == store.DownloadedPlaylist {
		entry.Warn("Default playlist deleted")
	} else {
		entry.Info("Playlist deleted")
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleAddTrackToPlaylist appends a track to a playlist. Adding the same
// track twice creates two entries.
func (ms *MusicServer) handleAddTrackToPlaylist(w http.ResponseWriter, r *http.Request) {
	playlistID, verr := pathID(r, "id", "playlist_id")
	if verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	var req playlistTrackRequest
	if verr := decodeJSON(w, r, &req); verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}
	trackID, verr := parsePositive(req.TrackID, "trackId")
	if verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	entry, err := ms.store.AddTrackToPlaylist(playlistID, trackID)
	if err != nil {
		ms.respondWithLookupError(w, r, err, "Playlist or track not found")
		return
	}

	ms.respondJSON(w, http.StatusCreated, entry)
}

// handleRemoveTrackFromPlaylist removes the oldest entry of a track from a playlist
func (ms *MusicServer) handleRemoveTrackFromPlaylist(w http.ResponseWriter, r *http.Request) {
	playlistID, verr := pathID(r, "playlistId", "playlist_id")
	if verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}
	trackID, verr := pathID(r, "trackId", "track_id")
	if verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	if err := ms.store.RemoveTrackFromPlaylist(playlistID, trackID); err != nil {
		ms.respondWithLookupError(w, r, err, "Track is not in playlist")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
