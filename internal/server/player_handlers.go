package server

import (
	"errors"
	"net/http"

	"tunebox/internal/player"
	"tunebox/pkg/models"
)

// Media element events reported by the browser renderer
const (
	eventLoadedMetadata = "loadedmetadata"
	eventTimeUpdate     = "timeupdate"
	eventEnded          = "ended"
	eventError          = "error"
)

type seekRequest struct {
	Position *float64 `json:"position"`
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
}

// playerEvent is what a renderer reports about its media element. Src is the
// source the element had loaded; events for an older source are dropped.
type playerEvent struct {
	Type     string  `json:"type"`
	Src      string  `json:"src,omitempty"`
	Position float64 `json:"position,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// handleGetPlayerState returns the current playback snapshot
func (ms *MusicServer) handleGetPlayerState(w http.ResponseWriter, r *http.Request) {
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

// handlePlayerPlay starts a track by id, or resumes it if it is current
func (ms *MusicServer) handlePlayerPlay(w http.ResponseWriter, r *http.Request) {
	track, ok := ms.decodeTrackRequest(w, r)
	if !ok {
		return
	}

	if err := ms.player.Play(track); err != nil {
		ms.respondWithError(w, r, http.StatusBadGateway, "Playback could not be started", err)
		return
	}
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

func (ms *MusicServer) handlePlayerPause(w http.ResponseWriter, r *http.Request) {
	ms.player.Pause()
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

func (ms *MusicServer) handlePlayerResume(w http.ResponseWriter, r *http.Request) {
	if err := ms.player.Resume(); err != nil {
		if errors.Is(err, player.ErrNoCurrentTrack) {
			ms.respondWithError(w, r, http.StatusConflict, "Nothing is loaded", err)
			return
		}
		ms.respondWithError(w, r, http.StatusBadGateway, "Playback could not be resumed", err)
		return
	}
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

func (ms *MusicServer) handlePlayerNext(w http.ResponseWriter, r *http.Request) {
	ms.player.Next()
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

func (ms *MusicServer) handlePlayerPrevious(w http.ResponseWriter, r *http.Request) {
	ms.player.Previous()
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

func (ms *MusicServer) handlePlayerSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if verr := decodeJSON(w, r, &req); verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}
	if req.Position == nil {
		ms.respondWithValidationError(w, r, ValidationError{
			Field:   "position",
			Message: "Position is required",
			Code:    "MISSING_POSITION",
		})
		return
	}

	ms.player.Seek(*req.Position)
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

func (ms *MusicServer) handlePlayerVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if verr := decodeJSON(w, r, &req); verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}
	if req.Volume == nil {
		ms.respondWithValidationError(w, r, ValidationError{
			Field:   "volume",
			Message: "Volume is required",
			Code:    "MISSING_VOLUME",
		})
		return
	}

	if err := ms.player.SetVolume(*req.Volume); err != nil {
		ms.respondWithValidationError(w, r, ValidationError{
			Field:   "volume",
			Message: "Volume must be between 0 and 1",
			Code:    "INVALID_VOLUME",
		})
		return
	}
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

func (ms *MusicServer) handlePlayerEnqueue(w http.ResponseWriter, r *http.Request) {
	track, ok := ms.decodeTrackRequest(w, r)
	if !ok {
		return
	}

	ms.player.Enqueue(track)
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

func (ms *MusicServer) handlePlayerClearQueue(w http.ResponseWriter, r *http.Request) {
	ms.player.ClearQueue()
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

// handlePlayerEvent feeds media element events from a renderer into the controller
func (ms *MusicServer) handlePlayerEvent(w http.ResponseWriter, r *http.Request) {
	var event playerEvent
	if verr := decodeJSON(w, r, &event); verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	if verr := ms.applyPlayerEvent(event); verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}
	ms.respondJSON(w, http.StatusOK, ms.player.Snapshot())
}

func (ms *MusicServer) applyPlayerEvent(event playerEvent) *ValidationError {
	switch event.Type {
	case eventLoadedMetadata:
		ms.player.MediaReady(event.Src, event.Duration)
	case eventTimeUpdate:
		ms.player.TimeUpdate(event.Src, event.Position)
	case eventEnded:
		ms.player.Ended(event.Src)
	case eventError:
		message := event.Message
		if message == "" {
			message = "media error"
		}
		ms.player.MediaError(event.Src, message)
	default:
		return &ValidationError{
			Field:   "type",
			Message: "Unknown player event type",
			Code:    "INVALID_EVENT_TYPE",
		}
	}
	return nil
}

// decodeTrackRequest reads {trackId} and loads the track. It writes the error
// response itself and reports false on failure.
func (ms *MusicServer) decodeTrackRequest(w http.ResponseWriter, r *http.Request) (track models.Track, ok bool) {
	var req playlistTrackRequest
	if verr := decodeJSON(w, r, &req); verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return track, false
	}
	id, verr := parsePositive(req.TrackID, "trackId")
	if verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return track, false
	}

	found, err := ms.store.GetTrack(id)
	if err != nil {
		ms.respondWithLookupError(w, r, err, "Track not found")
		return track, false
	}
	return found, true
}

func parsePositive(id int, field string) (int, *ValidationError) {
	if id <= 0 {
		return 0, &ValidationError{
			Field:   field,
			Message: "Track ID must be positive",
			Code:    "INVALID_TRACK_ID_VALUE",
		}
	}
	return id, nil
}
