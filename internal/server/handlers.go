package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"tunebox/internal/cache"
	"tunebox/internal/library"
	"tunebox/internal/media"
	"tunebox/internal/metadata"
	"tunebox/pkg/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	// Headroom for multipart boundaries and form fields on top of the file limit
	multipartOverhead = 1 << 20
	// Form parts held in memory before spilling to temp files
	multipartMemory = 8 << 20
	// Largest cover image served
	maxCoverBytes = 10 << 20
)

// handleGetTracks returns all tracks, newest first, optionally filtered by
// ?search=. The query is matched as given, whitespace included.
func (ms *MusicServer) handleGetTracks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("search")
	if verr := validateSearchQuery(query); verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	tracks, err := ms.store.SearchTracks(query)
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving tracks", err)
		return
	}

	ms.respondJSON(w, http.StatusOK, tracks)
}

// handleGetTrack returns one track by id
func (ms *MusicServer) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	id, verr := pathID(r, "id", "track_id")
	if verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	track, err := ms.store.GetTrack(id)
	if err != nil {
		ms.respondWithLookupError(w, r, err, "Track not found")
		return
	}

	ms.respondJSON(w, http.StatusOK, track)
}

// handleUploadTrack accepts a multipart upload with a "file" part and optional
// title, artist and album fields.
func (ms *MusicServer) handleUploadTrack(w http.ResponseWriter, r *http.Request) {
	maxBody := ms.config.MaxUploadBytes() + multipartOverhead
	tooLarge := ValidationError{
		Field:   "file",
		Message: "File exceeds the " + strconv.FormatInt(ms.config.Storage.MaxUploadMB, 10) + " MB upload limit",
		Code:    library.CodeFileTooLarge,
	}
	if r.ContentLength > maxBody {
		ms.respondWithValidationError(w, r, tooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			ms.respondWithValidationError(w, r, tooLarge)
			return
		}
		ms.respondWithValidationError(w, r, ValidationError{
			Field:   "file",
			Message: "Invalid multipart form",
			Code:    "INVALID_FORM",
		})
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := library.UploadRequest{
		Size:   -1,
		Title:  sanitizeInput(r.FormValue("title")),
		Artist: sanitizeInput(r.FormValue("artist")),
		Album:  sanitizeInput(r.FormValue("album")),
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// library reports the missing file
	case err != nil:
		ms.respondWithError(w, r, http.StatusBadRequest, "Could not read uploaded file", err)
		return
	default:
		defer file.Close()
		req.File = file
		req.OriginalName = header.Filename
		req.Size = header.Size
		req.ContentType = header.Header.Get("Content-Type")
	}

	track, err := ms.library.Upload(r.Context(), req)
	if err != nil {
		var verr *library.ValidationError
		if errors.As(err, &verr) {
			ms.respondWithValidationError(w, r, *verr)
			return
		}
		ms.respondWithError(w, r, http.StatusInternalServerError, "Failed to store upload", err)
		return
	}

	ms.respondJSON(w, http.StatusCreated, track)
}

// handleDeleteTrack removes a track, its bytes and its playlist entries
func (ms *MusicServer) handleDeleteTrack(w http.ResponseWriter, r *http.Request) {
	id, verr := pathID(r, "id", "track_id")
	if verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	track, err := ms.library.DeleteTrack(r.Context(), id)
	if err != nil {
		ms.respondWithLookupError(w, r, err, "Track not found")
		return
	}
	ms.evictCover(track)

	w.WriteHeader(http.StatusNoContent)
}

// handleStreamAudio streams a track's bytes by stored filename with Range support
func (ms *MusicServer) handleStreamAudio(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	track, err := ms.store.GetTrackByFilename(filename)
	if err != nil {
		ms.respondWithLookupError(w, r, err, "Track not found")
		return
	}

	obj, err := ms.delivery.Resolve(r.Context(), track.Filename)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			ms.respondWithError(w, r, http.StatusNotFound, "Audio file not found", err)
			return
		}
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error opening audio file", err)
		return
	}
	defer obj.Close()

	contentType := track.ContentType
	if contentType == "" {
		contentType = metadata.ContentTypeForFile(track.Filename)
	}

	ms.logger.WithFields(logrus.Fields{
		"track_id": track.ID,
		"filename": track.Filename,
		"range":    r.Header.Get("Range"),
	}).Debug("Streaming audio")

	ms.delivery.Serve(w, r, obj, contentType, track.Checksum)
}

// handleGetCover serves an extracted cover image, cached in memory
func (ms *MusicServer) handleGetCover(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	cover, ok := ms.covers.GetCover(name)
	if !ok {
		loaded, err := ms.loadCover(r, name)
		if err != nil {
			if errors.Is(err, media.ErrNotFound) {
				ms.respondWithError(w, r, http.StatusNotFound, "Cover image not found", err)
				return
			}
			ms.respondWithError(w, r, http.StatusInternalServerError, "Error reading cover image", err)
			return
		}
		ms.covers.SetCover(name, loaded)
		cover = loaded
	}

	w.Header().Set("Content-Type", cover.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(cover.Data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(cover.Data); err != nil {
		ms.logger.WithError(err).Debug("Client went away while sending cover")
	}
}

// evictCover forgets the cached cover of a deleted track
func (ms *MusicServer) evictCover(track models.Track) {
	if track.CoverImage == nil {
		return
	}
	ms.covers.EvictCover(strings.TrimPrefix(*track.CoverImage, library.CoverDir+"/"))
}

func (ms *MusicServer) loadCover(r *http.Request, name string) (cache.Cover, error) {
	obj, err := ms.delivery.Resolve(r.Context(), library.CoverDir+"/"+name)
	if err != nil {
		return cache.Cover{}, err
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxCoverBytes))
	if err != nil {
		return cache.Cover{}, err
	}
	return cache.Cover{
		Data:        data,
		ContentType: mimetype.Detect(data).String(),
	}, nil
}
