package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"tunebox/internal/library"
	"tunebox/internal/store"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// ValidationError represents a validation error with details
type ValidationError = library.ValidationError

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// maxJSONBody bounds small JSON request bodies
const maxJSONBody = 64 * 1024

// respondJSON writes v as JSON with the given status code
func (ms *MusicServer) respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ms.logger.WithError(err).Debug("Failed to encode response")
	}
}

// respondWithValidationError sends a structured validation error response
func (ms *MusicServer) respondWithValidationError(w http.ResponseWriter, r *http.Request, errs ...ValidationError) {
	ms.logger.WithFields(logrus.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"errors":     errs,
		"request_id": requestIDFrom(r.Context()),
	}).Warn("Validation failed")

	ms.respondJSON(w, http.StatusBadRequest, ValidationResult{
		Valid:  false,
		Errors: errs,
	})
}

// respondWithError sends a structured error response
func (ms *MusicServer) respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	logEntry := ms.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": statusCode,
		"message":     message,
		"request_id":  requestIDFrom(r.Context()),
	})

	if err != nil {
		logEntry = logEntry.WithError(err)
	}

	if statusCode >= 500 {
		logEntry.Error("Server error")
	} else {
		logEntry.Warn("Client error")
	}

	ms.respondJSON(w, statusCode, map[string]any{
		"error":   message,
		"code":    statusCode,
		"success": false,
	})
}

// respondWithLookupError maps store.ErrNotFound to 404 and anything else to 500
func (ms *MusicServer) respondWithLookupError(w http.ResponseWriter, r *http.Request, err error, notFoundMessage string) {
	if errors.Is(err, store.ErrNotFound) {
		ms.respondWithError(w, r, http.StatusNotFound, notFoundMessage, err)
		return
	}
	ms.respondWithError(w, r, http.StatusInternalServerError, "Internal server error", err)
}

// pathID parses a positive integer route variable
func pathID(r *http.Request, name, field string) (int, *ValidationError) {
	return parseID(mux.Vars(r)[name], field)
}

// parseID validates and parses a positive integer identifier
func parseID(raw, field string) (int, *ValidationError) {
	code := strings.ToUpper(field)
	label := strings.ReplaceAll(field, "_", " ")
	label = strings.ToUpper(label[:1]) + label[1:]

	if raw == "" {
		return 0, &ValidationError{
			Field:   field,
			Message: label + " is required",
			Code:    "MISSING_" + code,
		}
	}

	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ValidationError{
			Field:   field,
			Message: label + " must be a valid integer",
			Code:    "INVALID_" + code + "_FORMAT",
		}
	}

	if id <= 0 {
		return 0, &ValidationError{
			Field:   field,
			Message: label + " must be positive",
			Code:    "INVALID_" + code + "_VALUE",
		}
	}

	return id, nil
}

// validateSearchQuery validates search query parameters
func validateSearchQuery(query string) *ValidationError {
	if len(query) > 1000 {
		return &ValidationError{
			Field:   "search",
			Message: "Search query too long (max 1000 characters)",
			Code:    "SEARCH_QUERY_TOO_LONG",
		}
	}

	if strings.Contains(query, "\x00") {
		return &ValidationError{
			Field:   "search",
			Message: "Search query contains invalid characters",
			Code:    "INVALID_SEARCH_CHARACTERS",
		}
	}

	return nil
}

// validatePlaylistName validates playlist name
func validatePlaylistName(name string) *ValidationError {
	if name == "" {
		return &ValidationError{
			Field:   "name",
			Message: "Playlist name is required",
			Code:    "MISSING_PLAYLIST_NAME",
		}
	}

	if len(name) > 255 {
		return &ValidationError{
			Field:   "name",
			Message: "Playlist name too long (max 255 characters)",
			Code:    "PLAYLIST_NAME_TOO_LONG",
		}
	}

	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return &ValidationError{
			Field:   "name",
			Message: "Playlist name contains invalid characters",
			Code:    "INVALID_PLAYLIST_NAME_CHARACTERS",
		}
	}

	return nil
}

// decodeJSON reads a small JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) *ValidationError {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &ValidationError{Field: "body", Message: "Request body is required", Code: "MISSING_BODY"}
		}
		return &ValidationError{Field: "body", Message: "Invalid JSON", Code: "INVALID_JSON"}
	}
	return nil
}

// sanitizeInput removes null bytes and surrounding whitespace
func sanitizeInput(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
