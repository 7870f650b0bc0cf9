package models

import "time"

// Track represents an uploaded audio item in the library
type Track struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Album       *string   `json:"album"`
	Duration    int       `json:"duration"` // in seconds, may be a placeholder
	Filename    string    `json:"filename"`
	CoverImage  *string   `json:"coverImage"`
	ContentType string    `json:"contentType,omitempty"`
	FileSize    int64     `json:"fileSize,omitempty"`
	Checksum    string    `json:"checksum,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// AlbumName returns the album or an empty string when unset
func (t Track) AlbumName() string {
	if t.Album == nil {
		return ""
	}
	return *t.Album
}

// TrackInput carries the caller-supplied fields of a new track. ID and
// UploadedAt are always assigned by the store.
type TrackInput struct {
	Title       string
	Artist      string
	Album       *string
	Duration    int
	Filename    string
	CoverImage  *string
	ContentType string
	FileSize    int64
	Checksum    string
}

// Playlist represents a named collection of track associations
type Playlist struct {
	ID         int       `json:"id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"createdAt"`
	TrackCount int       `json:"trackCount"`
}

// PlaylistTrack represents one association row between a playlist and a track.
// Duplicate (playlistId, trackId) pairs are allowed.
type PlaylistTrack struct {
	ID         int       `json:"id"`
	PlaylistID int       `json:"playlistId"`
	TrackID    int       `json:"trackId"`
	AddedAt    time.Time `json:"addedAt"`
}

// PlaylistDetail is a playlist together with its tracks in association order
type PlaylistDetail struct {
	Playlist
	Tracks []Track `json:"tracks"`
}

// StringPtr returns nil for empty strings, a pointer otherwise
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
