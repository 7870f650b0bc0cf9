// Package store holds track and playlist records and the many-to-many
// association between them.
package store

import (
	"errors"
	"fmt"
	"strings"

	"tunebox/pkg/models"
)

// Names of the playlists every fresh store starts with. They are ordinary
// playlists: nothing prevents renaming or deleting them.
const (
	FavoritesPlaylist  = "Favorites"
	DownloadedPlaylist = "Downloaded"
)

// ErrNotFound is returned when a track, playlist or association does not exist
var ErrNotFound = errors.New("not found")

// Store is the persistence contract shared by the in-memory and SQLite
// implementations. Implementations are safe for concurrent use. Identifiers
// increase monotonically and are never reused.
type Store interface {
	CreateTrack(input models.TrackInput) (models.Track, error)
	GetTrack(id int) (models.Track, error)
	GetTrackByFilename(filename string) (models.Track, error)
	// ListTracks returns tracks most recently uploaded first.
	ListTracks() ([]models.Track, error)
	// SearchTracks matches case-insensitively on title, artist or album and
	// keeps ListTracks ordering. An empty query returns ListTracks.
	SearchTracks(query string) ([]models.Track, error)
	// DeleteTrack removes the track and every association referencing it.
	DeleteTrack(id int) error

	CreatePlaylist(name string) (models.Playlist, error)
	GetPlaylist(id int) (models.Playlist, error)
	ListPlaylists() ([]models.Playlist, error)
	RenamePlaylist(id int, name string) (models.Playlist, error)
	// DeletePlaylist removes the playlist and its associations.
	DeletePlaylist(id int) error

	AddTrackToPlaylist(playlistID, trackID int) (models.PlaylistTrack, error)
	// RemoveTrackFromPlaylist removes the oldest association for the pair.
	RemoveTrackFromPlaylist(playlistID, trackID int) error
	ListTracksForPlaylist(playlistID int) ([]models.Track, error)

	Close() error
}

// FindPlaylistByName returns the first playlist (lowest id) with the given name
func FindPlaylistByName(s Store, name string) (models.Playlist, error) {
	playlists, err := s.ListPlaylists()
	if err != nil {
		return models.Playlist{}, err
	}
	for _, p := range playlists {
		if p.Name == name {
			return p, nil
		}
	}
	return models.Playlist{}, fmt.Errorf("playlist %q: %w", name, ErrNotFound)
}

// seedDefaultPlaylists creates the default playlists on an empty store
func seedDefaultPlaylists(s Store) error {
	playlists, err := s.ListPlaylists()
	if err != nil {
		return err
	}
	if len(playlists) > 0 {
		return nil
	}
	for _, name := range []string{FavoritesPlaylist, DownloadedPlaylist} {
		if _, err := s.CreatePlaylist(name); err != nil {
			return fmt.Errorf("failed to create default playlist %q: %w", name, err)
		}
	}
	return nil
}

// matchesQuery reports whether a lowercased query is a substring of the
// track's title, artist or album.
func matchesQuery(t models.Track, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(t.Title), lowerQuery) ||
		strings.Contains(strings.ToLower(t.Artist), lowerQuery) ||
		strings.Contains(strings.ToLower(t.AlbumName()), lowerQuery)
}
