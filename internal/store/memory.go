package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tunebox/pkg/models"
)

// MemoryStore keeps everything in process memory. State is lost on restart
// and is not shared between processes.
type MemoryStore struct {
	mu sync.RWMutex

	tracks         map[int]models.Track
	playlists      map[int]models.Playlist
	playlistTracks []models.PlaylistTrack // insertion order

	nextTrackID         int
	nextPlaylistID      int
	nextPlaylistTrackID int

	now func() time.Time
}

// NewMemoryStore creates an empty store seeded with the default playlists
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		tracks:              make(map[int]models.Track),
		playlists:           make(map[int]models.Playlist),
		nextTrackID:         1,
		nextPlaylistID:      1,
		nextPlaylistTrackID: 1,
		now:                 func() time.Time { return time.Now().UTC() },
	}
	// Cannot fail on an empty in-memory store.
	_ = seedDefaultPlaylists(s)
	return s
}

// CreateTrack assigns an id and upload timestamp and stores the track
func (s *MemoryStore) CreateTrack(input models.TrackInput) (models.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tracks {
		if existing.Filename == input.Filename {
			return models.Track{}, fmt.Errorf("track with filename %q already exists", input.Filename)
		}
	}

	track := models.Track{
		ID:          s.nextTrackID,
		Title:       input.Title,
		Artist:      input.Artist,
		Album:       input.Album,
		Duration:    input.Duration,
		Filename:    input.Filename,
		CoverImage:  input.CoverImage,
		ContentType: input.ContentType,
		FileSize:    input.FileSize,
		Checksum:    input.Checksum,
		UploadedAt:  s.now(),
	}
	s.nextTrackID++
	s.tracks[track.ID] = track
	return track, nil
}

// GetTrack returns a track by id
func (s *MemoryStore) GetTrack(id int) (models.Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	track, ok := s.tracks[id]
	if !ok {
		return models.Track{}, fmt.Errorf("track %d: %w", id, ErrNotFound)
	}
	return track, nil
}

// GetTrackByFilename returns the track stored under filename
func (s *MemoryStore) GetTrackByFilename(filename string) (models.Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, track := range s.tracks {
		if track.Filename == filename {
			return track, nil
		}
	}
	return models.Track{}, fmt.Errorf("track %q: %w", filename, ErrNotFound)
}

// ListTracks returns all tracks, most recently uploaded first
func (s *MemoryStore) ListTracks() ([]models.Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedTracks(), nil
}

// SearchTracks performs a linear case-insensitive scan
func (s *MemoryStore) SearchTracks(query string) ([]models.Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sortedTracks()
	if query == "" {
		return all, nil
	}

	lowerQuery := strings.ToLower(query)
	matches := make([]models.Track, 0, len(all))
	for _, track := range all {
		if matchesQuery(track, lowerQuery) {
			matches = append(matches, track)
		}
	}
	return matches, nil
}

// DeleteTrack removes the track and its playlist associations
func (s *MemoryStore) DeleteTrack(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tracks[id]; !ok {
		return fmt.Errorf("track %d: %w", id, ErrNotFound)
	}
	s.playlistTracks = filterAssociations(s.playlistTracks, func(pt models.PlaylistTrack) bool {
		return pt.TrackID != id
	})
	delete(s.tracks, id)
	return nil
}

// CreatePlaylist stores a new playlist
func (s *MemoryStore) CreatePlaylist(name string) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	playlist := models.Playlist{
		ID:        s.nextPlaylistID,
		Name:      name,
		CreatedAt: s.now(),
	}
	s.nextPlaylistID++
	s.playlists[playlist.ID] = playlist
	return playlist, nil
}

// GetPlaylist returns a playlist by id, with its track count
func (s *MemoryStore) GetPlaylist(id int) (models.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	playlist, ok := s.playlists[id]
	if !ok {
		return models.Playlist{}, fmt.Errorf("playlist %d: %w", id, ErrNotFound)
	}
	playlist.TrackCount = s.countAssociations(id)
	return playlist, nil
}

// ListPlaylists returns all playlists ordered by id
func (s *MemoryStore) ListPlaylists() ([]models.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	playlists := make([]models.Playlist, 0, len(s.playlists))
	for _, p := range s.playlists {
		p.TrackCount = s.countAssociations(p.ID)
		playlists = append(playlists, p)
	}
	sort.Slice(playlists, func(i, j int) bool { return playlists[i].ID < playlists[j].ID })
	return playlists, nil
}

// RenamePlaylist changes a playlist's name
func (s *MemoryStore) RenamePlaylist(id int, name string) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	playlist, ok := s.playlists[id]
	if !ok {
		return models.Playlist{}, fmt.Errorf("playlist %d: %w", id, ErrNotFound)
	}
	playlist.Name = name
	s.playlists[id] = playlist
	playlist.TrackCount = s.countAssociations(id)
	return playlist, nil
}

// DeletePlaylist removes the playlist and its associations
func (s *MemoryStore) DeletePlaylist(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.playlists[id]; !ok {
		return fmt.Errorf("playlist %d: %w", id, ErrNotFound)
	}
	s.playlistTracks = filterAssociations(s.playlistTracks, func(pt models.PlaylistTrack) bool {
		return pt.PlaylistID != id
	})
	delete(s.playlists, id)
	return nil
}

// AddTrackToPlaylist appends an association row. Both sides must exist.
func (s *MemoryStore) AddTrackToPlaylist(playlistID, trackID int) (models.PlaylistTrack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.playlists[playlistID]; !ok {
		return models.PlaylistTrack{}, fmt.Errorf("playlist %d: %w", playlistID, ErrNotFound)
	}
	if _, ok := s.tracks[trackID]; !ok {
		return models.PlaylistTrack{}, fmt.Errorf("track %d: %w", trackID, ErrNotFound)
	}

	pt := models.PlaylistTrack{
		ID:         s.nextPlaylistTrackID,
		PlaylistID: playlistID,
		TrackID:    trackID,
		AddedAt:    s.now(),
	}
	s.nextPlaylistTrackID++
	s.playlistTracks = append(s.playlistTracks, pt)
	return pt, nil
}

// RemoveTrackFromPlaylist removes the oldest matching association
func (s *MemoryStore) RemoveTrackFromPlaylist(playlistID, trackID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, pt := range s.playlistTracks {
		if pt.PlaylistID == playlistID && pt.TrackID == trackID {
			s.playlistTracks = append(s.playlistTracks[:i], s.playlistTracks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("track %d in playlist %d: %w", trackID, playlistID, ErrNotFound)
}

// ListTracksForPlaylist returns the playlist's tracks in association order
func (s *MemoryStore) ListTracksForPlaylist(playlistID int) ([]models.Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.playlists[playlistID]; !ok {
		return nil, fmt.Errorf("playlist %d: %w", playlistID, ErrNotFound)
	}

	tracks := make([]models.Track, 0)
	for _, pt := range s.playlistTracks {
		if pt.PlaylistID != playlistID {
			continue
		}
		if track, ok := s.tracks[pt.TrackID]; ok {
			tracks = append(tracks, track)
		}
	}
	return tracks, nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}

// sortedTracks must be called with the lock held
func (s *MemoryStore) sortedTracks() []models.Track {
	tracks := make([]models.Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		tracks = append(tracks, t)
	}
	sort.Slice(tracks, func(i, j int) bool {
		if !tracks[i].UploadedAt.Equal(tracks[j].UploadedAt) {
			return tracks[i].UploadedAt.After(tracks[j].UploadedAt)
		}
		return tracks[i].ID > tracks[j].ID
	})
	return tracks
}

// countAssociations must be called with the lock held
func (s *MemoryStore) countAssociations(playlistID int) int {
	count := 0
	for _, pt := range s.playlistTracks {
		if pt.PlaylistID == playlistID {
			count++
		}
	}
	return count
}

func filterAssociations(rows []models.PlaylistTrack, keep func(models.PlaylistTrack) bool) []models.PlaylistTrack {
	kept := rows[:0]
	for _, pt := range rows {
		if keep(pt) {
			kept = append(kept, pt)
		}
	}
	return kept
}
