package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tunebox/pkg/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const trackColumns = `id, title, artist, album, duration, filename, cover_image, content_type, file_size, checksum, uploaded_at`

// SQLiteStore is the durable Store implementation. It is safe for concurrent
// use because the underlying *sql.DB is concurrency-safe.
type SQLiteStore struct {
	conn   *sql.DB
	logger *logrus.Logger

	insertTrackStmt       *sql.Stmt
	getTrackByIDStmt      *sql.Stmt
	getTrackByNameStmt    *sql.Stmt
	listTracksStmt        *sql.Stmt
	insertPlaylistStmt    *sql.Stmt
	getPlaylistStmt       *sql.Stmt
	insertAssociationStmt *sql.Stmt
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, ensures the
// schema exists and seeds the default playlists on first use. Caller should
// Close() it when finished.
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works better with few connections
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=memory;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	s := &SQLiteStore{
		conn:   conn,
		logger: logger,
	}

	if err := s.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := s.prepareStatements(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	if err := seedDefaultPlaylists(s); err != nil {
		s.Close()
		return nil, err
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return s, nil
}

// createTables is idempotent and safe to call multiple times
func (s *SQLiteStore) createTables() error {
	tracksTable := `
	CREATE TABLE IF NOT EXISTS tracks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		album TEXT,
		duration INTEGER NOT NULL DEFAULT 0,
		filename TEXT NOT NULL UNIQUE,
		cover_image TEXT,
		content_type TEXT NOT NULL DEFAULT '',
		file_size INTEGER NOT NULL DEFAULT 0,
		checksum TEXT NOT NULL DEFAULT '',
		uploaded_at DATETIME NOT NULL
	);`

	playlistsTable := `
	CREATE TABLE IF NOT EXISTS playlists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`

	// No uniqueness on (playlist_id, track_id): duplicates are allowed.
	playlistTracksTable := `
	CREATE TABLE IF NOT EXISTS playlist_tracks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		playlist_id INTEGER NOT NULL,
		track_id INTEGER NOT NULL,
		added_at DATETIME NOT NULL,
		FOREIGN KEY (playlist_id) REFERENCES playlists(id) ON DELETE CASCADE,
		FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_tracks_uploaded ON tracks(uploaded_at);",
		"CREATE INDEX IF NOT EXISTS idx_playlist_tracks_playlist ON playlist_tracks(playlist_id, id);",
		"CREATE INDEX IF NOT EXISTS idx_playlist_tracks_track ON playlist_tracks(track_id);",
	}

	for _, table := range []string{tracksTable, playlistsTable, playlistTracksTable} {
		if _, err := s.conn.Exec(table); err != nil {
			return err
		}
	}
	for _, index := range indices {
		if _, err := s.conn.Exec(index); err != nil {
			return err
		}
	}
	return nil
}

// prepareStatements prepares commonly used SQL statements
func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.insertTrackStmt, err = s.conn.Prepare(`
		INSERT INTO tracks (title, artist, album, duration, filename, cover_image, content_type, file_size, checksum, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert track statement: %w", err)
	}

	s.getTrackByIDStmt, err = s.conn.Prepare(`SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get track by ID statement: %w", err)
	}

	s.getTrackByNameStmt, err = s.conn.Prepare(`SELECT ` + trackColumns + ` FROM tracks WHERE filename = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get track by filename statement: %w", err)
	}

	s.listTracksStmt, err = s.conn.Prepare(`SELECT ` + trackColumns + ` FROM tracks ORDER BY uploaded_at DESC, id DESC`)
	if err != nil {
		return fmt.Errorf("failed to prepare list tracks statement: %w", err)
	}

	s.insertPlaylistStmt, err = s.conn.Prepare(`INSERT INTO playlists (name, created_at) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert playlist statement: %w", err)
	}

	s.getPlaylistStmt, err = s.conn.Prepare(`
		SELECT p.id, p.name, p.created_at,
			(SELECT COUNT(*) FROM playlist_tracks pt WHERE pt.playlist_id = p.id)
		FROM playlists p WHERE p.id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get playlist statement: %w", err)
	}

	s.insertAssociationStmt, err = s.conn.Prepare(`
		INSERT INTO playlist_tracks (playlist_id, track_id, added_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert association statement: %w", err)
	}

	return nil
}

// CreateTrack inserts a track and returns it with its assigned id
func (s *SQLiteStore) CreateTrack(input models.TrackInput) (models.Track, error) {
	uploadedAt := time.Now().UTC()
	result, err := s.insertTrackStmt.Exec(
		input.Title, input.Artist, nullString(input.Album), input.Duration, input.Filename,
		nullString(input.CoverImage), input.ContentType, input.FileSize, input.Checksum, uploadedAt)
	if err != nil {
		s.logger.WithError(err).WithField("filename", input.Filename).Error("Failed to insert track")
		return models.Track{}, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return models.Track{}, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return models.Track{
		ID:          int(id),
		Title:       input.Title,
		Artist:      input.Artist,
		Album:       input.Album,
		Duration:    input.Duration,
		Filename:    input.Filename,
		CoverImage:  input.CoverImage,
		ContentType: input.ContentType,
		FileSize:    input.FileSize,
		Checksum:    input.Checksum,
		UploadedAt:  uploadedAt,
	}, nil
}

// GetTrack returns a single track by its ID
func (s *SQLiteStore) GetTrack(id int) (models.Track, error) {
	track, err := scanTrack(s.getTrackByIDStmt.QueryRow(id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Track{}, fmt.Errorf("track %d: %w", id, ErrNotFound)
	}
	return track, err
}

// GetTrackByFilename returns the track stored under filename
func (s *SQLiteStore) GetTrackByFilename(filename string) (models.Track, error) {
	track, err := scanTrack(s.getTrackByNameStmt.QueryRow(filename))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Track{}, fmt.Errorf("track %q: %w", filename, ErrNotFound)
	}
	return track, err
}

// ListTracks returns all tracks, most recently uploaded first
func (s *SQLiteStore) ListTracks() ([]models.Track, error) {
	rows, err := s.listTracksStmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrackRows(rows)
}

// SearchTracks filters ListTracks in Go: strings.ToLower lowercases
// non-ASCII letters, SQLite's LIKE only ASCII ones.
func (s *SQLiteStore) SearchTracks(query string) ([]models.Track, error) {
	all, err := s.ListTracks()
	if err != nil {
		s.logger.WithError(err).WithField("query", query).Error("Failed to search tracks")
		return nil, err
	}
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

// DeleteTrack removes the track and its associations in one transaction
func (s *SQLiteStore) DeleteTrack(id int) error {
	return s.deleteWithAssociations("tracks", "track_id", id)
}

// CreatePlaylist inserts a new playlist
func (s *SQLiteStore) CreatePlaylist(name string) (models.Playlist, error) {
	createdAt := time.Now().UTC()
	result, err := s.insertPlaylistStmt.Exec(name, createdAt)
	if err != nil {
		return models.Playlist{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return models.Playlist{}, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return models.Playlist{ID: int(id), Name: name, CreatedAt: createdAt}, nil
}

// GetPlaylist returns a playlist with its derived track count
func (s *SQLiteStore) GetPlaylist(id int) (models.Playlist, error) {
	var p models.Playlist
	err := s.getPlaylistStmt.QueryRow(id).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.TrackCount)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Playlist{}, fmt.Errorf("playlist %d: %w", id, ErrNotFound)
	}
	return p, err
}

// ListPlaylists returns all playlists along with derived track counts
func (s *SQLiteStore) ListPlaylists() ([]models.Playlist, error) {
	rows, err := s.conn.Query(`
		SELECT p.id, p.name, p.created_at, COUNT(pt.id)
		FROM playlists p
		LEFT JOIN playlist_tracks pt ON pt.playlist_id = p.id
		GROUP BY p.id
		ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	playlists := make([]models.Playlist, 0)
	for rows.Next() {
		var p models.Playlist
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.TrackCount); err != nil {
			return nil, err
		}
		playlists = append(playlists, p)
	}
	return playlists, rows.Err()
}

// RenamePlaylist updates a playlist's name
func (s *SQLiteStore) RenamePlaylist(id int, name string) (models.Playlist, error) {
	result, err := s.conn.Exec(`UPDATE playlists SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return models.Playlist{}, err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return models.Playlist{}, fmt.Errorf("playlist %d: %w", id, ErrNotFound)
	}
	return s.GetPlaylist(id)
}

// DeletePlaylist deletes the playlist and any associations referencing it
func (s *SQLiteStore) DeletePlaylist(id int) error {
	return s.deleteWithAssociations("playlists", "playlist_id", id)
}

// AddTrackToPlaylist appends an association row. Both sides must exist.
func (s *SQLiteStore) AddTrackToPlaylist(playlistID, trackID int) (models.PlaylistTrack, error) {
	if _, err := s.GetPlaylist(playlistID); err != nil {
		return models.PlaylistTrack{}, err
	}
	if _, err := s.GetTrack(trackID); err != nil {
		return models.PlaylistTrack{}, err
	}

	addedAt := time.Now().UTC()
	result, err := s.insertAssociationStmt.Exec(playlistID, trackID, addedAt)
	if err != nil {
		return models.PlaylistTrack{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return models.PlaylistTrack{}, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return models.PlaylistTrack{ID: int(id), PlaylistID: playlistID, TrackID: trackID, AddedAt: addedAt}, nil
}

// RemoveTrackFromPlaylist removes the oldest association for the pair
func (s *SQLiteStore) RemoveTrackFromPlaylist(playlistID, trackID int) error {
	result, err := s.conn.Exec(`
		DELETE FROM playlist_tracks WHERE id = (
			SELECT MIN(id) FROM playlist_tracks WHERE playlist_id = ? AND track_id = ?
		)`, playlistID, trackID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("track %d in playlist %d: %w", trackID, playlistID, ErrNotFound)
	}
	return nil
}

// ListTracksForPlaylist returns tracks in association order
func (s *SQLiteStore) ListTracksForPlaylist(playlistID int) ([]models.Track, error) {
	if _, err := s.GetPlaylist(playlistID); err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(`
		SELECT t.id, t.title, t.artist, t.album, t.duration, t.filename, t.cover_image,
			t.content_type, t.file_size, t.checksum, t.uploaded_at
		FROM playlist_tracks pt
		JOIN tracks t ON t.id = pt.track_id
		WHERE pt.playlist_id = ?
		ORDER BY pt.id`, playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrackRows(rows)
}

// Close closes the prepared statements and the database connection
func (s *SQLiteStore) Close() error {
	statements := []*sql.Stmt{
		s.insertTrackStmt,
		s.getTrackByIDStmt,
		s.getTrackByNameStmt,
		s.listTracksStmt,
		s.insertPlaylistStmt,
		s.getPlaylistStmt,
		s.insertAssociationStmt,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				s.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// deleteWithAssociations removes association rows explicitly before the parent
// row so the cascade holds even on connections without foreign keys enabled.
func (s *SQLiteStore) deleteWithAssociations(table, column string, id int) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM playlist_tracks WHERE `+column+` = ?`, id); err != nil {
		return err
	}
	result, err := tx.Exec(`DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", strings.TrimSuffix(table, "s"), id, ErrNotFound)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(row rowScanner) (models.Track, error) {
	var track models.Track
	var album, cover sql.NullString
	err := row.Scan(&track.ID, &track.Title, &track.Artist, &album, &track.Duration, &track.Filename,
		&cover, &track.ContentType, &track.FileSize, &track.Checksum, &track.UploadedAt)
	if err != nil {
		return models.Track{}, err
	}
	if album.Valid {
		track.Album = &album.String
	}
	if cover.Valid {
		track.CoverImage = &cover.String
	}
	return track, nil
}

// scanTrackRows scans track result sets. Callers must have already deferred
// rows.Close().
func scanTrackRows(rows *sql.Rows) ([]models.Track, error) {
	tracks := make([]models.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
