// Package library implements the upload pipeline and track removal on top of
// the store and file delivery.
package library

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"tunebox/internal/config"
	"tunebox/internal/media"
	"tunebox/internal/metadata"
	"tunebox/internal/store"
	"tunebox/pkg/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

const (
	DefaultTitle  = "Untitled"
	DefaultArtist = "Unknown Artist"

	// Bytes inspected for content sniffing
	sniffLen = 3072

	// CoverDir is the storage prefix for extracted cover images
	CoverDir = "covers"
)

// UploadRequest carries one uploaded file and the optional form fields
type UploadRequest struct {
	File         io.Reader
	OriginalName string
	Size         int64 // -1 when unknown
	ContentType  string
	Title        string
	Artist       string
	Album        string
}

// Service runs the upload pipeline
type Service struct {
	store     store.Store
	delivery  *media.Delivery
	extractor *metadata.Extractor
	config    *config.Config
	logger    *logrus.Logger
	newName   func() string
}

// NewService wires the pipeline to its collaborators
func NewService(st store.Store, delivery *media.Delivery, extractor *metadata.Extractor, cfg *config.Config, logger *logrus.Logger) *Service {
	return &Service{
		store:     st,
		delivery:  delivery,
		extractor: extractor,
		config:    cfg,
		logger:    logger,
		newName:   uuid.NewString,
	}
}

// Upload validates, stores and probes a file, then records it as a track and
// adds it to the Downloaded playlist. Bytes written before a later failure
// are removed again.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (models.Track, error) {
	if req.File == nil {
		return models.Track{}, &ValidationError{Field: "file", Message: "No file provided", Code: CodeMissingFile}
	}

	maxBytes := s.config.MaxUploadBytes()
	if req.Size > maxBytes {
		return models.Track{}, tooLarge(maxBytes)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(req.File, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return models.Track{}, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return models.Track{}, &ValidationError{Field: "file", Message: "File is empty", Code: CodeEmptyFile}
	}

	contentType, verr := s.validateContentType(req.ContentType, head)
	if verr != nil {
		return models.Track{}, verr
	}

	id := s.newName()
	filename := id + storedExtension(req.OriginalName, contentType)

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return models.Track{}, fmt.Errorf("failed to create hasher: %w", err)
	}
	body := io.TeeReader(io.LimitReader(io.MultiReader(bytes.NewReader(head), req.File), maxBytes+1), hasher)

	written, err := s.delivery.Save(ctx, body, filename, req.Size, contentType)
	if err != nil {
		// Some backends create the object before failing mid-stream
		s.removeBestEffort(ctx, filename)
		return models.Track{}, fmt.Errorf("failed to save upload: %w", err)
	}
	if written > maxBytes {
		s.removeBestEffort(ctx, filename)
		return models.Track{}, tooLarge(maxBytes)
	}

	probe, err := s.probe(ctx, filename, written, contentType)
	if err != nil {
		s.removeBestEffort(ctx, filename)
		return models.Track{}, err
	}

	var coverName string
	if probe.Picture != nil {
		coverName = s.saveCover(ctx, id, probe.Picture)
	}

	input := models.TrackInput{
		Title:       firstNonEmpty(req.Title, probe.Title, DefaultTitle),
		Artist:      firstNonEmpty(req.Artist, probe.Artist, DefaultArtist),
		Album:       models.StringPtr(firstNonEmpty(req.Album, probe.Album)),
		Duration:    probe.Duration,
		Filename:    filename,
		CoverImage:  models.StringPtr(coverName),
		ContentType: contentType,
		FileSize:    written,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}

	track, err := s.store.CreateTrack(input)
	if err != nil {
		s.removeBestEffort(ctx, filename)
		if coverName != "" {
			s.removeBestEffort(ctx, coverName)
		}
		return models.Track{}, fmt.Errorf("failed to create track: %w", err)
	}

	if err := AddToDownloaded(s.store, track, s.logger); err != nil {
		s.logger.WithError(err).WithField("track_id", track.ID).Error("Failed to add track to Downloaded playlist")
	}

	s.logger.WithFields(logrus.Fields{
		"track_id":           track.ID,
		"filename":           filename,
		"original":           req.OriginalName,
		"bytes":              written,
		"duration":           track.Duration,
		"duration_estimated": probe.DurationEstimated,
	}).Info("File uploaded and added to library")

	return track, nil
}

// ImportFile runs a file from the local filesystem through the upload pipeline
func (s *Service) ImportFile(ctx context.Context, path string) (models.Track, error) {
	file, err := os.Open(path)
	if err != nil {
		return models.Track{}, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return models.Track{}, fmt.Errorf("error reading file info: %w", err)
	}

	return s.Upload(ctx, UploadRequest{
		File:         file,
		OriginalName: filepath.Base(path),
		Size:         info.Size(),
		ContentType:  metadata.ContentTypeForFile(path),
	})
}

// DeleteTrack removes a track's stored bytes and then its record, returning
// the removed track. Bytes that are already gone are not an error, and neither
// is a record dropped in the meantime by the upload watcher reacting to the
// removed file.
func (s *Service) DeleteTrack(ctx context.Context, id int) (models.Track, error) {
	track, err := s.store.GetTrack(id)
	if err != nil {
		return models.Track{}, err
	}

	if err := s.delivery.Remove(ctx, track.Filename); err != nil && !errors.Is(err, media.ErrNotFound) {
		return models.Track{}, fmt.Errorf("failed to remove audio file: %w", err)
	}
	if track.CoverImage != nil {
		s.removeBestEffort(ctx, *track.CoverImage)
	}

	if err := s.store.DeleteTrack(id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return models.Track{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"track_id": id,
		"filename": track.Filename,
	}).Info("Track deleted")
	return track, nil
}

// ForgetFile drops the track whose audio file disappeared from storage and
// returns it.
func (s *Service) ForgetFile(ctx context.Context, filename string) (models.Track, error) {
	track, err := s.store.GetTrackByFilename(filename)
	if err != nil {
		return models.Track{}, err
	}
	if track.CoverImage != nil {
		s.removeBestEffort(ctx, *track.CoverImage)
	}
	if err := s.store.DeleteTrack(track.ID); err != nil {
		return models.Track{}, err
	}
	s.logger.WithFields(logrus.Fields{
		"track_id": track.ID,
		"filename": filename,
	}).Info("Removed track whose file was deleted")
	return track, nil
}

// AddToDownloaded appends the track to the Downloaded playlist. A missing
// playlist is logged and otherwise ignored.
func AddToDownloaded(st store.Store, track models.Track, logger *logrus.Logger) error {
	playlist, err := store.FindPlaylistByName(st, store.DownloadedPlaylist)
	if errors.Is(err, store.ErrNotFound) {
		logger.WithField("track_id", track.ID).Warn("Downloaded playlist not found, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	_, err = st.AddTrackToPlaylist(playlist.ID, track.ID)
	return err
}

func (s *Service) validateContentType(declared string, head []byte) (string, *ValidationError) {
	declared = metadata.NormalizeContentType(declared)
	if declared != "" && declared != "application/octet-stream" && !s.config.IsMimeTypeAllowed(declared) {
		return "", unsupported(declared)
	}

	detected := metadata.NormalizeContentType(mimetype.Detect(head).String())
	if !s.config.IsMimeTypeAllowed(detected) {
		return "", unsupported(detected)
	}
	return detected, nil
}

func (s *Service) probe(ctx context.Context, filename string, size int64, contentType string) (metadata.Result, error) {
	obj, err := s.delivery.Resolve(ctx, filename)
	if err != nil {
		return metadata.Result{}, fmt.Errorf("failed to reopen upload: %w", err)
	}
	defer obj.Close()
	return s.extractor.Probe(obj, size, contentType), nil
}

// saveCover stores an embedded picture and returns its name, or "" when it
// could not be stored. Covers are optional.
func (s *Service) saveCover(ctx context.Context, id string, picture *metadata.Picture) string {
	name := CoverDir + "/" + id + picture.Ext
	if _, err := s.delivery.Save(ctx, bytes.NewReader(picture.Data), name, int64(len(picture.Data)), picture.ContentType); err != nil {
		s.logger.WithError(err).WithField("cover", name).Warn("Failed to store cover image")
		return ""
	}
	return name
}

func (s *Service) removeBestEffort(ctx context.Context, name string) {
	if err := s.delivery.Remove(ctx, name); err != nil && !errors.Is(err, media.ErrNotFound) {
		s.logger.WithError(err).WithField("filename", name).Warn("Failed to clean up stored file")
	}
}

// storedExtension keeps the original audio extension and falls back to the
// one implied by the content type.
func storedExtension(originalName, contentType string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if metadata.IsAudioFile("x" + ext) {
		return ext
	}
	return metadata.ExtensionForContentType(contentType)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func tooLarge(maxBytes int64) *ValidationError {
	return &ValidationError{
		Field:   "file",
		Message: fmt.Sprintf("File exceeds the %d MB upload limit", maxBytes/(1024*1024)),
		Code:    CodeFileTooLarge,
	}
}

func unsupported(contentType string) *ValidationError {
	return &ValidationError{
		Field:   "file",
		Message: fmt.Sprintf("Unsupported file type %q. Supported formats: MP3, WAV, FLAC", contentType),
		Code:    CodeUnsupportedType,
	}
}
