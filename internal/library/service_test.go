package library

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tunebox/internal/config"
	"tunebox/internal/logging"
	"tunebox/internal/media"
	"tunebox/internal/metadata"
	"tunebox/internal/store"
	"tunebox/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

// wavFile returns a silent 16-bit mono PCM WAV file
func wavFile(seconds, sampleRate int) []byte {
	dataSize := seconds * sampleRate * 2

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}

type fixture struct {
	service *Service
	store   store.Store
	backend *media.MemoryBackend
	config  *config.Config
}

func newFixture(t *testing.T, st store.Store) *fixture {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	cfg := config.DefaultConfig()
	logger := logging.Discard()
	backend := media.NewMemoryBackend()

	svc := NewService(st, media.NewDelivery(backend, logger), metadata.NewExtractor(cfg.Library, logger), cfg, logger)
	svc.newName = func() string { return "fixed-id" }

	return &fixture{service: svc, store: st, backend: backend, config: cfg}
}

func (f *fixture) stored(t *testing.T, name string) []byte {
	t.Helper()
	obj, err := f.backend.Open(context.Background(), name)
	require.NoError(t, err)
	defer obj.Close()
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	return data
}

func downloadedTrackIDs(t *testing.T, st store.Store) []int {
	t.Helper()
	playlist, err := store.FindPlaylistByName(st, store.DownloadedPlaylist)
	require.NoError(t, err)
	tracks, err := st.ListTracksForPlaylist(playlist.ID)
	require.NoError(t, err)
	ids := make([]int, 0, len(tracks))
	for _, track := range tracks {
		ids = append(ids, track.ID)
	}
	return ids
}

func TestUploadStoresTrack(t *testing.T) {
	f := newFixture(t, nil)
	payload := wavFile(2, 8000)

	track, err := f.service.Upload(context.Background(), UploadRequest{
		File:         bytes.NewReader(payload),
		OriginalName: "My Song.WAV",
		Size:         int64(len(payload)),
		ContentType:  "audio/x-wav",
	})
	require.NoError(t, err)

	assert.Equal(t, "fixed-id.wav", track.Filename)
	assert.Equal(t, DefaultTitle, track.Title)
	assert.Equal(t, DefaultArtist, track.Artist)
	assert.Nil(t, track.Album)
	assert.Equal(t, 2, track.Duration)
	assert.Equal(t, "audio/wav", track.ContentType)
	assert.EqualValues(t, len(payload), track.FileSize)

	sum := blake2b.Sum256(payload)
	assert.Equal(t, hex.EncodeToString(sum[:]), track.Checksum)

	assert.Equal(t, payload, f.stored(t, "fixed-id.wav"))
	assert.Equal(t, []int{track.ID}, downloadedTrackIDs(t, f.store))
}

func TestUploadFormValuesWin(t *testing.T) {
	f := newFixture(t, nil)
	payload := wavFile(1, 8000)

	track, err := f.service.Upload(context.Background(), UploadRequest{
		File:         bytes.NewReader(payload),
		OriginalName: "noext",
		Size:         -1,
		Title:        "  Intro  ",
		Artist:       "Band",
		Album:        "Debut",
	})
	require.NoError(t, err)

	assert.Equal(t, "Intro", track.Title)
	assert.Equal(t, "Band", track.Artist)
	assert.Equal(t, "Debut", track.AlbumName())
	assert.Equal(t, "fixed-id.wav", track.Filename, "extension derived from content type")
}

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name     string
		req      func() UploadRequest
		wantCode string
	}{
		{
			name:     "no file",
			req:      func() UploadRequest { return UploadRequest{} },
			wantCode: CodeMissingFile,
		},
		{
			name: "empty file",
			req: func() UploadRequest {
				return UploadRequest{File: strings.NewReader(""), OriginalName: "a.mp3", ContentType: "audio/mpeg"}
			},
			wantCode: CodeEmptyFile,
		},
		{
			name: "declared type not allowed",
			req: func() UploadRequest {
				return UploadRequest{File: bytes.NewReader(wavFile(1, 8000)), OriginalName: "a.png", ContentType: "image/png"}
			},
			wantCode: CodeUnsupportedType,
		},
		{
			name: "content is not audio",
			req: func() UploadRequest {
				return UploadRequest{File: strings.NewReader("just some text"), OriginalName: "a.mp3", ContentType: "audio/mpeg"}
			},
			wantCode: CodeUnsupportedType,
		},
		{
			name: "declared size too large",
			req: func() UploadRequest {
				return UploadRequest{File: strings.NewReader("x"), OriginalName: "a.mp3", Size: 51 * 1024 * 1024}
			},
			wantCode: CodeFileTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			_, err := f.service.Upload(context.Background(), tt.req())

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantCode, verr.Code)
			assert.Equal(t, "file", verr.Field)
			assert.Zero(t, f.backend.Len(), "nothing should be stored")

			tracks, _ := f.store.ListTracks()
			assert.Empty(t, tracks)
		})
	}
}

func TestUploadStreamingLimitRemovesFile(t *testing.T) {
	f := newFixture(t, nil)
	f.config.Storage.MaxUploadMB = 1
	payload := wavFile(70, 8000) // just over 1 MB

	_, err := f.service.Upload(context.Background(), UploadRequest{
		File:         bytes.NewReader(payload),
		OriginalName: "big.wav",
		Size:         -1,
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeFileTooLarge, verr.Code)
	assert.Zero(t, f.backend.Len())
}

type failingStore struct {
	store.Store
}

func (failingStore) CreateTrack(models.TrackInput) (models.Track, error) {
	return models.Track{}, errors.New("disk full")
}

func TestUploadCleansUpWhenCreateFails(t *testing.T) {
	f := newFixture(t, failingStore{Store: store.NewMemoryStore()})
	payload := wavFile(1, 8000)

	_, err := f.service.Upload(context.Background(), UploadRequest{
		File:         bytes.NewReader(payload),
		OriginalName: "a.wav",
		Size:         int64(len(payload)),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, f.backend.Len(), "written file must be removed")
}

func TestUploadWithoutDownloadedPlaylist(t *testing.T) {
	f := newFixture(t, nil)
	downloaded, err := store.FindPlaylistByName(f.store, store.DownloadedPlaylist)
	require.NoError(t, err)
	require.NoError(t, f.store.DeletePlaylist(downloaded.ID))

	payload := wavFile(1, 8000)
	track, err := f.service.Upload(context.Background(), UploadRequest{
		File:         bytes.NewReader(payload),
		OriginalName: "a.wav",
		Size:         int64(len(payload)),
	})
	require.NoError(t, err)

	_, err = f.store.GetTrack(track.ID)
	assert.NoError(t, err)
}

func TestDeleteTrack(t *testing.T) {
	f := newFixture(t, nil)
	payload := wavFile(1, 8000)
	ctx := context.Background()

	track, err := f.service.Upload(ctx, UploadRequest{File: bytes.NewReader(payload), OriginalName: "a.wav", Size: -1})
	require.NoError(t, err)

	_, err = f.service.DeleteTrack(ctx, track.ID)
	require.NoError(t, err)
	assert.Zero(t, f.backend.Len())
	_, err = f.store.GetTrack(track.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, downloadedTrackIDs(t, f.store))

	_, err = f.service.DeleteTrack(ctx, track.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteTrackToleratesMissingBytes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	track, err := f.service.Upload(ctx, UploadRequest{File: bytes.NewReader(wavFile(1, 8000)), OriginalName: "a.wav", Size: -1})
	require.NoError(t, err)
	require.NoError(t, f.backend.Remove(ctx, track.Filename))

	_, err = f.service.DeleteTrack(ctx, track.ID)
	require.NoError(t, err)
	_, err = f.store.GetTrack(track.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// watcherRaceStore drops the record on its own just before the caller's
// delete, as the upload watcher does when it sees the audio file go away.
type watcherRaceStore struct {
	store.Store
}

func (s watcherRaceStore) DeleteTrack(id int) error {
	if err := s.Store.DeleteTrack(id); err != nil {
		return err
	}
	return s.Store.DeleteTrack(id)
}

func TestDeleteTrackAfterWatcherRemovedRecord(t *testing.T) {
	f := newFixture(t, watcherRaceStore{store.NewMemoryStore()})
	ctx := context.Background()

	track, err := f.service.Upload(ctx, UploadRequest{File: bytes.NewReader(wavFile(1, 8000)), OriginalName: "a.wav", Size: -1})
	require.NoError(t, err)

	deleted, err := f.service.DeleteTrack(ctx, track.ID)
	require.NoError(t, err)
	assert.Equal(t, track.ID, deleted.ID)
	assert.Zero(t, f.backend.Len())

	_, err = f.service.DeleteTrack(ctx, track.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestImportFile(t *testing.T) {
	f := newFixture(t, nil)
	path := filepath.Join(t.TempDir(), "Imported.wav")
	payload := wavFile(3, 8000)
	require.NoError(t, os.WriteFile(path, payload, 0644))

	track, err := f.service.ImportFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 3, track.Duration)
	assert.Equal(t, payload, f.stored(t, track.Filename))

	_, err = f.service.ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestForgetFile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	track, err := f.service.Upload(ctx, UploadRequest{File: bytes.NewReader(wavFile(1, 8000)), OriginalName: "a.wav", Size: -1})
	require.NoError(t, err)

	forgotten, err := f.service.ForgetFile(ctx, track.Filename)
	require.NoError(t, err)
	assert.Equal(t, track.ID, forgotten.ID)
	_, err = f.store.GetTrack(track.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.service.ForgetFile(ctx, "unknown.wav")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
