package server

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"tunebox/internal/media"
	"tunebox/internal/metadata"
	"tunebox/internal/store"

	"github.com/fsnotify/fsnotify"
)

// startFileWatcher watches the disk upload directory so tracks whose file is
// deleted or moved away outside the server are dropped from the library.
// Other backends have nothing to watch.
func (ms *MusicServer) startFileWatcher() error {
	disk, ok := ms.delivery.Backend().(*media.DiskBackend)
	if !ok {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(disk.Root()); err != nil {
		watcher.Close()
		return err
	}
	ms.watcher = watcher

	go ms.watchFiles(watcher, disk.Root())

	ms.logger.WithField("upload_dir", disk.Root()).Info("File watcher started")
	return nil
}

// watchFiles selects on watcher channels and dispatches events.
func (ms *MusicServer) watchFiles(watcher *fsnotify.Watcher, root string) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			ms.handleFileEvent(event, root)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			ms.logger.WithError(err).Error("File watcher error")
		}
	}
}

// handleFileEvent filters events down to audio files leaving the upload
// directory. Creations are ignored: uploads are recorded by the pipeline.
func (ms *MusicServer) handleFileEvent(event fsnotify.Event, root string) {
	fileName := filepath.Base(event.Name)
	if strings.HasPrefix(fileName, ".") || strings.HasSuffix(fileName, ".tmp") {
		return
	}
	if filepath.Dir(event.Name) != filepath.Clean(root) || !metadata.IsAudioFile(fileName) {
		return
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		ms.handleRemovedFile(fileName)
	}
}

// handleRemovedFile removes the track referencing a deleted audio file.
func (ms *MusicServer) handleRemovedFile(fileName string) {
	logger := ms.logger.WithField("filename", fileName)
	logger.Info("Audio file removed")

	track, err := ms.library.ForgetFile(context.Background(), fileName)
	if errors.Is(err, store.ErrNotFound) {
		logger.Debug("Removed file was not in the library")
		return
	}
	if err != nil {
		logger.WithError(err).Error("Error removing track from library")
		return
	}
	ms.evictCover(track)
}

// stopFileWatcher closes the watcher (idempotent).
func (ms *MusicServer) stopFileWatcher() {
	if ms.watcher != nil {
		ms.watcher.Close()
	}
}
