// Package media stores uploaded audio and cover bytes and serves them over
// HTTP with byte-range support.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when no bytes are stored under a name
var ErrNotFound = errors.New("file not found")

// ErrInvalidName is returned for names that could escape the storage root
var ErrInvalidName = errors.New("invalid file name")

// Object is an open stored file. Seeking lets range requests start anywhere.
type Object interface {
	io.ReadSeekCloser
	Size() int64
	ModTime() time.Time
}

// Backend is where bytes physically live. Names are slash separated relative
// keys such as "3f2a....mp3" or "covers/3f2a....jpg".
type Backend interface {
	// Save stores the reader under name and returns the number of bytes
	// written. size may be -1 when unknown.
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (int64, error)
	Open(ctx context.Context, name string) (Object, error)
	Remove(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
}

// ValidateName rejects empty, absolute and parent-relative names
func ValidateName(name string) error {
	if name == "" || strings.ContainsRune(name, '\\') || strings.HasPrefix(name, "/") {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	if path.Clean(name) != name {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == ".." || segment == "." {
			return fmt.Errorf("%q: %w", name, ErrInvalidName)
		}
	}
	return nil
}
