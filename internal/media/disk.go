package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// DiskBackend keeps files under a dedicated upload directory
type DiskBackend struct {
	root string
}

// NewDiskBackend creates the root directory if needed
func NewDiskBackend(root string) (*DiskBackend, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &DiskBackend{root: root}, nil
}

// Root returns the upload directory
func (d *DiskBackend) Root() string {
	return d.root
}

// Path returns the on-disk path for a stored name
func (d *DiskBackend) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(name)), nil
}

// Save writes to a temporary file first and renames it into place, so readers
// never observe a partially written file.
func (d *DiskBackend) Save(_ context.Context, name string, r io.Reader, _ int64, _ string) (int64, error) {
	target, err := d.Path(name)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	written, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to write %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return written, nil
}

// Open opens a stored file for reading
func (d *DiskBackend) Open(_ context.Context, name string) (Object, error) {
	p, err := d.Path(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("error reading file info: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return &diskObject{File: file, info: info}, nil
}

// Remove deletes a stored file
func (d *DiskBackend) Remove(_ context.Context, name string) error {
	p, err := d.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return err
	}
	return nil
}

// Exists reports whether a regular file is stored under name
func (d *DiskBackend) Exists(_ context.Context, name string) (bool, error) {
	p, err := d.Path(name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

type diskObject struct {
	*os.File
	info os.FileInfo
}

func (o *diskObject) Size() int64        { return o.info.Size() }
func (o *diskObject) ModTime() time.Time { return o.info.ModTime() }
