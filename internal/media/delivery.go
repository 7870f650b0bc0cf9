package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// Buffer size for streaming (64KB)
	streamBufferSize = 64 * 1024
)

// ErrUnsatisfiableRange is returned by ParseRange when no byte of the
// requested range lies inside the file.
var ErrUnsatisfiableRange = errors.New("range not satisfiable")

// Delivery maps stored filenames to bytes and serves them over HTTP
type Delivery struct {
	backend Backend
	logger  *logrus.Logger
}

// NewDelivery wraps a storage backend
func NewDelivery(backend Backend, logger *logrus.Logger) *Delivery {
	return &Delivery{backend: backend, logger: logger}
}

// Backend returns the underlying storage backend
func (d *Delivery) Backend() Backend {
	return d.backend
}

// Save stores r under filename and returns the number of bytes written
func (d *Delivery) Save(ctx context.Context, r io.Reader, filename string, size int64, contentType string) (int64, error) {
	written, err := d.backend.Save(ctx, filename, r, size, contentType)
	if err != nil {
		return 0, err
	}
	d.logger.WithFields(logrus.Fields{
		"filename": filename,
		"bytes":    written,
	}).Debug("Stored file")
	return written, nil
}

// Resolve opens the bytes stored under filename. Caller must Close the object.
func (d *Delivery) Resolve(ctx context.Context, filename string) (Object, error) {
	if err := ValidateName(filename); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, ErrNotFound)
	}
	return d.backend.Open(ctx, filename)
}

// Remove deletes the bytes stored under filename
func (d *Delivery) Remove(ctx context.Context, filename string) error {
	return d.backend.Remove(ctx, filename)
}

// Serve writes obj to w honoring a single byte range. Without a Range header
// the whole body is sent with 200; otherwise 206 with Content-Range, or 416
// when the range cannot be satisfied. A non-empty etag enables 304 responses.
func (d *Delivery) Serve(w http.ResponseWriter, r *http.Request, obj Object, contentType, etag string) {
	size := obj.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if etag != "" {
		quoted := `"` + etag + `"`
		w.Header().Set("ETag", quoted)
		if etagMatches(r.Header.Get("If-None-Match"), quoted) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	if modTime := obj.ModTime(); !modTime.IsZero() {
		w.Header().Set("Last-Modified", modTime.UTC().Format(http.TimeFormat))
	}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		d.copy(w, bufio.NewReaderSize(obj, streamBufferSize), size)
		return
	}

	start, end, err := ParseRange(rangeHeader, size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	if _, err := obj.Seek(start, io.SeekStart); err != nil {
		d.logger.WithError(err).Error("Failed to seek stored file")
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	contentLength := end - start + 1
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(contentLength, 10))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return
	}
	d.copy(w, obj, contentLength)
}

func (d *Delivery) copy(w io.Writer, src io.Reader, n int64) {
	buffer := make([]byte, streamBufferSize)
	if _, err := io.CopyBuffer(w, io.LimitReader(src, n), buffer); err != nil {
		// Usually the client went away mid-stream
		d.logger.WithError(err).Debug("Error streaming file")
	}
}

// ParseRange interprets a "bytes=start-end" header against a file of the
// given size and returns inclusive offsets. An omitted end means the last
// byte, "bytes=-N" selects the final N bytes and an end past EOF is clamped.
// Only the first range of a multi-range request is honored.
func ParseRange(header string, size int64) (start, end int64, err error) {
	ranges, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || size <= 0 {
		return 0, 0, ErrUnsatisfiableRange
	}
	if i := strings.IndexByte(ranges, ','); i >= 0 {
		ranges = ranges[:i]
	}
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(ranges), "-")
	if !ok {
		return 0, 0, ErrUnsatisfiableRange
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix <= 0 {
			return 0, 0, ErrUnsatisfiableRange
		}
		if suffix > size {
			suffix = size
		}
		return size - suffix, size - 1, nil
	}

	start, err = strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, ErrUnsatisfiableRange
	}

	end = size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, ErrUnsatisfiableRange
		}
		if end >= size {
			end = size - 1
		}
	}
	return start, end, nil
}

func etagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
