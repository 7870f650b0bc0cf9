package metadata

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"tunebox/internal/config"

	"github.com/dhowden/tag"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// Picture is an embedded cover image
type Picture struct {
	Data        []byte
	ContentType string
	Ext         string // with leading dot
}

// Result is what could be learned from an audio file. Fields are empty when
// the file carries no tags.
type Result struct {
	Title    string
	Artist   string
	Album    string
	Duration int // in seconds
	// DurationEstimated is set when Duration is a random placeholder rather
	// than a measured value. Callers must not rely on its accuracy.
	DurationEstimated bool
	Picture           *Picture
}

// Extractor handles metadata extraction from audio files
type Extractor struct {
	logger         *logrus.Logger
	placeholderMin int
	placeholderMax int
	intn           func(n int) int
}

// NewExtractor creates a new metadata extractor
func NewExtractor(cfg config.LibraryConfig, logger *logrus.Logger) *Extractor {
	return &Extractor{
		logger:         logger,
		placeholderMin: cfg.PlaceholderMinSeconds,
		placeholderMax: cfg.PlaceholderMaxSeconds,
		intn:           rand.Intn,
	}
}

// Probe reads tags and measures duration. It never fails: unreadable tags
// leave the text fields empty and an unmeasurable duration is replaced by a
// placeholder.
func (e *Extractor) Probe(r io.ReadSeeker, size int64, contentType string) Result {
	startTime := time.Now()
	var result Result

	if _, err := r.Seek(0, io.SeekStart); err == nil {
		if m, err := tag.ReadFrom(r); err == nil {
			result.Title = strings.TrimSpace(m.Title())
			result.Artist = strings.TrimSpace(m.Artist())
			result.Album = strings.TrimSpace(m.Album())
			result.Picture = pictureFrom(m.Picture())
		} else {
			e.logger.WithError(err).Debug("No readable tags")
		}
	}

	duration, err := e.measureDuration(r, size, NormalizeContentType(contentType))
	if err != nil || duration <= 0 {
		result.Duration = e.Placeholder()
		result.DurationEstimated = true
		e.logger.WithFields(logrus.Fields{
			"contentType": contentType,
			"error":       err,
			"placeholder": result.Duration,
		}).Warn("Failed to calculate duration, using placeholder")
	} else {
		result.Duration = duration
	}

	e.logger.WithFields(logrus.Fields{
		"title":          result.Title,
		"artist":         result.Artist,
		"duration":       result.Duration,
		"hasPicture":     result.Picture != nil,
		"processingTime": time.Since(startTime),
	}).Debug("Probed audio metadata")

	return result
}

// Placeholder returns a random duration within the configured bounds
func (e *Extractor) Placeholder() int {
	span := e.placeholderMax - e.placeholderMin + 1
	if span <= 1 {
		return e.placeholderMin
	}
	return e.placeholderMin + e.intn(span)
}

func (e *Extractor) measureDuration(r io.ReadSeeker, size int64, contentType string) (int, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	switch contentType {
	case "audio/mpeg":
		return durationMP3(r)
	case "audio/flac":
		return durationFLAC(r)
	case "audio/wav":
		return durationWAV(r, size)
	default:
		return 0, fmt.Errorf("unsupported format: %s", contentType)
	}
}

// MP3 duration by walking every frame header
func durationMP3(r io.Reader) (int, error) {
	dec := mp3.NewDecoder(r)
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) || frames > 0 {
				break // partial decode; use what we have
			}
			return 0, fmt.Errorf("no decodable mp3 frames: %w", err)
		}
		total += fr.Duration()
		frames++
	}
	if frames == 0 {
		return 0, fmt.Errorf("no mp3 frames found")
	}
	return int(total.Seconds() + 0.5), nil
}

// FLAC duration via STREAMINFO metadata block
func durationFLAC(r io.Reader) (int, error) {
	stream, err := flac.New(r)
	if err != nil {
		return 0, err
	}
	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		secs := float64(si.NSamples) / float64(si.SampleRate)
		return int(secs + 0.5), nil
	}
	return 0, fmt.Errorf("flac stream missing sample info")
}

// WAV duration from the fmt chunk and the PCM payload size
func durationWAV(r io.ReadSeeker, size int64) (int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}
	const headerSize = 44
	pcmBytes := size - headerSize
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	bytesPerSampleFrame := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if bytesPerSampleFrame <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	sampleFrames := pcmBytes / bytesPerSampleFrame
	secs := float64(sampleFrames) / float64(dec.SampleRate)
	return int(secs + 0.5), nil
}

func pictureFrom(p *tag.Picture) *Picture {
	if p == nil || len(p.Data) == 0 {
		return nil
	}
	detected := mimetype.Detect(p.Data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return nil
	}
	return &Picture{
		Data:        p.Data,
		ContentType: detected.String(),
		Ext:         detected.Extension(),
	}
}
