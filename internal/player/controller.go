// Package player drives a single playback slot with a FIFO queue. The
// controller owns the state; a Media implementation performs the actual
// playback and reports back through MediaReady, TimeUpdate, Ended and
// MediaError.
//
// Every renderer attached to a RemoteMedia reports the same events, so each
// event names the source it refers to. Events for another source, or for a
// state they cannot apply to, are dropped. An empty source means the
// currently loaded one.
package player

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"sync"
	"time"

	"tunebox/pkg/models"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoCurrentTrack is returned by Resume when nothing has been loaded
	ErrNoCurrentTrack = errors.New("no current track")
	// ErrInvalidVolume is returned for volumes outside 0.0 to 1.0
	ErrInvalidVolume = errors.New("volume must be between 0 and 1")
)

// Media is the element that actually plays audio. Implementations must not
// call back into the Controller from within these methods.
type Media interface {
	Load(src string) error
	Play() error
	Pause()
	Seek(seconds float64)
	SetVolume(volume float64)
}

// SourceFunc maps a track to the URL the media element should load
type SourceFunc func(track models.Track) string

// AudioSource returns the delivery URL for a track under apiPrefix
func AudioSource(apiPrefix string) SourceFunc {
	return func(track models.Track) string {
		return apiPrefix + "/audio/" + url.PathEscape(track.Filename)
	}
}

// Controller is the playback state machine. It is safe for concurrent use.
type Controller struct {
	mutex  sync.Mutex
	media  Media
	source SourceFunc
	logger *logrus.Logger

	status    Status
	current   *models.Track
	src       string
	queue     []models.Track
	progress  float64
	duration  float64
	volume    float64
	lastError string
	updatedAt time.Time

	updates broadcaster[Snapshot]
}

// NewController creates an idle controller at the default volume
func NewController(media Media, source SourceFunc, logger *logrus.Logger) *Controller {
	if source == nil {
		source = AudioSource("/api")
	}
	c := &Controller{
		media:     media,
		source:    source,
		logger:    logger,
		status:    StatusIdle,
		volume:    DefaultVolume,
		updatedAt: time.Now(),
	}
	media.SetVolume(DefaultVolume)
	return c
}

// Play starts a track. Playing the current track again resumes it instead of
// restarting. Load failures are not returned: they are recorded in LastError
// and playback advances to the next queued track.
func (c *Controller) Play(track models.Track) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.current != nil && c.current.ID == track.ID {
		return c.resumeLocked()
	}
	c.loadLocked(track)
	return nil
}

// Pause pauses playback. It is a no-op unless playing.
func (c *Controller) Pause() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.status != StatusPlaying {
		return
	}
	c.media.Pause()
	c.setStatusLocked(StatusPaused)
}

// Resume continues a paused track
func (c *Controller) Resume() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.resumeLocked()
}

// Next plays the head of the queue. With an empty queue playback pauses.
func (c *Controller) Next() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.nextLocked()
}

// Previous restarts the current track
func (c *Controller) Previous() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.media.Seek(0)
	c.progress = 0
	c.notifyLocked()
}

// Seek moves the playback position
func (c *Controller) Seek(position float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	position = c.clampPosition(position)
	c.media.Seek(position)
	c.progress = position
	c.notifyLocked()
}

// SetVolume sets the linear volume
func (c *Controller) SetVolume(volume float64) error {
	if math.IsNaN(volume) || volume < 0 || volume > 1 {
		return fmt.Errorf("%v: %w", volume, ErrInvalidVolume)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.media.SetVolume(volume)
	c.volume = volume
	c.notifyLocked()
	return nil
}

// Enqueue appends a track to the queue
func (c *Controller) Enqueue(track models.Track) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.queue = append(c.queue, track)
	c.notifyLocked()
}

// ClearQueue empties the queue
func (c *Controller) ClearQueue() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.queue = nil
	c.notifyLocked()
}

// Queue returns a copy of the queued tracks
func (c *Controller) Queue() []models.Track {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return append([]models.Track(nil), c.queue...)
}

// MediaReady reports that the media element knows the loaded track's
// duration and can start playing.
func (c *Controller) MediaReady(src string, duration float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.status != StatusLoading || c.staleLocked(src) {
		return
	}
	if duration > 0 && !math.IsInf(duration, 0) {
		c.duration = duration
	}
	if err := c.media.Play(); err != nil {
		c.failLocked(err)
		return
	}
	c.setStatusLocked(StatusPlaying)
}

// TimeUpdate reports the media element's playback position
func (c *Controller) TimeUpdate(src string, position float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.status != StatusPlaying && c.status != StatusPaused {
		return
	}
	if c.staleLocked(src) {
		return
	}
	c.progress = c.clampPosition(position)
	c.notifyLocked()
}

// Ended reports that the current track played to the end. Only the first
// report for a playing track advances the queue.
func (c *Controller) Ended(src string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.status != StatusPlaying || c.staleLocked(src) {
		return
	}
	c.nextLocked()
}

// MediaError reports a decode or network failure of the current track
func (c *Controller) MediaError(src, message string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.status != StatusLoading && c.status != StatusPlaying {
		return
	}
	if c.staleLocked(src) {
		return
	}
	c.failLocked(errors.New(message))
}

func (c *Controller) staleLocked(src string) bool {
	return src != "" && src != c.src
}

// Snapshot returns the current state
func (c *Controller) Snapshot() Snapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.snapshotLocked()
}

// Subscribe adds a listener for state snapshots
func (c *Controller) Subscribe() <-chan Snapshot {
	return c.updates.Subscribe()
}

// Unsubscribe removes a listener added with Subscribe
func (c *Controller) Unsubscribe(ch <-chan Snapshot) {
	c.updates.Unsubscribe(ch)
}

func (c *Controller) resumeLocked() error {
	if c.current == nil {
		return ErrNoCurrentTrack
	}
	if c.status != StatusPaused {
		return nil
	}
	if err := c.media.Play(); err != nil {
		c.lastError = fmt.Sprintf("Could not resume %q: %v", c.current.Title, err)
		c.notifyLocked()
		return fmt.Errorf("failed to resume playback: %w", err)
	}
	c.setStatusLocked(StatusPlaying)
	return nil
}

func (c *Controller) loadLocked(track models.Track) {
	c.media.Pause()
	c.current = &track
	c.progress = 0
	c.duration = 0
	c.lastError = ""
	c.status = StatusLoading
	c.src = c.source(track)

	c.logger.WithFields(logrus.Fields{
		"track_id": track.ID,
		"title":    track.Title,
	}).Debug("Loading track")

	if err := c.media.Load(c.src); err != nil {
		c.failLocked(err)
		return
	}
	c.notifyLocked()
}

func (c *Controller) nextLocked() {
	if len(c.queue) == 0 {
		if c.current != nil {
			c.media.Pause()
			c.setStatusLocked(StatusPaused)
		}
		return
	}
	head := c.queue[0]
	c.queue = c.queue[1:]
	c.loadLocked(head)
}

// failLocked records a user-visible error and moves on. Each failure consumes
// one queued track, so this terminates.
func (c *Controller) failLocked(err error) {
	title := ""
	if c.current != nil {
		title = c.current.Title
	}
	c.logger.WithError(err).WithField("title", title).Warn("Playback failed, skipping to next track")

	message := fmt.Sprintf("Could not play %q: %v", title, err)
	c.nextLocked()
	// A failure of the next track has already recorded its own message
	if c.lastError == "" {
		c.lastError = message
	}
	c.notifyLocked()
}

func (c *Controller) setStatusLocked(status Status) {
	c.status = status
	c.notifyLocked()
}

func (c *Controller) clampPosition(position float64) float64 {
	if position < 0 || math.IsNaN(position) {
		return 0
	}
	if c.duration > 0 && position > c.duration {
		return c.duration
	}
	return position
}

func (c *Controller) notifyLocked() {
	c.updatedAt = time.Now()
	c.updates.publish(c.snapshotLocked())
}

func (c *Controller) snapshotLocked() Snapshot {
	var track *models.Track
	if c.current != nil {
		t := *c.current
		track = &t
	}
	return Snapshot{
		Status:       c.status,
		IsPlaying:    c.status == StatusPlaying,
		Track:        track,
		Source:       c.src,
		Queue:        append([]models.Track{}, c.queue...),
		Progress:     c.progress,
		Duration:     c.duration,
		Percent:      Percentage(c.progress, c.duration),
		ProgressText: FormatTime(c.progress),
		DurationText: FormatTime(c.duration),
		Volume:       c.volume,
		LastError:    c.lastError,
		UpdatedAt:    c.updatedAt,
	}
}
