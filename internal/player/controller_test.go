package player

import (
	"errors"
	"testing"
	"time"

	"tunebox/internal/logging"
	"tunebox/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMedia struct {
	calls   []string
	src     string
	volume  float64
	seekPos float64

	loadErr map[string]error
	playErr error
}

func (f *fakeMedia) Load(src string) error {
	f.calls = append(f.calls, "load")
	f.src = src
	return f.loadErr[src]
}

func (f *fakeMedia) Play() error {
	f.calls = append(f.calls, "play")
	return f.playErr
}

func (f *fakeMedia) Pause() { f.calls = append(f.calls, "pause") }

func (f *fakeMedia) Seek(seconds float64) {
	f.calls = append(f.calls, "seek")
	f.seekPos = seconds
}

func (f *fakeMedia) SetVolume(v float64) { f.volume = v }

func track(id int, filename string) models.Track {
	return models.Track{ID: id, Title: filename, Artist: "Artist", Duration: 200, Filename: filename}
}

func newTestController() (*Controller, *fakeMedia) {
	media := &fakeMedia{loadErr: map[string]error{}}
	return NewController(media, AudioSource("/api"), logging.Discard()), media
}

func TestInitialState(t *testing.T) {
	c, media := newTestController()

	snap := c.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Nil(t, snap.Track)
	assert.Equal(t, DefaultVolume, snap.Volume)
	assert.Equal(t, DefaultVolume, media.volume)
	assert.Empty(t, snap.Queue)
	assert.Equal(t, "0:00", snap.ProgressText)
}

func TestPlayLoadsAndStartsOnReady(t *testing.T) {
	c, media := newTestController()

	require.NoError(t, c.Play(track(1, "a.mp3")))
	assert.Equal(t, StatusLoading, c.Snapshot().Status)
	assert.Equal(t, "/api/audio/a.mp3", media.src)

	c.MediaReady("", 180)
	snap := c.Snapshot()
	assert.Equal(t, StatusPlaying, snap.Status)
	assert.True(t, snap.IsPlaying)
	assert.Equal(t, 180.0, snap.Duration)
	assert.Equal(t, "3:00", snap.DurationText)
}

func TestPlaySameTrackResumes(t *testing.T) {
	c, media := newTestController()
	a := track(1, "a.mp3")

	require.NoError(t, c.Play(a))
	c.MediaReady("", 200)
	c.TimeUpdate("", 42)

	// Playing the same track again must not reload or reset progress
	loads := 0
	require.NoError(t, c.Play(a))
	for _, call := range media.calls {
		if call == "load" {
			loads++
		}
	}
	assert.Equal(t, 1, loads)
	assert.Equal(t, 42.0, c.Snapshot().Progress)
	assert.Equal(t, StatusPlaying, c.Snapshot().Status)

	c.Pause()
	require.NoError(t, c.Play(a))
	snap := c.Snapshot()
	assert.Equal(t, StatusPlaying, snap.Status)
	assert.Equal(t, 42.0, snap.Progress)
}

func TestPauseAndResume(t *testing.T) {
	c, media := newTestController()

	assert.ErrorIs(t, c.Resume(), ErrNoCurrentTrack)

	c.Pause()
	assert.Equal(t, StatusIdle, c.Snapshot().Status, "pause is a no-op when idle")

	require.NoError(t, c.Play(track(1, "a.mp3")))
	c.MediaReady("", 100)
	c.Pause()
	assert.Equal(t, StatusPaused, c.Snapshot().Status)

	media.playErr = errors.New("autoplay blocked")
	err := c.Resume()
	require.Error(t, err)
	assert.Equal(t, StatusPaused, c.Snapshot().Status)
	assert.NotEmpty(t, c.Snapshot().LastError)

	media.playErr = nil
	require.NoError(t, c.Resume())
	assert.Equal(t, StatusPlaying, c.Snapshot().Status)
	require.NoError(t, c.Resume(), "resume while playing is a no-op")
}

func TestNextOnEmptyQueuePauses(t *testing.T) {
	c, _ := newTestController()

	c.Next()
	assert.Equal(t, StatusIdle, c.Snapshot().Status, "stays idle without a current track")

	require.NoError(t, c.Play(track(1, "a.mp3")))
	c.MediaReady("", 100)
	c.Next()

	snap := c.Snapshot()
	assert.Equal(t, StatusPaused, snap.Status)
	require.NotNil(t, snap.Track)
	assert.Equal(t, 1, snap.Track.ID)
}

func TestQueueAdvancesOnEnded(t *testing.T) {
	c, media := newTestController()

	require.NoError(t, c.Play(track(1, "a.mp3")))
	c.MediaReady("", 100)
	c.Enqueue(track(2, "b.mp3"))
	c.Enqueue(track(3, "c.mp3"))
	assert.Len(t, c.Queue(), 2)

	c.TimeUpdate("", 99)
	c.Ended("")

	snap := c.Snapshot()
	assert.Equal(t, StatusLoading, snap.Status)
	assert.Equal(t, 2, snap.Track.ID)
	assert.Zero(t, snap.Progress)
	assert.Zero(t, snap.Duration)
	assert.Equal(t, "/api/audio/b.mp3", media.src)
	assert.Len(t, snap.Queue, 1)

	c.ClearQueue()
	assert.Empty(t, c.Queue())
}

func TestDuplicateEndedAdvancesOnce(t *testing.T) {
	c, _ := newTestController()

	require.NoError(t, c.Play(track(1, "a.mp3")))
	c.MediaReady("", 200)
	c.Enqueue(track(2, "b.mp3"))
	c.Enqueue(track(3, "c.mp3"))

	// Two renderers report the end of the same track
	c.Ended("/api/audio/a.mp3")
	c.Ended("/api/audio/a.mp3")

	snap := c.Snapshot()
	require.NotNil(t, snap.Track)
	assert.Equal(t, 2, snap.Track.ID)
	assert.Equal(t, StatusLoading, snap.Status)
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, 3, snap.Queue[0].ID)

	// Without a source the status guard alone drops the repeat
	c.MediaReady("", 100)
	c.Ended("")
	c.Ended("")
	snap = c.Snapshot()
	assert.Equal(t, 3, snap.Track.ID)
	assert.Empty(t, snap.Queue)
}

func TestEventsForOtherSourceAreIgnored(t *testing.T) {
	c, _ := newTestController()

	require.NoError(t, c.Play(track(1, "a.mp3")))
	c.MediaReady("", 200)
	c.TimeUpdate("", 150)
	c.Enqueue(track(2, "b.mp3"))
	c.Next()
	assert.Equal(t, "/api/audio/b.mp3", c.Snapshot().Source)

	// Late reports from the previous track
	c.TimeUpdate("/api/audio/a.mp3", 151)
	c.MediaReady("/api/audio/a.mp3", 200)
	c.MediaError("/api/audio/a.mp3", "aborted")

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.Track.ID)
	assert.Equal(t, StatusLoading, snap.Status)
	assert.Zero(t, snap.Progress)
	assert.Empty(t, snap.LastError)

	// Progress is not taken while the new source is still loading
	c.TimeUpdate("", 12)
	assert.Zero(t, c.Snapshot().Progress)

	c.MediaReady("/api/audio/b.mp3", 120)
	c.TimeUpdate("/api/audio/b.mp3", 12)
	snap = c.Snapshot()
	assert.Equal(t, StatusPlaying, snap.Status)
	assert.Equal(t, 12.0, snap.Progress)

	// Errors only apply while loading or playing
	c.Pause()
	c.MediaError("", "stalled")
	assert.Equal(t, StatusPaused, c.Snapshot().Status)
	assert.Empty(t, c.Snapshot().LastError)
}

func TestLoadFailureSkipsToNext(t *testing.T) {
	c, media := newTestController()
	media.loadErr["/api/audio/bad.mp3"] = errors.New("network error")

	c.Enqueue(track(2, "good.mp3"))
	require.NoError(t, c.Play(track(1, "bad.mp3")))

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.Track.ID)
	assert.Equal(t, StatusLoading, snap.Status)
	assert.Contains(t, snap.LastError, "bad.mp3")
}

func TestMediaErrorWithEmptyQueue(t *testing.T) {
	c, _ := newTestController()

	c.MediaError("", "ignored without a track")
	assert.Equal(t, StatusIdle, c.Snapshot().Status)

	require.NoError(t, c.Play(track(1, "a.mp3")))
	c.MediaError("", "decode error")

	snap := c.Snapshot()
	assert.Equal(t, StatusPaused, snap.Status)
	assert.Contains(t, snap.LastError, "decode error")
}

func TestPlayFailureOnReadyAdvances(t *testing.T) {
	c, media := newTestController()
	media.playErr = errors.New("not allowed")
	c.Enqueue(track(2, "b.mp3"))

	require.NoError(t, c.Play(track(1, "a.mp3")))
	c.MediaReady("", 100)

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.Track.ID)
	assert.Equal(t, StatusLoading, snap.Status)
}

func TestSeekAndPrevious(t *testing.T) {
	c, media := newTestController()
	require.NoError(t, c.Play(track(1, "a.mp3")))
	c.MediaReady("", 200)

	c.Seek(50)
	assert.Equal(t, 50.0, media.seekPos)
	snap := c.Snapshot()
	assert.Equal(t, 50.0, snap.Progress)
	assert.Equal(t, 25.0, snap.Percent)
	assert.Equal(t, "0:50", snap.ProgressText)

	c.Seek(-10)
	assert.Zero(t, c.Snapshot().Progress)

	c.Seek(500)
	assert.Equal(t, 200.0, c.Snapshot().Progress)

	c.Previous()
	assert.Zero(t, media.seekPos)
	assert.Zero(t, c.Snapshot().Progress)
}

func TestSetVolume(t *testing.T) {
	c, media := newTestController()

	require.NoError(t, c.SetVolume(0.25))
	assert.Equal(t, 0.25, media.volume)
	assert.Equal(t, 0.25, c.Snapshot().Volume)

	for _, v := range []float64{-0.1, 1.5} {
		assert.ErrorIs(t, c.SetVolume(v), ErrInvalidVolume)
	}
	assert.Equal(t, 0.25, c.Snapshot().Volume)
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	c, _ := newTestController()
	updates := c.Subscribe()

	require.NoError(t, c.Play(track(1, "a.mp3")))

	select {
	case snap := <-updates:
		assert.Equal(t, StatusLoading, snap.Status)
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
	}

	c.Unsubscribe(updates)
	_, open := <-updates
	assert.False(t, open, "channel should be closed after Unsubscribe")
}

func TestFormatTimeAndPercentage(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00"},
		{5, "0:05"},
		{65.9, "1:05"},
		{600, "10:00"},
		{-3, "0:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTime(tt.seconds))
	}

	assert.Zero(t, Percentage(10, 0))
	assert.Equal(t, 50.0, Percentage(30, 60))
	assert.Equal(t, 100.0, Percentage(90, 60))
}

func TestRemoteMediaBroadcasts(t *testing.T) {
	remote := NewRemoteMedia()
	commands := remote.Subscribe()
	defer remote.Unsubscribe(commands)
	assert.Equal(t, 1, remote.Renderers())

	c := NewController(remote, AudioSource("/api"), logging.Discard())
	require.NoError(t, c.Play(track(7, "song one.mp3")))

	var received []Command
	for len(received) < 3 {
		select {
		case cmd := <-commands:
			received = append(received, cmd)
		case <-time.After(time.Second):
			t.Fatalf("only received %v", received)
		}
	}
	assert.Equal(t, CommandSetVolume, received[0].Type)
	assert.Equal(t, CommandPause, received[1].Type)
	assert.Equal(t, Command{Type: CommandLoad, Src: "/api/audio/song%20one.mp3"}, received[2])

	replay := remote.Replay()
	require.Len(t, replay, 2)
	assert.Equal(t, CommandSetVolume, replay[0].Type)
	assert.Equal(t, CommandLoad, replay[1].Type)
}
