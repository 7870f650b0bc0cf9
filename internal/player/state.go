package player

import (
	"fmt"
	"math"
	"time"

	"tunebox/pkg/models"
)

// Status is the playback slot's state
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
)

// DefaultVolume is the initial linear volume
const DefaultVolume = 0.7

// Snapshot is a point-in-time copy of the controller state
type Snapshot struct {
	Status       Status         `json:"status"`
	IsPlaying    bool           `json:"isPlaying"`
	Track        *models.Track  `json:"track,omitempty"`
	Source       string         `json:"src,omitempty"` // what renderers should have loaded
	Queue        []models.Track `json:"queue"`
	Progress     float64        `json:"progress"` // in seconds
	Duration     float64        `json:"duration"` // in seconds
	Percent      float64        `json:"percent"`  // 0 to 100
	ProgressText string         `json:"progressText"`
	DurationText string         `json:"durationText"`
	Volume       float64        `json:"volume"` // 0.0 to 1.0
	LastError    string         `json:"lastError,omitempty"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Percentage returns progress as 0-100, or 0 when the duration is unknown
func Percentage(progress, duration float64) float64 {
	if duration <= 0 || math.IsNaN(duration) || math.IsNaN(progress) {
		return 0
	}
	p := progress / duration * 100
	return math.Max(0, math.Min(100, p))
}

// FormatTime renders seconds as m:ss
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
