package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskKind selects which streams of the source are retrieved.
type TaskKind string

const (
	KindVideoAudio TaskKind = "video_audio"
	KindAudioOnly  TaskKind = "audio_only"
	KindVideoOnly  TaskKind = "video_only"
)

// SplitConfig holds the post-processing options for one task.
type SplitConfig struct {
	Enabled         bool
	SegmentDuration int    // seconds per segment
	TitlePrefix     string // label rendered as "<prefix> <n>" on each segment
	OverlayTitle    string // burned-in title text; falls back to the video title
	HeadTrim        int    // seconds dropped from the start of the source
	TailTrim        int    // seconds dropped from the end of the source
	SpeedFactor     float64
	Width           int // target width; 0 means no ceiling
	Height          int // target height; 0 means no ceiling
}

// Task represents a single retrieval plus optional post-processing unit of work.
// The scheduler hands out copies; only its coordinator mutates the stored record.
type Task struct {
	ID           string
	URL          string
	Title        string
	Kind         TaskKind
	OutputFormat string
	Status       TaskStatus
	Progress     float64 // 0 to 100
	Speed        string  // human readable rate (e.g. "1.2 MB/s")
	ETA          string  // human readable ETA
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    time.Time
	CompletedAt  time.Time

	Split      SplitConfig
	OutputPath string
	Segments   []string // produced segment paths, ordered by index
}

// TaskIDPrefix prefixes every generated task id.
const TaskIDPrefix = "task-"

// NewTaskID generates a unique task id using UUID v7 so ids sort chronologically.
func NewTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf(TaskIDPrefix+"%d", time.Now().UnixNano())
	}
	return TaskIDPrefix + id.String()
}

// DisplayTitle returns the title, the output filename, or the URL in order of
// preference.
func (t *Task) DisplayTitle() string {
	if t.Title != "" && !strings.HasPrefix(t.Title, "http") {
		return t.Title
	}
	if t.OutputPath != "" {
		parts := strings.FieldsFunc(t.OutputPath, func(r rune) bool {
			return r == '/' || r == '\\'
		})
		if len(parts) > 0 {
			filename := parts[len(parts)-1]
			if idx := strings.LastIndex(filename, "."); idx > 0 {
				filename = filename[:idx]
			}
			return filename
		}
	}
	return t.URL
}

// Clone returns a snapshot copy safe to hand to event subscribers.
func (t *Task) Clone() Task {
	c := *t
	c.Segments = append([]string(nil), t.Segments...)
	return c
}
