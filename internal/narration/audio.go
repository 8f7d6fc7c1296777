package narration

import (
	"context"
	"time"
)

// Artifact is a synthesized narration audio file.
type Artifact struct {
	Path        string    `json:"path"`
	Provider    string    `json:"provider"`
	Text        string    `json:"text"`
	DurationSec float64   `json:"duration_sec"`
	CreatedAt   time.Time `json:"created_at"`
}

// Synthesizer turns story text into narration audio.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) (Artifact, error)
}

// PlayOptions controls how a track is played.
type PlayOptions struct {
	// Volume is relative to full narration volume (0..1).
	Volume float64
	// Loop restarts the track at its end until stopped.
	Loop bool
}

// Player loads audio files into playable tracks.
type Player interface {
	Load(ctx context.Context, path string, opts PlayOptions) (Track, error)
}

// Track is a loaded audio handle.
//
// Done is closed when playback ends, either naturally or through Stop.
// Err reports a playback failure after Done is closed; it is nil for a
// natural end or an explicit Stop. Stop is safe to call more than once and
// on a track that was never played.
type Track interface {
	Play() error
	Stop()
	Done() <-chan struct{}
	Err() error
}

// Effects receives non-essential presentation effects.
type Effects interface {
	Celebrate()
}

// ImageSource provides the story image of the currently selected record.
type ImageSource interface {
	SelectedStoryImage() []byte
}

// Clock schedules callbacks. It exists so the visibility cycle can be
// driven deterministically in tests.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock {
	return realClock{}
}

type noEffects struct{}

func (noEffects) Celebrate() {}
