// Package speech speaks assistant replies aloud. It owns the single global
// utterance slot: starting a new utterance pre-empts whatever is currently
// playing, and the pre-empted utterance still reports its end exactly once.
package speech

import (
	"context"
	"errors"
)

// ErrUnsupported means no speech output capability is available on this host.
var ErrUnsupported = errors.New("speech: speech output is not available")

// Options configures synthesis.
type Options struct {
	Voice      string  // provider voice ID
	Language   string  // ISO language code
	Speed      float64 // playback speed multiplier, 0 means provider default
	Volume     float64 // output gain multiplier, 0 means provider default
	SampleRate int     // PCM sample rate in Hz
}

// Synthesizer converts text to 16-bit little-endian mono PCM.
type Synthesizer interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize renders text as raw PCM at opts.SampleRate.
	Synthesize(ctx context.Context, text string, opts Options) ([]byte, error)
}

// Playback is one clip being played.
type Playback interface {
	// Pause suspends playback, keeping position.
	Pause()

	// Resume continues a paused playback.
	Resume()

	// Stop abandons the clip.
	Stop()

	// Done is closed when the clip finishes or is stopped.
	Done() <-chan struct{}
}

// Player turns PCM clips into audible playback.
type Player interface {
	Play(pcm []byte) (Playback, error)
	SampleRate() int
}
