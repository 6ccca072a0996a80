// Package capture turns microphone audio into one finalized transcript per
// activation. It is the voice-input half of the console assistant: record,
// endpoint on silence, recognize, deliver exactly one transcript or one
// error. Interim recognition results are never surfaced.
package capture

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrUnsupported means no speech-capture capability is available on this
	// host. It is reported synchronously, before any recording state is
	// entered, and is not retried.
	ErrUnsupported = errors.New("capture: speech capture is not available")

	// ErrRecording means an activation is already in flight.
	ErrRecording = errors.New("capture: already recording")

	// ErrNoSpeech means the activation ended without hearing any speech.
	ErrNoSpeech = errors.New("capture: no speech detected")
)

// Options configures recognition for one activation.
type Options struct {
	Model      string // provider-specific model
	Language   string // ISO language code
	SampleRate int    // PCM sample rate in Hz
}

// Transcript is the finalized result of one activation.
type Transcript struct {
	Text     string  // full transcribed text
	Language string  // detected or specified language
	Duration float64 // audio duration in seconds
}

// TranscriptDelta is an incremental update from a streaming recognizer.
// Deltas stay inside the adapter; only the finalized text leaves it.
type TranscriptDelta struct {
	Text    string
	IsFinal bool
}

// Recognizer converts a complete recorded utterance to text.
type Recognizer interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts 16-bit little-endian mono PCM to text.
	Transcribe(ctx context.Context, audio io.Reader, opts Options) (*Transcript, error)
}

// StreamingRecognizer transcribes audio incrementally over a live session.
// When available it is preferred over batch recognition: audio is forwarded
// while the user is still speaking.
type StreamingRecognizer interface {
	// OpenStream starts a recognition session.
	OpenStream(ctx context.Context, opts Options) (RecognitionStream, error)
}

// RecognitionStream is one live recognition session.
type RecognitionStream interface {
	// SendAudio forwards a chunk of PCM.
	SendAudio(data []byte) error

	// Finalize flushes buffered audio and asks for the final segments.
	Finalize() error

	// Transcripts is the channel of incremental updates. It is closed when
	// the session ends.
	Transcripts() <-chan TranscriptDelta

	// Close releases the session.
	Close() error
}

// Source is a microphone. Open begins capture and returns a reader of
// 16-bit little-endian mono PCM at SampleRate. Closing the reader stops
// capture and unblocks any in-flight Read.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	SampleRate() int
}
