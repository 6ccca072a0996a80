package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Config tunes the silence endpointer.
type Config struct {
	// EnergyThreshold is the RMS level above which a chunk counts as speech.
	EnergyThreshold float64

	// SilenceWindow is how much trailing silence finalizes the utterance.
	SilenceWindow time.Duration

	// NoSpeechWindow is how long to wait for speech to begin before giving
	// up with ErrNoSpeech.
	NoSpeechWindow time.Duration

	// MaxUtterance caps a single activation after speech has begun.
	MaxUtterance time.Duration
}

// DefaultConfig returns endpointer defaults suitable for dictated queries.
func DefaultConfig() Config {
	return Config{
		EnergyThreshold: 0.02,
		SilenceWindow:   800 * time.Millisecond,
		NoSpeechWindow:  8 * time.Second,
		MaxUtterance:    15 * time.Second,
	}
}

// Callbacks receive the outcome of one activation. Exactly one of
// OnTranscript or OnError fires per activation, unless the activation was
// cancelled, in which case neither does. OnRecording always brackets the
// activation.
type Callbacks struct {
	OnRecording  func(recording bool)
	OnTranscript func(t Transcript)
	OnError      func(err error)
}

// Adapter is the one-shot speech capture state machine: idle → recording →
// idle. A successful activation delivers exactly one finalized transcript.
type Adapter struct {
	source     Source
	recognizer Recognizer
	streaming  StreamingRecognizer
	cfg        Config
	opts       Options
	sink       *recordingSink
	logger     *slog.Logger

	mu        sync.Mutex
	recording bool
	cancelled bool
	cancel    context.CancelFunc
	reader    io.ReadCloser
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithStreaming prefers a live recognition session over batch transcription.
func WithStreaming(sr StreamingRecognizer) Option {
	return func(a *Adapter) { a.streaming = sr }
}

// WithConfig overrides the endpointer defaults.
func WithConfig(cfg Config) Option {
	return func(a *Adapter) { a.cfg = cfg }
}

// WithRecognitionOptions sets model and language for recognition.
func WithRecognitionOptions(opts Options) Option {
	return func(a *Adapter) { a.opts = opts }
}

// WithRecordingDir keeps each finalized utterance as a WAV file under dir.
func WithRecordingDir(dir string) Option {
	return func(a *Adapter) { a.sink = &recordingSink{dir: dir} }
}

// WithLogger sets the adapter logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// New creates a capture adapter over a microphone source and a recognizer.
func New(source Source, recognizer Recognizer, opts ...Option) *Adapter {
	a := &Adapter{
		source:     source,
		recognizer: recognizer,
		cfg:        DefaultConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Recording reports whether an activation is in flight.
func (a *Adapter) Recording() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recording
}

// Start begins one activation. It is rejected with ErrRecording while one
// is already in flight. A source that cannot be opened is reported
// synchronously, before any recording state is entered.
func (a *Adapter) Start(ctx context.Context, cb Callbacks) error {
	a.mu.Lock()
	if a.recording {
		a.mu.Unlock()
		return ErrRecording
	}
	a.mu.Unlock()

	reader, err := a.source.Open(ctx)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	if a.recording {
		// Lost the race to another Start.
		a.mu.Unlock()
		cancel()
		reader.Close()
		return ErrRecording
	}
	a.recording = true
	a.cancelled = false
	a.cancel = cancel
	a.reader = reader
	a.mu.Unlock()

	if cb.OnRecording != nil {
		cb.OnRecording(true)
	}

	go a.run(ctx, reader, cb)
	return nil
}

// Stop is idempotent. While idle it is a no-op; while recording it cancels
// the activation without producing a transcript or an error.
func (a *Adapter) Stop() {
	a.mu.Lock()
	if !a.recording {
		a.mu.Unlock()
		return
	}
	a.cancelled = true
	cancel := a.cancel
	reader := a.reader
	a.mu.Unlock()

	cancel()
	reader.Close() // unblocks the read loop
}

func (a *Adapter) run(ctx context.Context, reader io.ReadCloser, cb Callbacks) {
	defer func() {
		a.mu.Lock()
		a.recording = false
		a.cancel = nil
		a.reader = nil
		a.mu.Unlock()
		if cb.OnRecording != nil {
			cb.OnRecording(false)
		}
	}()

	opts := a.opts
	if opts.SampleRate == 0 {
		opts.SampleRate = a.source.SampleRate()
	}

	var stream RecognitionStream
	var finals *finalCollector
	if a.streaming != nil {
		s, err := a.streaming.OpenStream(ctx, opts)
		if err != nil {
			a.logger.Warn("streaming recognition unavailable, falling back to batch", "error", err)
		} else {
			stream = s
			finals = collectFinals(s.Transcripts())
			defer s.Close()
		}
	}

	pcm, spoke, err := a.record(ctx, reader, stream)
	reader.Close()

	if a.wasCancelled() {
		return
	}
	if err != nil {
		a.deliverError(cb, err)
		return
	}
	if !spoke {
		a.deliverError(cb, ErrNoSpeech)
		return
	}

	if a.sink != nil {
		if path, err := a.sink.save(pcm, opts.SampleRate); err != nil {
			a.logger.Warn("keep recording failed", "error", err)
		} else {
			a.logger.Debug("recording saved", "path", path)
		}
	}

	transcript, err := a.recognize(ctx, pcm, stream, finals, opts)
	if a.wasCancelled() {
		return
	}
	if err != nil {
		a.deliverError(cb, err)
		return
	}
	if strings.TrimSpace(transcript.Text) == "" {
		a.deliverError(cb, ErrNoSpeech)
		return
	}

	if cb.OnTranscript != nil {
		cb.OnTranscript(*transcript)
	}
}

// record pulls PCM from the reader until trailing silence, the utterance
// cap, or cancellation ends the activation. It reports whether speech was
// heard at all.
func (a *Adapter) record(ctx context.Context, reader io.Reader, stream RecognitionStream) (pcm []byte, spoke bool, err error) {
	start := time.Now()
	var speechAt, lastVoice time.Time

	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return pcm, spoke, nil
		}

		n, readErr := reader.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			pcm = append(pcm, chunk...)
			if stream != nil {
				if sendErr := stream.SendAudio(chunk); sendErr != nil {
					return pcm, spoke, fmt.Errorf("send audio: %w", sendErr)
				}
			}

			now := time.Now()
			if rmsEnergy(chunk) >= a.cfg.EnergyThreshold {
				if !spoke {
					spoke = true
					speechAt = now
				}
				lastVoice = now
			}

			switch {
			case spoke && now.Sub(lastVoice) >= a.cfg.SilenceWindow:
				return pcm, spoke, nil
			case spoke && now.Sub(speechAt) >= a.cfg.MaxUtterance:
				return pcm, spoke, nil
			case !spoke && now.Sub(start) >= a.cfg.NoSpeechWindow:
				return pcm, false, nil
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return pcm, spoke, nil
			}
			return pcm, spoke, fmt.Errorf("read source: %w", readErr)
		}
	}
}

func (a *Adapter) recognize(ctx context.Context, pcm []byte, stream RecognitionStream, finals *finalCollector, opts Options) (*Transcript, error) {
	if stream != nil {
		if err := stream.Finalize(); err != nil {
			return nil, fmt.Errorf("finalize stream: %w", err)
		}
		text := finals.wait(3 * time.Second)
		return &Transcript{Text: text, Language: opts.Language}, nil
	}

	transcript, err := a.recognizer.Transcribe(ctx, bytes.NewReader(pcm), opts)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	return transcript, nil
}

func (a *Adapter) wasCancelled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled
}

func (a *Adapter) deliverError(cb Callbacks, err error) {
	a.logger.Debug("activation failed", "error", err)
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// finalCollector accumulates final segments from a recognition stream.
type finalCollector struct {
	mu    sync.Mutex
	parts []string
	done  chan struct{}
}

func collectFinals(deltas <-chan TranscriptDelta) *finalCollector {
	c := &finalCollector{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		for delta := range deltas {
			if !delta.IsFinal || strings.TrimSpace(delta.Text) == "" {
				continue
			}
			c.mu.Lock()
			c.parts = append(c.parts, strings.TrimSpace(delta.Text))
			c.mu.Unlock()
		}
	}()
	return c
}

// wait returns the joined final text once the stream ends, or whatever has
// arrived when the timeout fires.
func (c *finalCollector) wait(timeout time.Duration) string {
	select {
	case <-c.done:
	case <-time.After(timeout):
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.parts, " ")
}
