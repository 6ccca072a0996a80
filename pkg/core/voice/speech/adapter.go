package speech

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Adapter is the single global utterance slot. Speak pre-empts whatever is
// currently playing; a pre-empted utterance reports its end exactly once
// before the new one starts.
type Adapter struct {
	synth  Synthesizer
	player Player
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	current *utterance
	gen     uint64
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithSynthesisOptions sets voice, language and speed for synthesis.
func WithSynthesisOptions(opts Options) AdapterOption {
	return func(a *Adapter) { a.opts = opts }
}

// WithAdapterLogger sets the adapter logger.
func WithAdapterLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = l }
}

// NewAdapter creates a speech output adapter over a synthesizer and player.
func NewAdapter(synth Synthesizer, player Player, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		synth:  synth,
		player: player,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.opts.SampleRate == 0 {
		a.opts.SampleRate = player.SampleRate()
	}
	return a
}

// utterance is one occupant of the slot. end fires its onEnd exactly once,
// no matter how the utterance finished.
type utterance struct {
	playback Playback
	onEnd    func()
	once     sync.Once
}

func (u *utterance) end() {
	u.once.Do(func() {
		if u.onEnd != nil {
			u.onEnd()
		}
	})
}

// Speak synthesizes text and plays it. Any utterance already in the slot is
// cancelled first. onStart fires when audio begins, onEnd exactly once when
// this utterance finishes, is stopped, or is superseded. A synthesis or
// playback failure is returned without firing either callback.
func (a *Adapter) Speak(ctx context.Context, text string, onStart, onEnd func()) error {
	a.mu.Lock()
	a.gen++
	gen := a.gen
	prev := a.current
	a.current = nil
	a.mu.Unlock()

	if prev != nil {
		prev.playback.Stop()
		prev.end()
	}

	pcm, err := a.synth.Synthesize(ctx, text, a.opts)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	if len(pcm) == 0 {
		return fmt.Errorf("synthesize: empty audio")
	}

	a.mu.Lock()
	if a.gen != gen {
		// Stopped or superseded while synthesizing; audio never starts.
		a.mu.Unlock()
		if onEnd != nil {
			onEnd()
		}
		return nil
	}
	a.mu.Unlock()

	playback, err := a.player.Play(pcm)
	if err != nil {
		return fmt.Errorf("play: %w", err)
	}

	u := &utterance{playback: playback, onEnd: onEnd}

	a.mu.Lock()
	if a.gen != gen {
		// Lost the slot between synthesis and install.
		a.mu.Unlock()
		playback.Stop()
		u.end()
		return nil
	}
	a.current = u
	a.mu.Unlock()

	if onStart != nil {
		onStart()
	}

	go func() {
		<-playback.Done()
		a.mu.Lock()
		if a.current == u {
			a.current = nil
		}
		a.mu.Unlock()
		u.end()
	}()

	return nil
}

// Stop cancels the current utterance, if any; its onEnd still fires. A
// Speak still in synthesis is invalidated too, so no audio starts after
// Stop returns.
func (a *Adapter) Stop() {
	a.mu.Lock()
	a.gen++
	u := a.current
	a.current = nil
	a.mu.Unlock()

	if u != nil {
		u.playback.Stop()
		u.end()
	}
}

// Pause suspends the current utterance, keeping position.
func (a *Adapter) Pause() {
	a.mu.Lock()
	u := a.current
	a.mu.Unlock()
	if u != nil {
		u.playback.Pause()
	}
}

// Resume continues a paused utterance from where it stopped.
func (a *Adapter) Resume() {
	a.mu.Lock()
	u := a.current
	a.mu.Unlock()
	if u != nil {
		u.playback.Resume()
	}
}

// Speaking reports whether an utterance occupies the slot.
func (a *Adapter) Speaking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current != nil
}
