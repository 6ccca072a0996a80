package speech

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// DefaultSampleRate is the playback rate used when none is configured. It
// matches the synthesizer's default output rate.
const DefaultSampleRate = 24000

// OtoPlayer plays PCM clips through the default output device.
type OtoPlayer struct {
	ctx        *oto.Context
	sampleRate int
}

// OpenPlayer initializes the audio output backend. Returns ErrUnsupported
// when no output device is available on this host.
func OpenPlayer(sampleRate int) (*OtoPlayer, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	opts := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: init output context: %v", ErrUnsupported, err)
	}
	<-ready

	return &OtoPlayer{ctx: ctx, sampleRate: sampleRate}, nil
}

// SampleRate returns the PCM sample rate this player expects.
func (p *OtoPlayer) SampleRate() int {
	return p.sampleRate
}

// Play starts playing a clip of raw mono s16le PCM.
func (p *OtoPlayer) Play(pcm []byte) (Playback, error) {
	player := p.ctx.NewPlayer(bytes.NewReader(pcm))
	player.Play()

	pb := &otoPlayback{player: player, done: make(chan struct{})}
	go pb.watch()
	return pb, nil
}

// otoPlayback wraps one oto player. Pause keeps the position; Resume picks
// up where playback left off.
type otoPlayback struct {
	player *oto.Player
	done   chan struct{}

	mu      sync.Mutex
	paused  bool
	stopped bool
	once    sync.Once
}

func (pb *otoPlayback) watch() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		pb.mu.Lock()
		if pb.stopped {
			pb.mu.Unlock()
			return
		}
		// Paused playback also reports IsPlaying false; only an unpaused
		// player going quiet means the clip finished.
		finished := !pb.paused && !pb.player.IsPlaying()
		pb.mu.Unlock()

		if finished {
			pb.finish()
			return
		}
	}
}

func (pb *otoPlayback) finish() {
	pb.mu.Lock()
	pb.stopped = true
	pb.mu.Unlock()
	pb.player.Close()
	pb.once.Do(func() { close(pb.done) })
}

// Pause suspends playback, keeping position.
func (pb *otoPlayback) Pause() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.stopped || pb.paused {
		return
	}
	pb.paused = true
	pb.player.Pause()
}

// Resume continues paused playback.
func (pb *otoPlayback) Resume() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.stopped || !pb.paused {
		return
	}
	pb.paused = false
	pb.player.Play()
}

// Stop abandons the clip.
func (pb *otoPlayback) Stop() {
	pb.mu.Lock()
	if pb.stopped {
		pb.mu.Unlock()
		return
	}
	pb.stopped = true
	pb.mu.Unlock()

	pb.player.Pause()
	pb.player.Close()
	pb.once.Do(func() { close(pb.done) })
}

// Done is closed when the clip finishes or is stopped.
func (pb *otoPlayback) Done() <-chan struct{} {
	return pb.done
}
