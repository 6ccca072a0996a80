package capture

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/malgo"
)

// DefaultSampleRate is the capture rate used when none is configured.
// 16 kHz mono is what the recognition models expect.
const DefaultSampleRate = 16000

// Microphone is a Source backed by the default system capture device.
// One Microphone can serve many utterances; each Open starts a fresh
// capture device and returns a reader over its raw s16le PCM.
type Microphone struct {
	ctx        *malgo.AllocatedContext
	sampleRate int
}

// OpenMicrophone initializes the audio backend. Callers must Close the
// microphone when done with it. Returns ErrUnsupported when no audio
// backend is available on this host.
func OpenMicrophone(sampleRate int) (*Microphone, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init audio context: %v", ErrUnsupported, err)
	}

	return &Microphone{ctx: ctx, sampleRate: sampleRate}, nil
}

// SampleRate returns the PCM sample rate of readers produced by Open.
func (m *Microphone) SampleRate() int {
	return m.sampleRate
}

// Open starts capturing and returns a reader over the live PCM stream.
// Closing the reader stops the capture device and unblocks any pending
// Read with io.EOF.
func (m *Microphone) Open(_ context.Context) (io.ReadCloser, error) {
	r := &micStream{buf: make([]byte, 0, m.sampleRate*2)}
	r.cond = sync.NewCond(&r.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			r.mu.Lock()
			if !r.closed {
				r.buf = append(r.buf, input...)
			}
			r.mu.Unlock()
			r.cond.Signal()
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: init capture device: %v", ErrUnsupported, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start capture device: %w", err)
	}
	r.device = device

	return r, nil
}

// Close releases the audio backend.
func (m *Microphone) Close() error {
	return m.ctx.Uninit()
}

// micStream buffers capture-callback PCM for blocking reads.
type micStream struct {
	device *malgo.Device
	buf    []byte
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
}

func (r *micStream) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.buf) == 0 && !r.closed {
		r.cond.Wait()
	}
	if r.closed && len(r.buf) == 0 {
		return 0, io.EOF
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *micStream) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	r.cond.Broadcast()

	if r.device != nil {
		r.device.Stop()
		r.device.Uninit()
	}
	return nil
}
