package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/invodesk/assist/pkg/core/convo"
	"github.com/invodesk/assist/pkg/core/voice/capture"
)

// voiceInput owns the microphone and the capture adapter for the life of
// the console.
type voiceInput struct {
	mic     *capture.Microphone
	adapter *capture.Adapter
}

func newVoiceInput(cfg config, logger *slog.Logger) (*voiceInput, error) {
	mic, err := capture.OpenMicrophone(capture.DefaultSampleRate)
	if err != nil {
		return nil, err
	}

	recognizer := capture.NewCartesia(cfg.CartesiaAPIKey)
	opts := []capture.Option{
		capture.WithStreaming(recognizer),
		capture.WithRecognitionOptions(capture.Options{
			Language:   cfg.Language,
			SampleRate: mic.SampleRate(),
		}),
		capture.WithLogger(logger),
	}
	if cfg.RecordingsDir != "" {
		opts = append(opts, capture.WithRecordingDir(cfg.RecordingsDir))
	}

	return &voiceInput{
		mic:     mic,
		adapter: capture.New(mic, recognizer, opts...),
	}, nil
}

func (v *voiceInput) Stop() {
	v.adapter.Stop()
}

func (v *voiceInput) Close() {
	v.adapter.Stop()
	v.mic.Close()
}

// startVoice begins one dictation. The finalized transcript is echoed and
// then auto-submitted through the controller's voice path, so a typed turn
// in the meantime supersedes it.
func (c *console) startVoice(ctx context.Context) {
	if c.voice == nil {
		c.errorf("voice input is not available (set CARTESIA_API_KEY)")
		return
	}

	err := c.voice.adapter.Start(ctx, capture.Callbacks{
		OnRecording: func(recording bool) {
			if recording {
				c.printf("listening... (/stop to cancel)")
			}
		},
		OnTranscript: func(t capture.Transcript) {
			c.printf("you (voice): %s", t.Text)
			if err := c.ctrl.SubmitFromVoice(ctx, t.Text); err != nil && !errors.Is(err, convo.ErrClosed) {
				c.errorf("voice submit failed: %v", err)
			}
		},
		OnError: func(err error) {
			if errors.Is(err, capture.ErrNoSpeech) {
				c.errorf("didn't catch that; try /voice again")
				return
			}
			c.errorf("voice capture failed: %v", err)
		},
	})
	if err != nil {
		if errors.Is(err, capture.ErrRecording) {
			c.errorf("already listening")
			return
		}
		c.errorf("start voice capture: %v", err)
	}
}
