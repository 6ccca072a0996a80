package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	wav "github.com/youpy/go-wav"
)

// recordingSink keeps finalized utterances on disk for replay and debugging.
type recordingSink struct {
	dir string
}

// save writes mono 16-bit PCM as a timestamped WAV file and returns its path.
func (s *recordingSink) save(pcm []byte, sampleRate int) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create recordings dir: %w", err)
	}

	path := filepath.Join(s.dir, time.Now().Format("20060102-150405.000")+".wav")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create wav file: %w", err)
	}
	defer f.Close()

	numSamples := uint32(len(pcm) / 2)
	w := wav.NewWriter(f, numSamples, 1, uint32(sampleRate), 16)
	if _, err := w.Write(pcm); err != nil {
		return "", fmt.Errorf("write wav data: %w", err)
	}

	return path, nil
}
