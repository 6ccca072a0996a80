package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	cartesiaBaseURL = "https://api.cartesia.ai"
	cartesiaVersion = "2025-04-16"

	defaultModelID = "sonic-3"

	// Default voice; callers should configure their own voice ID.
	defaultVoiceID = "a0e99841-438c-4a64-b679-ae501e7d6091"
)

// Cartesia synthesizes speech through Cartesia's TTS API. Output is always
// raw s16le mono PCM so it can go straight to the player.
type Cartesia struct {
	apiKey     string
	httpClient *http.Client
}

// NewCartesia creates a Cartesia synthesizer.
func NewCartesia(apiKey string) *Cartesia {
	return &Cartesia{apiKey: apiKey, httpClient: &http.Client{}}
}

// NewCartesiaWithClient creates a Cartesia synthesizer with a custom HTTP client.
func NewCartesiaWithClient(apiKey string, client *http.Client) *Cartesia {
	return &Cartesia{apiKey: apiKey, httpClient: client}
}

// Name returns the provider identifier.
func (c *Cartesia) Name() string {
	return "cartesia"
}

// Synthesize renders text as raw PCM.
func (c *Cartesia) Synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	voiceID := opts.Voice
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 24000
	}

	reqBody := cartesiaTTSRequest{
		ModelID:    defaultModelID,
		Transcript: text,
		Voice:      cartesiaVoiceSpec{Mode: "id", ID: voiceID},
		OutputFormat: cartesiaOutputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: sampleRate,
		},
	}
	if opts.Speed != 0 || opts.Volume != 0 {
		reqBody.GenerationConfig = &cartesiaGenerationConfig{
			Speed:  opts.Speed,
			Volume: opts.Volume,
		}
	}
	if opts.Language != "" {
		reqBody.Language = &opts.Language
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cartesiaBaseURL+"/tts/bytes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cartesia request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return []byte{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cartesia error %d: %s", resp.StatusCode, string(errBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return audio, nil
}

type cartesiaTTSRequest struct {
	ModelID          string                    `json:"model_id"`
	Transcript       string                    `json:"transcript"`
	Voice            cartesiaVoiceSpec         `json:"voice"`
	OutputFormat     cartesiaOutputFormat      `json:"output_format"`
	Language         *string                   `json:"language,omitempty"`
	GenerationConfig *cartesiaGenerationConfig `json:"generation_config,omitempty"`
}

type cartesiaVoiceSpec struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

type cartesiaGenerationConfig struct {
	Speed  float64 `json:"speed,omitempty"`
	Volume float64 `json:"volume,omitempty"`
}
