package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	cartesiaBaseURL = "https://api.cartesia.ai"
	cartesiaWSURL   = "wss://api.cartesia.ai/stt/websocket"
	cartesiaVersion = "2025-04-16"

	defaultModel    = "ink-whisper"
	defaultLanguage = "en"
)

// Cartesia recognizes speech through Cartesia's STT API. It implements both
// Recognizer (batch, over HTTP) and StreamingRecognizer (live, over
// WebSocket).
type Cartesia struct {
	apiKey     string
	httpClient *http.Client
}

// NewCartesia creates a Cartesia recognizer.
func NewCartesia(apiKey string) *Cartesia {
	return &Cartesia{apiKey: apiKey, httpClient: &http.Client{}}
}

// NewCartesiaWithClient creates a Cartesia recognizer with a custom HTTP client.
func NewCartesiaWithClient(apiKey string, client *http.Client) *Cartesia {
	return &Cartesia{apiKey: apiKey, httpClient: client}
}

// Name returns the provider identifier.
func (c *Cartesia) Name() string {
	return "cartesia"
}

// Transcribe converts one recorded utterance of raw mono s16le PCM to text.
func (c *Cartesia) Transcribe(ctx context.Context, audio io.Reader, opts Options) (*Transcript, error) {
	audioData, err := io.ReadAll(audio)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "utterance.pcm")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(audioData); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}

	if err := mw.WriteField("model", modelOrDefault(opts)); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}
	if lang := languageOrDefault(opts); lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return nil, fmt.Errorf("write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	u, _ := url.Parse(cartesiaBaseURL + "/stt")
	q := u.Query()
	q.Set("encoding", "pcm_s16le")
	if opts.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cartesia request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cartesia error %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Text     string   `json:"text"`
		Language *string  `json:"language,omitempty"`
		Duration *float64 `json:"duration,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	t := &Transcript{Text: out.Text}
	if out.Language != nil {
		t.Language = *out.Language
	}
	if out.Duration != nil {
		t.Duration = *out.Duration
	}
	return t, nil
}

// OpenStream starts a live recognition session over WebSocket.
func (c *Cartesia) OpenStream(ctx context.Context, opts Options) (RecognitionStream, error) {
	u, err := url.Parse(cartesiaWSURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket URL: %w", err)
	}

	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}

	q := u.Query()
	q.Set("model", modelOrDefault(opts))
	q.Set("language", languageOrDefault(opts))
	q.Set("encoding", "pcm_s16le")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("X-API-Key", c.apiKey)
	headers.Set("Cartesia-Version", cartesiaVersion)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket connect (status %d): %s", resp.StatusCode, string(body))
			}
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	s := &cartesiaStream{
		conn:   conn,
		deltas: make(chan TranscriptDelta, 100),
	}
	go s.readLoop()
	return s, nil
}

type cartesiaStream struct {
	conn    *websocket.Conn
	deltas  chan TranscriptDelta
	writeMu sync.Mutex
	closed  atomic.Bool
}

func (s *cartesiaStream) readLoop() {
	defer close(s.deltas)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Type    string `json:"type"` // "transcript", "flush_done", "done", "error"
			Text    string `json:"text"`
			IsFinal bool   `json:"is_final"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "transcript":
			s.deltas <- TranscriptDelta{Text: msg.Text, IsFinal: msg.IsFinal}
		case "flush_done":
			// All buffered audio has been transcribed; finals were delivered.
			return
		case "done", "error":
			return
		}
	}
}

// SendAudio forwards binary PCM to the session.
func (s *cartesiaStream) SendAudio(data []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Finalize flushes buffered audio so the remaining final segments arrive.
func (s *cartesiaStream) Finalize() error {
	if s.closed.Load() {
		return fmt.Errorf("stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte("finalize"))
}

// Transcripts returns the channel of incremental updates.
func (s *cartesiaStream) Transcripts() <-chan TranscriptDelta {
	return s.deltas
}

// Close ends the session.
func (s *cartesiaStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.TextMessage, []byte("done"))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return s.conn.Close()
}

func modelOrDefault(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return defaultModel
}

func languageOrDefault(opts Options) string {
	if opts.Language != "" {
		return opts.Language
	}
	return defaultLanguage
}
