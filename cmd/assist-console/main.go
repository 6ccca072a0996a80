package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAPIURL     = "http://127.0.0.1:8000"
	defaultTimeout    = 90 * time.Second
	defaultVoiceDelay = 500 * time.Millisecond
	defaultArchive    = "assist.db"
)

type config struct {
	APIURL     string
	DocumentID string
	Timeout    time.Duration

	CartesiaAPIKey string
	Voice          string
	Language       string
	VoiceDelay     time.Duration
	RecordingsDir  string
	Mute           bool

	ArchivePath string
	Greeting    string
	Verbose     bool
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := config{}
	fs := flag.NewFlagSet("assist-console", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	defaultURL := strings.TrimSpace(getenv("ASSIST_API_URL"))
	if defaultURL == "" {
		defaultURL = defaultAPIURL
	}

	fs.StringVar(&cfg.APIURL, "api-url", defaultURL, "assistant API base URL (or ASSIST_API_URL)")
	fs.StringVar(&cfg.DocumentID, "doc", "", "scope the conversation to one invoice document")
	fs.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "per-turn timeout (e.g. 90s)")
	fs.StringVar(&cfg.Voice, "voice", "", "voice ID for spoken replies")
	fs.StringVar(&cfg.Language, "lang", "en", "speech language code")
	fs.DurationVar(&cfg.VoiceDelay, "voice-delay", defaultVoiceDelay, "delay before a voice transcript auto-submits")
	fs.StringVar(&cfg.RecordingsDir, "recordings", "", "keep captured utterances as WAV files under this directory")
	fs.BoolVar(&cfg.Mute, "mute", false, "disable spoken replies")
	fs.StringVar(&cfg.ArchivePath, "archive", defaultArchive, "local transcript archive path (empty disables)")
	fs.StringVar(&cfg.Greeting, "greeting", "Hi! Ask me anything about your invoices.", "greeting shown before the first turn")
	fs.BoolVar(&cfg.Verbose, "v", false, "verbose logging")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg.CartesiaAPIKey = strings.TrimSpace(getenv("CARTESIA_API_KEY"))

	if err := validateConfig(cfg); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg config) error {
	apiURL := strings.TrimSpace(cfg.APIURL)
	if apiURL == "" {
		return errors.New("api-url must not be empty")
	}
	u, err := url.Parse(apiURL)
	if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return errors.New("api-url must be a valid absolute URL")
	}
	if u.User != nil {
		return errors.New("api-url must not include credentials")
	}
	if cfg.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	if cfg.VoiceDelay < 0 {
		return errors.New("voice-delay must not be negative")
	}
	return nil
}

func main() {
	// A missing .env is fine; explicit environment still applies.
	_ = godotenv.Load()

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "assist-console: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "assist-console: %v\n", err)
		os.Exit(1)
	}
}
