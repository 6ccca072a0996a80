package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/invodesk/assist/pkg/archive"
	"github.com/invodesk/assist/pkg/core/chat"
	"github.com/invodesk/assist/pkg/core/convo"
	"github.com/invodesk/assist/pkg/core/voice/speech"
)

// console wires the turn controller to the terminal: typed input goes in,
// transcript events come out, and slash commands drive voice and playback.
type console struct {
	cfg     config
	client  *chat.Client
	ctrl    *convo.Controller
	speaker *speech.Adapter
	voice   *voiceInput
	store   *archive.Store

	out    io.Writer
	errOut io.Writer
	logger *slog.Logger

	// printMu keeps event rendering from interleaving with prompt output.
	printMu sync.Mutex
}

func run(ctx context.Context, cfg config, in io.Reader, out, errOut io.Writer) error {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	logger := setupLogger(cfg, errOut)
	slog.SetDefault(logger)

	client := chat.NewClient(cfg.APIURL,
		chat.WithLogger(logger),
		chat.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))

	var responder convo.Responder
	if cfg.DocumentID != "" {
		responder = client.Document(cfg.DocumentID)
	} else {
		responder = client.Global()
	}

	c := &console{
		cfg:    cfg,
		client: client,
		out:    out,
		errOut: errOut,
		logger: logger,
	}

	if cfg.ArchivePath != "" {
		store, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer store.Close()
		c.store = store
	}

	ctrlOpts := []convo.ControllerOption{
		convo.WithVoiceSubmitDelay(cfg.VoiceDelay),
		convo.WithControllerLogger(logger),
	}
	if cfg.Greeting != "" {
		ctrlOpts = append(ctrlOpts, convo.WithGreeting(cfg.Greeting))
	}

	if !cfg.Mute && cfg.CartesiaAPIKey != "" {
		player, err := speech.OpenPlayer(speech.DefaultSampleRate)
		if err != nil {
			logger.Warn("spoken replies unavailable", "error", err)
		} else {
			c.speaker = speech.NewAdapter(
				speech.NewCartesia(cfg.CartesiaAPIKey), player,
				speech.WithSynthesisOptions(speech.Options{
					Voice:    cfg.Voice,
					Language: cfg.Language,
				}),
				speech.WithAdapterLogger(logger))
			ctrlOpts = append(ctrlOpts, convo.WithSpeaker(c.speaker))
		}
	}

	c.ctrl = convo.NewController(responder, ctrlOpts...)
	defer c.ctrl.Close()

	if cfg.CartesiaAPIKey != "" {
		voice, err := newVoiceInput(cfg, logger)
		if err != nil {
			logger.Warn("voice input unavailable", "error", err)
		} else {
			c.voice = voice
			defer voice.Close()
		}
	}

	var renderDone sync.WaitGroup
	renderDone.Add(1)
	go func() {
		defer renderDone.Done()
		c.renderEvents()
	}()

	err := c.loop(ctx, in)

	c.ctrl.Close()
	renderDone.Wait()
	return err
}

func setupLogger(cfg config, errOut io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))
}

func (c *console) loop(ctx context.Context, in io.Reader) error {
	c.printf("Connected to %s", c.cfg.APIURL)
	if c.cfg.DocumentID != "" {
		c.printf("Conversation scoped to document %s", c.cfg.DocumentID)
	}
	c.printf("Type a question, or /voice to dictate one. /help lists commands.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(c.out)
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := c.handleCommand(ctx, line); quit {
				return nil
			}
			continue
		}

		c.submit(ctx, line)
	}
}

// handleCommand dispatches a slash command. It reports whether the console
// should exit.
func (c *console) handleCommand(ctx context.Context, line string) bool {
	switch {
	case line == "/exit" || line == "/quit":
		c.printf("bye")
		return true
	case line == "/help":
		c.printf("/voice    dictate a question")
		c.printf("/stop     stop listening and speaking")
		c.printf("/pause    pause the spoken reply")
		c.printf("/resume   resume a paused reply")
		c.printf("/history  show this session's server-side history")
		c.printf("/archive  show recent locally archived messages")
		c.printf("/quit     exit")
	case line == "/voice":
		c.startVoice(ctx)
	case line == "/stop":
		if c.voice != nil {
			c.voice.Stop()
		}
		if c.speaker != nil {
			c.speaker.Stop()
		}
	case line == "/pause":
		if c.speaker != nil {
			c.speaker.Pause()
		}
	case line == "/resume":
		if c.speaker != nil {
			c.speaker.Resume()
		}
	case line == "/history":
		c.showHistory(ctx)
	case line == "/archive":
		c.showArchive(ctx)
	default:
		c.errorf("unknown command %s (try /help)", line)
	}
	return false
}

func (c *console) submit(ctx context.Context, text string) {
	switch err := c.ctrl.Submit(ctx, text); {
	case err == nil:
	case errors.Is(err, convo.ErrBusy):
		c.errorf("still working on the previous request")
	case errors.Is(err, convo.ErrEmptyInput):
	default:
		c.errorf("submit failed: %v", err)
	}
}

// renderEvents consumes controller events until the controller closes,
// printing transcript updates and mirroring them into the local archive.
func (c *console) renderEvents() {
	for ev := range c.ctrl.Events() {
		switch ev := ev.(type) {
		case *convo.MessageAppendedEvent:
			c.renderMessage(ev.Message)
			c.archiveMessage(ev.Message)
		case *convo.SessionAdoptedEvent:
			c.logger.Debug("session adopted", "session_id", ev.SessionID)
		case *convo.StateChangedEvent:
			c.logger.Debug("turn state", "from", ev.From.String(), "to", ev.To.String())
		case *convo.TurnFailedEvent:
			c.logger.Warn("turn failed", "error", ev.Err)
		case *convo.SpeechStartedEvent:
			c.logger.Debug("speaking reply")
		case *convo.SpeechEndedEvent:
			c.logger.Debug("reply finished")
		}
	}
}

func (c *console) renderMessage(msg convo.Message) {
	switch msg.Role {
	case convo.RoleAssistant:
		c.printf("assistant: %s", msg.Content)
		if len(msg.Sources) > 0 {
			c.printf("  sources: %s", strings.Join(msg.Sources, ", "))
		}
	case convo.RoleSystem:
		c.printf("%s", msg.Content)
	}
	// User messages are already visible as typed or dictated input.
}

func (c *console) archiveMessage(msg convo.Message) {
	if c.store == nil {
		return
	}
	sessionID, _ := c.ctrl.Session().ID()
	if err := c.store.Append(context.Background(), sessionID, c.cfg.DocumentID, msg); err != nil {
		c.logger.Warn("archive append failed", "error", err)
	}
}

func (c *console) showHistory(ctx context.Context) {
	sessionID, ok := c.ctrl.Session().ID()
	if !ok {
		c.errorf("no session yet; ask something first")
		return
	}

	var (
		history *chat.History
		err     error
	)
	if c.cfg.DocumentID != "" {
		history, err = c.client.DocumentHistory(ctx, c.cfg.DocumentID, sessionID, 0)
	} else {
		history, err = c.client.GlobalHistory(ctx, sessionID, 0)
	}
	if err != nil {
		c.errorf("fetch history: %v", err)
		return
	}

	c.printf("%d messages in session %s", history.Count, history.SessionID)
	for _, msg := range history.Messages {
		c.printf("  [%s] %s", msg.Role, msg.Content)
	}
}

func (c *console) showArchive(ctx context.Context) {
	if c.store == nil {
		c.errorf("archiving is disabled")
		return
	}
	messages, err := c.store.Recent(ctx, 20)
	if err != nil {
		c.errorf("read archive: %v", err)
		return
	}
	if len(messages) == 0 {
		c.printf("archive is empty")
		return
	}
	for _, msg := range messages {
		c.printf("  %s [%s] %s", msg.Timestamp.Local().Format("Jan 02 15:04"), msg.Role, msg.Content)
	}
}

func (c *console) printf(format string, args ...any) {
	c.printMu.Lock()
	defer c.printMu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *console) errorf(format string, args ...any) {
	c.printMu.Lock()
	defer c.printMu.Unlock()
	fmt.Fprintf(c.errOut, format+"\n", args...)
}
