// Package chat is the client for the invoice console's assistant API.
//
// The API is conversational: each request carries one user message and,
// after the first turn, the server-issued session id that lets the remote
// side retain conversation context. The global endpoint answers questions
// about the whole document corpus; the document endpoint scopes every
// answer to a single invoice.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 90 * time.Second

// Client talks to the assistant API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the assistant API at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GlobalChat sends one turn to the global assistant.
func (c *Client) GlobalChat(ctx context.Context, req Request) (*Response, error) {
	return c.postChat(ctx, "/api/chat/global", req)
}

// DocumentChat sends one turn to the per-document assistant. The document
// id scopes every answer and is carried as a path segment, not in the body.
func (c *Client) DocumentChat(ctx context.Context, docID string, req Request) (*Response, error) {
	if strings.TrimSpace(docID) == "" {
		return nil, fmt.Errorf("chat: document id must not be empty")
	}
	return c.postChat(ctx, "/api/chat/document/"+url.PathEscape(docID), req)
}

func (c *Client) postChat(ctx context.Context, path string, req Request) (*Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("chat request", "path", path, "session_id", req.SessionID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	c.logger.Debug("chat response",
		"session_id", out.SessionID,
		"tool_used", out.ToolUsed,
		"needs_clarification", out.NeedsClarification)

	return &out, nil
}

// GlobalHistory fetches the stored global history for a session.
func (c *Client) GlobalHistory(ctx context.Context, sessionID string, limit int) (*History, error) {
	return c.getHistory(ctx, "/api/chats/global", sessionID, limit)
}

// DocumentHistory fetches the stored history for a session scoped to one document.
func (c *Client) DocumentHistory(ctx context.Context, docID, sessionID string, limit int) (*History, error) {
	if strings.TrimSpace(docID) == "" {
		return nil, fmt.Errorf("chat: document id must not be empty")
	}
	return c.getHistory(ctx, "/api/chats/document/"+url.PathEscape(docID), sessionID, limit)
}

func (c *Client) getHistory(ctx context.Context, path, sessionID string, limit int) (*History, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("chat: session id must not be empty")
	}

	u := c.baseURL + path
	q := url.Values{}
	q.Set("session_id", sessionID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u += "?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("history request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var out History
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	return &out, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	// The server reports failures as {"detail": "..."}.
	var detail struct {
		Detail string `json:"detail"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		msg = detail.Detail
	}

	return &Error{Status: resp.StatusCode, Message: msg}
}
