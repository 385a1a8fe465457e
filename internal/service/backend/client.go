package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 512
	maxReplyBody   = 4 << 20
)

// Config describes how to reach the chat backend.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to an OpenWebUI-style chat API. It never retries.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient builds a client. A nil httpClient uses a fresh http.Client.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("backend base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid backend base url %q: %w", base, err)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("backend api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		httpClient: httpClient,
	}, nil
}

// newChatRequest is the body of a create call; the backend fills in defaults.
type newChatRequest struct {
	Chat struct{} `json:"chat"`
}

// CreateSession opens a new backend chat and returns its id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	endpoint := c.baseURL + "/chats/new"

	body, err := c.post(ctx, OpCreateSession, endpoint, newChatRequest{})
	if err != nil {
		return "", err
	}

	id := extractSessionID(body)
	if id == "" {
		return "", &Error{Op: OpCreateSession, Endpoint: endpoint, Body: truncate(body), Err: ErrMissingSessionID}
	}

	return id, nil
}

// SendMessage appends a user turn to the session and returns the assistant text.
// An empty string means the response matched no known reply shape.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (string, error) {
	endpoint := c.baseURL + "/chats/" + url.PathEscape(sessionID)

	body, err := c.post(ctx, OpSendMessage, endpoint, schema.UserMessage(text))
	if err != nil {
		return "", err
	}

	reply := ExtractReply(body)
	if reply == "" {
		log.Printf("[backend] session=%s: no reply text in response: %s", sessionID, truncate(body))
	}
	return reply, nil
}

func (c *Client) post(ctx context.Context, op Op, endpoint string, payload any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Op: op, Endpoint: endpoint, Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, &Error{Op: op, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		req.Header.Set("X-Request-Id", reqID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBody))
	if err != nil {
		return nil, &Error{Op: op, Endpoint: endpoint, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Op:         op,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       truncate(body),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	log.Printf("[backend] %s %s -> %d in %s", op, endpoint, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	return body, nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= maxErrorBody {
		return s
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
