package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server, timeout time.Duration) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: srv.URL + "/api/v1/", APIKey: "owui-key", Timeout: timeout}, srv.Client())
	require.NoError(t, err)
	return c
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{APIKey: "k"}, nil)
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "http://localhost:3000/api/v1"}, nil)
	assert.Error(t, err)

	c, err := NewClient(Config{BaseURL: "http://localhost:3000/api/v1/", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/api/v1", c.baseURL)
	assert.Equal(t, defaultTimeout, c.timeout)
}

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"id field", `{"id":"chat-1","title":"New Chat"}`, "chat-1"},
		{"chat_id field", `{"chat_id":"chat-2"}`, "chat-2"},
		{"nested chat id", `{"chat":{"id":"chat-3"}}`, "chat-3"},
		{"id wins over chat_id", `{"id":"chat-4","chat_id":"other"}`, "chat-4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/v1/chats/new", r.URL.Path)
				assert.Equal(t, "Bearer owui-key", r.Header.Get("Authorization"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				raw, _ := io.ReadAll(r.Body)
				assert.JSONEq(t, `{"chat":{}}`, string(raw))

				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			id, err := newTestClient(t, srv, time.Second).CreateSession(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestCreateSessionFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantErr    error
	}{
		{"server error", http.StatusInternalServerError, `{"detail":"boom"}`, http.StatusInternalServerError, nil},
		{"unauthorized", http.StatusUnauthorized, `{"detail":"bad key"}`, http.StatusUnauthorized, nil},
		{"missing id", http.StatusOK, `{"title":"New Chat"}`, 0, ErrMissingSessionID},
		{"not json", http.StatusOK, `<html>`, 0, ErrMissingSessionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv, time.Second).CreateSession(context.Background())
			require.Error(t, err)

			var berr *Error
			require.True(t, errors.As(err, &berr))
			assert.Equal(t, OpCreateSession, berr.Op)
			assert.Equal(t, tt.wantStatus, berr.StatusCode)
			assert.Contains(t, berr.Endpoint, "/chats/new")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chats/chat-1", r.URL.Path)
		assert.Equal(t, "Bearer owui-key", r.Header.Get("Authorization"))

		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Hi", payload["content"])
		assert.Equal(t, "user", payload["role"])

		_, _ = io.WriteString(w, `{"chat":{"role":"assistant","content":"Hello!"}}`)
	}))
	defer srv.Close()

	reply, err := newTestClient(t, srv, time.Second).SendMessage(context.Background(), "chat-1", "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply)
}

func TestSendMessageNoRecognisedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	reply, err := newTestClient(t, srv, time.Second).SendMessage(context.Background(), "chat-1", "Hi")
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestSendMessageTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := newTestClient(t, srv, 50*time.Millisecond).SendMessage(context.Background(), "chat-1", "Hi")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var berr *Error
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, OpSendMessage, berr.Op)
	assert.True(t, berr.Timeout())
}

func TestSendMessageTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(t, srv, time.Second)
	srv.Close()

	_, err := c.SendMessage(context.Background(), "chat-1", "Hi")
	var berr *Error
	require.True(t, errors.As(err, &berr))
	assert.Zero(t, berr.StatusCode)
}

func TestErrorBodyIsTruncated(t *testing.T) {
	long := strings.Repeat("x", 4*maxErrorBody)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, long)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, time.Second).SendMessage(context.Background(), "chat-1", "Hi")
	var berr *Error
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, http.StatusBadGateway, berr.StatusCode)
	assert.LessOrEqual(t, len(berr.Body), maxErrorBody+3)
	assert.Contains(t, err.Error(), "status 502")
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	// "é" is two bytes; an odd prefix puts a rune across the cut.
	body := "x" + strings.Repeat("é", maxErrorBody)

	got := truncate([]byte(body))
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), maxErrorBody+3)
	assert.Equal(t, "short", truncate([]byte("  short \n")))
}
