package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laraflow/pkg/models"
)

type staticTokens string

func (s staticTokens) Token() (string, error) { return string(s), nil }

type failingTokens struct{}

func (failingTokens) Token() (string, error) { return "", errors.New("token expired") }

func TestStreamChatSendsAuthAndAccept(t *testing.T) {
	var got *http.Request
	var body ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: connected\ndata: {}\n\n")
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens("tok123"))
	stream, err := c.StreamChat(context.Background(), "p1", ChatRequest{
		Message:         "hello",
		InteractiveMode: true,
	})
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, "/projects/p1/chat", got.URL.Path)
	assert.Equal(t, "Bearer tok123", got.Header.Get("Authorization"))
	assert.Equal(t, "text/event-stream", got.Header.Get("Accept"))
	assert.Equal(t, "hello", body.Message)
	assert.True(t, body.InteractiveMode)

	raw, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "event: connected")
}

func TestStatusTaxonomy(t *testing.T) {
	for _, tc := range []struct {
		status int
		want   error
	}{
		{401, ErrUnauthorized},
		{403, ErrForbidden},
		{404, ErrNotFound},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		c := New(srv.URL, staticTokens("tok"))
		_, err := c.StreamChat(context.Background(), "p1", ChatRequest{Message: "x"})
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		srv.Close()
	}
}

func TestStatusErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "agent pipeline unavailable")
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens("tok"))
	_, err := c.StreamChat(context.Background(), "p1", ChatRequest{Message: "x"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.Status)
	assert.Equal(t, "agent pipeline unavailable", apiErr.Body)
}

func TestTokenFailureBlocksRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := New(srv.URL, failingTokens{})
	_, err := c.StreamChat(context.Background(), "p1", ChatRequest{Message: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve auth token")
	assert.False(t, called)
}

func TestApprovePlanPostsApproval(t *testing.T) {
	var got ApprovalRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens("tok"))
	err := c.ApprovePlan(context.Background(), "p1", ApprovalRequest{
		ConversationID: "c1",
		Approved:       false,
		RejectionReason: "too many steps",
	})
	require.NoError(t, err)

	assert.Equal(t, "/projects/p1/chat/approve-plan", path)
	assert.Equal(t, "c1", got.ConversationID)
	assert.False(t, got.Approved)
	assert.Equal(t, "too many steps", got.RejectionReason)
}

func TestListMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/p1/conversations/c1/messages", r.URL.Path)
		json.NewEncoder(w).Encode([]models.Message{
			{ID: "m1", Role: "user", Content: "hi"},
			{ID: "m2", Role: "assistant", Content: "hello"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens("tok"))
	messages, err := c.ListMessages(context.Background(), "p1", "c1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "assistant", messages[1].Role)
}

func TestProjectIDIsPathEscaped(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		json.NewEncoder(w).Encode([]models.Conversation{})
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens("tok"))
	_, err := c.ListConversations(context.Background(), "team/project")
	require.NoError(t, err)
	assert.Equal(t, "/projects/team%2Fproject/conversations", path)
}

func TestIsRetryable(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unauthorized", ErrUnauthorized, false},
		{"forbidden", ErrForbidden, false},
		{"not found", ErrNotFound, false},
		{"bad request", &APIError{Status: 400}, false},
		{"conflict", &APIError{Status: 409}, false},
		{"rate limited", &APIError{Status: 429}, true},
		{"bad gateway", &APIError{Status: 502}, true},
		{"unavailable", &APIError{Status: 503}, true},
		{"gateway timeout", &APIError{Status: 504}, true},
		{"server error", &APIError{Status: 500}, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"transport", errors.New("connection refused"), true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}
