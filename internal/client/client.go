package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/laraflow/pkg/models"
)

// TokenSource supplies the bearer token for every request
type TokenSource interface {
	Token() (string, error)
}

// Client talks to the LaraFlow agent service REST and streaming endpoints
type Client struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
}

// ChatRequest is the body of the streaming chat call
type ChatRequest struct {
	Message             string `json:"message"`
	ConversationID      string `json:"conversation_id,omitempty"`
	InteractiveMode     bool   `json:"interactive_mode"`
	RequirePlanApproval bool   `json:"require_plan_approval"`
}

// ApprovalRequest is the body of the approve-plan call
type ApprovalRequest struct {
	ConversationID  string       `json:"conversation_id"`
	Approved        bool         `json:"approved"`
	ModifiedPlan    *models.Plan `json:"modified_plan,omitempty"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
}

// New creates a client for the given service base URL. The HTTP client has
// no overall timeout because chat streams stay open for the whole run;
// cancellation happens through the request context.
func New(baseURL string, tokens TokenSource) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		client:  &http.Client{},
	}
}

// StreamChat opens the interactive event stream for a project. The caller
// owns the returned body and must drain and close it.
func (c *Client) StreamChat(ctx context.Context, projectID string, chatReq ChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	requestURL := fmt.Sprintf("%s/projects/%s/chat", c.baseURL, url.PathEscape(projectID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open chat stream: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, statusError(resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	return resp.Body, nil
}

// ApprovePlan sends the user's approval or rejection for the pending plan
func (c *Client) ApprovePlan(ctx context.Context, projectID string, approval ApprovalRequest) error {
	requestURL := fmt.Sprintf("%s/projects/%s/chat/approve-plan", c.baseURL, url.PathEscape(projectID))
	return c.postJSON(ctx, requestURL, approval, nil)
}

// ListMessages fetches the persisted messages of a conversation
func (c *Client) ListMessages(ctx context.Context, projectID, conversationID string) ([]models.Message, error) {
	requestURL := fmt.Sprintf("%s/projects/%s/conversations/%s/messages",
		c.baseURL, url.PathEscape(projectID), url.PathEscape(conversationID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create messages request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.doWithTimeout(req)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	var messages []models.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return messages, nil
}

// ListConversations fetches the conversations of a project
func (c *Client) ListConversations(ctx context.Context, projectID string) ([]models.Conversation, error) {
	requestURL := fmt.Sprintf("%s/projects/%s/conversations", c.baseURL, url.PathEscape(projectID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create conversations request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.doWithTimeout(req)
	if err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	var conversations []models.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conversations); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return conversations, nil
}

func (c *Client) postJSON(ctx context.Context, requestURL string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.doWithTimeout(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError(resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// doWithTimeout bounds plain REST calls; streaming bypasses this
func (c *Client) doWithTimeout(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), 30*time.Second)
	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) authorize(req *http.Request) error {
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("resolve auth token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
