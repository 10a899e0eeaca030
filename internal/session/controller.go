package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/laraflow/internal/client"
	"github.com/laraflow/internal/protocol"
	"github.com/laraflow/internal/retry"
	"github.com/laraflow/internal/store"
	"github.com/laraflow/pkg/models"
)

// API is the slice of the agent service the controller needs
type API interface {
	StreamChat(ctx context.Context, projectID string, req client.ChatRequest) (io.ReadCloser, error)
	ApprovePlan(ctx context.Context, projectID string, approval client.ApprovalRequest) error
	ListMessages(ctx context.Context, projectID, conversationID string) ([]models.Message, error)
}

// Marker is the advisory "processing in progress" record persisted so a UI
// can resume a loading indicator after a reload. It is never authoritative.
type Marker struct {
	IsLoading      bool   `json:"isLoading"`
	ConversationID string `json:"conversationId"`
	Timestamp      string `json:"timestamp"`
}

// Options tunes a controller
type Options struct {
	InteractiveMode     bool
	RequirePlanApproval bool
	Retry               retry.Config
	ReadBufferSize      int
}

// Controller owns one chat surface for one project: it issues the stream
// request, drives the parser and reducer per chunk, and exposes the
// plan-approval and history commands. Exactly one session may be active at
// a time; a second SendMessage while streaming is a no-op by contract.
type Controller struct {
	api       API
	store     store.Store
	projectID string
	opts      Options

	mu        sync.Mutex
	state     *State
	cancel    context.CancelFunc
	streaming bool
	approving bool
}

// NewController creates a controller for a project
func NewController(api API, st store.Store, projectID string, opts Options) *Controller {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = 4096
	}
	if opts.Retry.Multiplier == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	return &Controller{
		api:       api,
		store:     st,
		projectID: projectID,
		opts:      opts,
	}
}

// State returns the current session state. It is owned by the controller;
// callers read it between commands, not concurrently with an active stream
// (use Entries and Gate for live reads).
func (c *Controller) State() *State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Entries returns a copy of the current entry log, safe to call while a
// stream is being reduced
func (c *Controller) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return nil
	}
	return c.state.SnapshotEntries()
}

// Gate reports the approval gate and the pending plan, safe during a stream
func (c *Controller) Gate() (bool, *models.Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return false, nil
	}
	return c.state.AwaitingApproval, c.state.CurrentPlan
}

// SendMessage starts a task run. Empty or whitespace-only text, an already
// active session, and a pending approval gate are all silent no-ops. The
// call blocks until the stream reaches a terminal event, the server closes
// the connection, or Cancel is invoked.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.streaming || (c.state != nil && c.state.AwaitingApproval) {
		c.mu.Unlock()
		log.Debug().Msg("sendMessage ignored, session already active")
		return nil
	}

	st := NewState()
	if last, ok := c.store.Get(c.lastConversationKey()); ok {
		st.ConversationID = last
	}
	st.IsLoading = true
	st.AppendUserEntry(text)
	c.state = st
	c.streaming = true

	streamCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.setMarker(st.ConversationID)
	defer func() {
		c.mu.Lock()
		c.streaming = false
		c.cancel = nil
		c.mu.Unlock()
	}()

	body, err := c.api.StreamChat(streamCtx, c.projectID, client.ChatRequest{
		Message:             text,
		ConversationID:      st.ConversationID,
		InteractiveMode:     c.opts.InteractiveMode,
		RequirePlanApproval: c.opts.RequirePlanApproval,
	})
	if err != nil {
		c.clearMarker()
		if canceled(streamCtx, err) {
			c.finishCanceled(st)
			return nil
		}
		c.mu.Lock()
		st.IsLoading = false
		st.ErrorMessage = err.Error()
		c.mu.Unlock()
		return fmt.Errorf("start chat stream: %w", err)
	}
	defer body.Close()

	err = c.drain(streamCtx, st, body)
	c.clearMarker()
	if err != nil {
		return err
	}

	c.mu.Lock()
	convID := st.ConversationID
	c.mu.Unlock()
	if convID != "" {
		if serr := c.store.Set(c.lastConversationKey(), convID); serr != nil {
			log.Warn().Err(serr).Msg("persist conversation id")
		}
	}
	return nil
}

// drain reads the response body chunk by chunk, feeding the parser and
// reducing envelopes strictly in arrival order. The abort signal is checked
// at every read boundary; once canceled, no further envelope is reduced.
func (c *Controller) drain(ctx context.Context, st *State, body io.Reader) error {
	parser := protocol.NewStreamParser()
	buf := make([]byte, c.opts.ReadBufferSize)

	for {
		n, readErr := body.Read(buf)

		if ctx.Err() != nil {
			c.finishCanceled(st)
			return nil
		}
		if n > 0 {
			c.reduceAll(st, parser.Feed(string(buf[:n])))
		}

		c.mu.Lock()
		terminal := st.Terminal
		c.mu.Unlock()
		if terminal {
			return nil
		}

		if readErr != nil {
			if canceled(ctx, readErr) {
				c.finishCanceled(st)
				return nil
			}
			c.reduceAll(st, parser.Flush())

			c.mu.Lock()
			defer c.mu.Unlock()
			if st.Terminal {
				return nil
			}
			// the server closed (or broke) the stream without a terminal
			// envelope; surface it instead of hanging the UI in loading
			message := "stream ended before the task completed"
			if !errors.Is(readErr, io.EOF) {
				message = fmt.Sprintf("stream read failed: %v", readErr)
			}
			st.appendEntry(Entry{
				Type:       EntrySystem,
				Message:    message,
				SystemType: SystemError,
			})
			st.ErrorMessage = message
			st.IsLoading = false
			st.IsStreaming = false
			st.Terminal = true
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return fmt.Errorf("read chat stream: %w", readErr)
		}
	}
}

func (c *Controller) reduceAll(st *State, envelopes []protocol.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, env := range envelopes {
		st.Reduce(env)
	}
}

// finishCanceled winds a run down after a user abort: no terminal entry,
// no error surface, loading cleared
func (c *Controller) finishCanceled(st *State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st.IsLoading = false
	st.IsStreaming = false
	log.Debug().Msg("session canceled by user")
}

// Cancel aborts the in-flight request. A canceled run leaves no terminal
// entry and no error; the entry log keeps exactly the envelopes reduced
// before the abort.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.clearMarker()
}

// ApprovePlan approves the pending plan, optionally with user edits. The
// gate is cleared exactly once; a call with no open gate is a no-op. On
// failure the gate stays open so the user can retry.
func (c *Controller) ApprovePlan(ctx context.Context, modified *models.Plan) error {
	c.mu.Lock()
	if c.state == nil || !c.state.AwaitingApproval || c.approving {
		c.mu.Unlock()
		return nil
	}
	c.approving = true
	conversationID := c.state.ConversationID
	c.mu.Unlock()

	if modified != nil {
		modified.Normalize()
	}

	err := retry.Do(ctx, c.opts.Retry, client.IsRetryable, func() error {
		return c.api.ApprovePlan(ctx, c.projectID, client.ApprovalRequest{
			ConversationID: conversationID,
			Approved:       true,
			ModifiedPlan:   modified,
		})
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.approving = false
	if err != nil {
		return fmt.Errorf("approve plan: %w", err)
	}
	c.state.AwaitingApproval = false
	c.state.CurrentPlan = nil
	return nil
}

// RejectPlan rejects the pending plan with an optional reason
func (c *Controller) RejectPlan(ctx context.Context, reason string) error {
	c.mu.Lock()
	if c.state == nil || !c.state.AwaitingApproval || c.approving {
		c.mu.Unlock()
		return nil
	}
	c.approving = true
	conversationID := c.state.ConversationID
	c.mu.Unlock()

	err := retry.Do(ctx, c.opts.Retry, client.IsRetryable, func() error {
		return c.api.ApprovePlan(ctx, c.projectID, client.ApprovalRequest{
			ConversationID:  conversationID,
			Approved:        false,
			RejectionReason: reason,
		})
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.approving = false
	if err != nil {
		return fmt.Errorf("reject plan: %w", err)
	}
	c.state.AwaitingApproval = false
	c.state.CurrentPlan = nil
	return nil
}

// LoadHistory fetches persisted messages and reconstructs each message's
// agent activity: stored raw events replay through the reducer with no
// network effects, otherwise the stored entry snapshot is used as-is. The
// live pipeline is never re-run for historical reads. It refuses to run
// while a stream is active; Cancel first.
func (c *Controller) LoadHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	c.mu.Lock()
	streaming := c.streaming
	c.mu.Unlock()
	if streaming {
		return nil, errors.New("a chat stream is active, cancel it before loading history")
	}

	var messages []models.Message
	err := retry.Do(ctx, c.opts.Retry, client.IsRetryable, func() error {
		var lerr error
		messages, lerr = c.api.ListMessages(ctx, c.projectID, conversationID)
		return lerr
	})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	for i := range messages {
		pd := messages[i].ProcessingData
		if pd == nil || len(pd.Events) == 0 {
			continue
		}
		activity, rerr := ReplayEvents(pd.Events)
		if rerr != nil {
			log.Warn().Err(rerr).Str("message", messages[i].ID).Msg("replay stored events")
			continue
		}
		pd.AgentActivity = activity
	}

	c.mu.Lock()
	if c.streaming {
		// a stream started while we were fetching; leave its state alone
		c.mu.Unlock()
		return nil, errors.New("a chat stream is active, cancel it before loading history")
	}
	st := NewState()
	st.ConversationID = conversationID
	c.state = st
	c.mu.Unlock()

	if serr := c.store.Set(c.lastConversationKey(), conversationID); serr != nil {
		log.Warn().Err(serr).Msg("persist conversation id")
	}
	return messages, nil
}

// ReplayEvents rebuilds an entry snapshot from a stored raw event list by
// reducing it from a cleared state
func ReplayEvents(events []models.StoredEvent) (json.RawMessage, error) {
	st := NewState()
	for _, ev := range events {
		st.Reduce(protocol.Envelope{Event: protocol.EventType(ev.Event), Data: ev.Data})
	}
	activity, err := json.Marshal(st.SnapshotEntries())
	if err != nil {
		return nil, fmt.Errorf("encode replayed activity: %w", err)
	}
	return activity, nil
}

// StartNew fully resets the chat surface: any in-flight stream is aborted,
// session state is discarded, and the persisted markers are cleared so the
// next SendMessage opens a fresh conversation.
func (c *Controller) StartNew() {
	c.Cancel()

	c.mu.Lock()
	c.state = nil
	c.mu.Unlock()

	if err := c.store.Remove(c.lastConversationKey()); err != nil {
		log.Warn().Err(err).Msg("clear conversation id")
	}
	c.clearMarker()
}

// InProgress reads the advisory resume marker, if one is persisted
func (c *Controller) InProgress() (Marker, bool) {
	raw, ok := c.store.Get(c.markerKey())
	if !ok {
		return Marker{}, false
	}
	var m Marker
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Marker{}, false
	}
	return m, m.IsLoading
}

func (c *Controller) setMarker(conversationID string) {
	m := Marker{
		IsLoading:      true,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := c.store.Set(c.markerKey(), string(raw)); err != nil {
		log.Warn().Err(err).Msg("persist processing marker")
	}
}

func (c *Controller) clearMarker() {
	if err := c.store.Remove(c.markerKey()); err != nil {
		log.Warn().Err(err).Msg("clear processing marker")
	}
}

func (c *Controller) lastConversationKey() string {
	return "laraflow.last_conversation." + c.projectID
}

func (c *Controller) markerKey() string {
	return "laraflow.processing." + c.projectID
}

// canceled distinguishes a local abort from a genuine transport failure
func canceled(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}
