package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/laraflow/pkg/models"
)

// Server is a development stand-in for the LaraFlow agent service. It
// serves the chat stream from a scripted scenario, honors the plan-approval
// gate, and persists messages in memory so history loads work against it.
type Server struct {
	echo     *echo.Echo
	scenario *Scenario
	limiter  *rate.Limiter

	mu            sync.Mutex
	conversations map[string]*conversation
}

type conversation struct {
	id       string
	messages []models.Message
	approval chan bool
}

// NewServer creates a simulator serving the given scenario. Answer chunks
// are paced by the limiter so streaming consumers see realistic arrival
// boundaries.
func NewServer(scenario *Scenario) *Server {
	if scenario == nil {
		scenario = DefaultScenario()
	}
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:          e,
		scenario:      scenario,
		limiter:       rate.NewLimiter(rate.Limit(40), 8),
		conversations: make(map[string]*conversation),
	}

	e.POST("/projects/:id/chat", s.handleChat)
	e.POST("/projects/:id/chat/approve-plan", s.handleApprovePlan)
	e.GET("/projects/:id/conversations/:cid/messages", s.handleMessages)

	return s
}

// Handler exposes the underlying HTTP handler for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start runs the simulator on the given port
func (s *Server) Start(port int) error {
	log.Info().Int("port", port).Str("scenario", s.scenario.Name).Msg("starting agent simulator")
	return s.echo.Start(fmt.Sprintf(":%d", port))
}

func (s *Server) handleChat(c echo.Context) error {
	if err := requireBearer(c); err != nil {
		return err
	}

	var req struct {
		Message        string `json:"message"`
		ConversationID string `json:"conversation_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid chat request")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	conv := s.conversation(req.ConversationID)
	s.appendMessage(conv, models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.id,
		Role:           "user",
		Content:        req.Message,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	})

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	write := func(event string, data json.RawMessage) error {
		if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		resp.Flush()
		return nil
	}

	if err := write("connected", mustJSON(map[string]string{"conversation_id": conv.id})); err != nil {
		return nil
	}

	var answer string
	var finalData json.RawMessage
	for _, ev := range s.scenario.Events {
		if ctx.Err() != nil {
			return nil
		}
		if ev.DelayMs > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Duration(ev.DelayMs) * time.Millisecond):
			}
		}
		if ev.Event == "answer_chunk" {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		if err := write(ev.Event, ev.Data); err != nil {
			return nil
		}

		if ev.WaitApproval {
			approved, ok := s.waitApproval(ctx, conv)
			if !ok {
				return nil
			}
			if !approved {
				_ = write("error", mustJSON(map[string]string{"message": "Plan rejected by user"}))
				return nil
			}
			// plan_approved is the next scripted event
		}
		if ev.Event == "complete" {
			finalData = ev.Data
			var payload struct {
				Answer string `json:"answer"`
			}
			if err := json.Unmarshal(ev.Data, &payload); err == nil {
				answer = payload.Answer
			}
		}
	}

	if finalData != nil {
		events := make([]models.StoredEvent, 0, len(s.scenario.Events)+1)
		events = append(events, models.StoredEvent{
			Event: "connected",
			Data:  mustJSON(map[string]string{"conversation_id": conv.id}),
		})
		for _, ev := range s.scenario.Events {
			events = append(events, models.StoredEvent{Event: ev.Event, Data: ev.Data})
		}
		s.appendMessage(conv, models.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.id,
			Role:           "assistant",
			Content:        answer,
			CreatedAt:      time.Now().UTC().Format(time.RFC3339),
			ProcessingData: &models.ProcessingData{Events: events},
		})
	}
	return nil
}

func (s *Server) handleApprovePlan(c echo.Context) error {
	if err := requireBearer(c); err != nil {
		return err
	}

	var req struct {
		ConversationID string `json:"conversation_id"`
		Approved       bool   `json:"approved"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid approval request")
	}

	s.mu.Lock()
	conv, ok := s.conversations[req.ConversationID]
	s.mu.Unlock()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown conversation")
	}

	select {
	case conv.approval <- req.Approved:
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	default:
		// no stream waiting on the gate
		return echo.NewHTTPError(http.StatusConflict, "no plan awaiting approval")
	}
}

func (s *Server) handleMessages(c echo.Context) error {
	if err := requireBearer(c); err != nil {
		return err
	}

	s.mu.Lock()
	conv, ok := s.conversations[c.Param("cid")]
	s.mu.Unlock()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown conversation")
	}

	s.mu.Lock()
	messages := make([]models.Message, len(conv.messages))
	copy(messages, conv.messages)
	s.mu.Unlock()
	return c.JSON(http.StatusOK, messages)
}

func (s *Server) conversation(id string) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		if conv, ok := s.conversations[id]; ok {
			return conv
		}
	} else {
		id = uuid.NewString()
	}
	conv := &conversation{id: id, approval: make(chan bool, 1)}
	s.conversations[id] = conv
	return conv
}

func (s *Server) appendMessage(conv *conversation, msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv.messages = append(conv.messages, msg)
}

func (s *Server) waitApproval(ctx context.Context, conv *conversation) (approved, ok bool) {
	select {
	case approved = <-conv.approval:
		return approved, true
	case <-ctx.Done():
		return false, false
	case <-time.After(2 * time.Minute):
		return false, false
	}
}

func requireBearer(c echo.Context) error {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(header, "Bearer ") || strings.TrimPrefix(header, "Bearer ") == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	}
	return nil
}
