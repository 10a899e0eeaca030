package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/laraflow/pkg/models"
)

// EventType identifies one kind of envelope on the interactive stream.
// The set is closed; unrecognized names are carried through so the reducer
// can drop them without failing (forward compatibility).
type EventType string

const (
	EventConnected          EventType = "connected"
	EventAgentMessage       EventType = "agent_message"
	EventAgentHandoff       EventType = "agent_handoff"
	EventAgentThinking      EventType = "agent_thinking"
	EventIntentStarted      EventType = "intent_started"
	EventIntentThinking     EventType = "intent_thinking"
	EventIntentAnalyzed     EventType = "intent_analyzed"
	EventContextStarted     EventType = "context_started"
	EventContextThinking    EventType = "context_thinking"
	EventContextRetrieved   EventType = "context_retrieved"
	EventPlanningStarted    EventType = "planning_started"
	EventPlanningThinking   EventType = "planning_thinking"
	EventPlanStepAdded      EventType = "plan_step_added"
	EventPlanCreated        EventType = "plan_created"
	EventPlanReady          EventType = "plan_ready"
	EventPlanApproved       EventType = "plan_approved"
	EventExecutionStarted   EventType = "execution_started"
	EventStepStarted        EventType = "step_started"
	EventStepThinking       EventType = "step_thinking"
	EventStepCompleted      EventType = "step_completed"
	EventExecutionCompleted EventType = "execution_completed"
	EventValidationStarted  EventType = "validation_started"
	EventValidationThinking EventType = "validation_thinking"
	EventValidationIssue    EventType = "validation_issue_found"
	EventValidationFix      EventType = "validation_fix_started"
	EventValidationResult   EventType = "validation_result"
	EventAnswerChunk        EventType = "answer_chunk"
	EventComplete           EventType = "complete"
	EventError              EventType = "error"
)

// Agent identifiers used in agentType / toAgentType fields
const (
	AgentOrchestrator = "orchestrator"
	AgentIntent       = "intent_analyzer"
	AgentContext      = "context_retriever"
	AgentPlanner      = "planner"
	AgentExecutor     = "executor"
	AgentValidator    = "validator"
)

// Envelope is one {event, data} unit parsed from the stream
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// IsThinking reports whether the event updates the ephemeral thinking slot
// without touching the permanent log
func (e EventType) IsThinking() bool {
	switch e {
	case EventAgentThinking, EventIntentThinking, EventContextThinking,
		EventPlanningThinking, EventStepThinking, EventValidationThinking:
		return true
	}
	return false
}

// IsPhaseStart reports whether the event opens a pipeline phase
func (e EventType) IsPhaseStart() bool {
	switch e {
	case EventIntentStarted, EventContextStarted, EventPlanningStarted,
		EventExecutionStarted, EventValidationStarted:
		return true
	}
	return false
}

// IsPhaseCompletion reports whether the event closes a pipeline phase
func (e EventType) IsPhaseCompletion() bool {
	switch e {
	case EventIntentAnalyzed, EventContextRetrieved, EventPlanCreated,
		EventExecutionCompleted, EventValidationResult:
		return true
	}
	return false
}

// ConnectedPayload acknowledges the stream and names the conversation
type ConnectedPayload struct {
	ConversationID string `json:"conversation_id"`
}

// MessagePayload carries agent_message, agent_handoff,
// validation_issue_found and validation_fix_started bodies
type MessagePayload struct {
	FromAgent string `json:"from_agent,omitempty"`
	ToAgent   string `json:"to_agent,omitempty"`
	Agent     string `json:"agent,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ThinkingPayload carries the *_thinking family
type ThinkingPayload struct {
	Agent      string   `json:"agent"`
	Thought    string   `json:"thought"`
	ActionType string   `json:"action_type,omitempty"`
	FilePath   string   `json:"file_path,omitempty"`
	Progress   *float64 `json:"progress,omitempty"`
}

// PhasePayload carries the *_started and phase-completion families
type PhasePayload struct {
	Agent     string `json:"agent,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// StepPayload carries step_started and step_completed
type StepPayload struct {
	Step   *models.PlanStep `json:"step,omitempty"`
	Result json.RawMessage  `json:"result,omitempty"`
}

// PlanReadyPayload gates execution on user approval
type PlanReadyPayload struct {
	AwaitingApproval bool         `json:"awaiting_approval"`
	Plan             *models.Plan `json:"plan,omitempty"`
	Message          string       `json:"message,omitempty"`
}

// ValidationResultPayload carries the validator's verdict
type ValidationResultPayload struct {
	Agent      string                   `json:"agent,omitempty"`
	Message    string                   `json:"message,omitempty"`
	Validation *models.ValidationResult `json:"validation,omitempty"`
}

// AnswerChunkPayload is one fragment of the streamed final answer
type AnswerChunkPayload struct {
	Chunk string `json:"chunk"`
}

// CompletePayload terminates a successful (or answered) run
type CompletePayload struct {
	Success *bool  `json:"success,omitempty"`
	Answer  string `json:"answer,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorPayload terminates a failed run
type ErrorPayload struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Text returns whichever of the two error fields the server populated
func (p ErrorPayload) Text() string {
	if p.Message != "" {
		return p.Message
	}
	if p.Error != "" {
		return p.Error
	}
	return "agent pipeline reported an error"
}

// DecodeInto unmarshals the envelope payload into the given struct
func (e Envelope) DecodeInto(v interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}
