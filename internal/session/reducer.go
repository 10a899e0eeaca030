package session

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/laraflow/internal/protocol"
	"github.com/laraflow/pkg/models"
)

// Reduce applies one envelope to the session state. Events fall on two
// orthogonal axes: "agent is thinking right now" overwrites the ephemeral
// slot, "something happened" appends to the permanent log. Replaying stored
// history only needs the permanent axis.
//
// Unrecognized event names are dropped silently so older clients survive
// newer servers.
func (s *State) Reduce(env protocol.Envelope) {
	switch {
	case env.Event == protocol.EventConnected:
		s.reduceConnected(env)
	case env.Event == protocol.EventAgentMessage:
		s.reduceAgentMessage(env, EntryMessage)
	case env.Event == protocol.EventAgentHandoff:
		s.reduceAgentMessage(env, EntryHandoff)
	case env.Event.IsThinking():
		s.reduceThinking(env)
	case env.Event.IsPhaseStart():
		s.reducePhaseStart(env)
	case env.Event.IsPhaseCompletion():
		s.reducePhaseCompletion(env)
	case env.Event == protocol.EventPlanStepAdded:
		s.reducePlanStepAdded(env)
	case env.Event == protocol.EventStepStarted:
		s.reduceStepStarted(env)
	case env.Event == protocol.EventStepCompleted:
		s.reduceStepCompleted(env)
	case env.Event == protocol.EventPlanReady:
		s.reducePlanReady(env)
	case env.Event == protocol.EventPlanApproved:
		s.reducePlanApproved()
	case env.Event == protocol.EventValidationIssue, env.Event == protocol.EventValidationFix:
		s.reduceValidationNote(env)
	case env.Event == protocol.EventAnswerChunk:
		s.reduceAnswerChunk(env)
	case env.Event == protocol.EventComplete:
		s.reduceComplete(env)
	case env.Event == protocol.EventError:
		s.reduceError(env)
	default:
		log.Debug().Str("event", string(env.Event)).Msg("ignoring unrecognized event")
	}
}

// ReduceAll replays a sequence of envelopes in order
func (s *State) ReduceAll(envs []protocol.Envelope) {
	for _, env := range envs {
		s.Reduce(env)
	}
}

func (s *State) reduceConnected(env protocol.Envelope) {
	var p protocol.ConnectedPayload
	if err := env.DecodeInto(&p); err != nil {
		log.Warn().Err(err).Msg("bad connected payload")
		return
	}
	if p.ConversationID != "" {
		s.ConversationID = p.ConversationID
	}
	s.IsStreaming = true
}

func (s *State) reduceAgentMessage(env protocol.Envelope, typ EntryType) {
	var p protocol.MessagePayload
	if err := env.DecodeInto(&p); err != nil {
		log.Warn().Err(err).Str("event", string(env.Event)).Msg("bad message payload")
		return
	}
	agent := p.FromAgent
	if agent == "" {
		agent = p.Agent
	}
	s.appendEntry(Entry{
		Type:        typ,
		Timestamp:   p.Timestamp,
		AgentType:   agent,
		ToAgentType: p.ToAgent,
		Message:     p.Message,
	})
}

func (s *State) reduceThinking(env protocol.Envelope) {
	var p protocol.ThinkingPayload
	if err := env.DecodeInto(&p); err != nil {
		log.Warn().Err(err).Str("event", string(env.Event)).Msg("bad thinking payload")
		return
	}
	s.Thinking = &Thinking{
		Agent:      p.Agent,
		Thought:    p.Thought,
		ActionType: p.ActionType,
		FilePath:   p.FilePath,
		Progress:   p.Progress,
	}
}

// reducePhaseStart fires both effects together: the thinking slot shows a
// generic processing state and the log gains the phase's opening message.
func (s *State) reducePhaseStart(env protocol.Envelope) {
	var p protocol.PhasePayload
	if err := env.DecodeInto(&p); err != nil {
		log.Warn().Err(err).Str("event", string(env.Event)).Msg("bad phase payload")
		return
	}
	agent := p.Agent
	if agent == "" {
		agent = phaseAgent(env.Event)
	}
	message := p.Message
	if message == "" {
		message = phaseOpeningMessage(env.Event)
	}
	s.Thinking = &Thinking{Agent: agent, Thought: message}
	s.appendEntry(Entry{
		Type:      EntryMessage,
		Timestamp: p.Timestamp,
		AgentType: agent,
		Message:   message,
		Kind:      KindGreeting,
	})
}

func (s *State) reducePhaseCompletion(env protocol.Envelope) {
	s.Thinking = nil

	if env.Event == protocol.EventValidationResult {
		var p protocol.ValidationResultPayload
		if err := env.DecodeInto(&p); err != nil {
			log.Warn().Err(err).Msg("bad validation_result payload")
			return
		}
		if p.Validation != nil {
			s.Validation = p.Validation
		}
		agent := p.Agent
		if agent == "" {
			agent = protocol.AgentValidator
		}
		message := p.Message
		if message == "" && p.Validation != nil {
			message = p.Validation.Summary
		}
		if message == "" {
			message = phaseCompletionMessage(env.Event)
		}
		s.appendEntry(Entry{
			Type:      EntryMessage,
			AgentType: agent,
			Message:   message,
			Kind:      KindCompletion,
		})
		return
	}

	var p protocol.PhasePayload
	if err := env.DecodeInto(&p); err != nil {
		log.Warn().Err(err).Str("event", string(env.Event)).Msg("bad phase payload")
		return
	}
	agent := p.Agent
	if agent == "" {
		agent = phaseAgent(env.Event)
	}
	message := p.Message
	if message == "" {
		message = phaseCompletionMessage(env.Event)
	}
	s.appendEntry(Entry{
		Type:      EntryMessage,
		Timestamp: p.Timestamp,
		AgentType: agent,
		Message:   message,
		Kind:      KindCompletion,
	})
}

func (s *State) reducePlanStepAdded(env protocol.Envelope) {
	var p protocol.StepPayload
	if err := env.DecodeInto(&p); err != nil || p.Step == nil {
		return
	}
	s.appendEntry(Entry{
		Type:      EntryMessage,
		AgentType: protocol.AgentPlanner,
		Message:   fmt.Sprintf("Planned step %d: %s %s", p.Step.Order, p.Step.Action, p.Step.File),
	})
}

func (s *State) reduceStepStarted(env protocol.Envelope) {
	var p protocol.StepPayload
	if err := env.DecodeInto(&p); err != nil {
		log.Warn().Err(err).Msg("bad step_started payload")
		return
	}
	entry := Entry{
		Type:      EntryStep,
		AgentType: protocol.AgentExecutor,
		Completed: false,
	}
	thinking := &Thinking{Agent: protocol.AgentExecutor, Thought: "Working on step"}
	if p.Step != nil {
		entry.ActionType = p.Step.Action
		entry.FilePath = p.Step.File
		entry.Message = p.Step.Description
		thinking.ActionType = p.Step.Action
		thinking.FilePath = p.Step.File
		if p.Step.Description != "" {
			thinking.Thought = p.Step.Description
		}
	}
	s.Thinking = thinking
	idx := s.appendEntry(entry)
	s.openSteps = append(s.openSteps, idx)
}

// reduceStepCompleted finishes the earliest still-open step. A completion
// with no open step is a no-op, not an error.
func (s *State) reduceStepCompleted(env protocol.Envelope) {
	s.Thinking = nil

	if len(s.openSteps) == 0 {
		log.Debug().Msg("step_completed with no open step, dropping")
		return
	}
	idx := s.openSteps[0]
	s.openSteps = s.openSteps[1:]
	s.Entries[idx].Completed = true

	var p protocol.StepPayload
	if err := env.DecodeInto(&p); err == nil && len(p.Result) > 0 {
		s.ExecutionResults = append(s.ExecutionResults, p.Result)
	}
}

func (s *State) reducePlanReady(env protocol.Envelope) {
	var p protocol.PlanReadyPayload
	if err := env.DecodeInto(&p); err != nil {
		log.Warn().Err(err).Msg("bad plan_ready payload")
		return
	}
	if p.AwaitingApproval && p.Plan != nil {
		s.CurrentPlan = p.Plan
		s.AwaitingApproval = true
		s.Thinking = nil
	}
	message := p.Message
	if message == "" {
		message = "Plan ready for review"
	}
	s.appendEntry(Entry{
		Type:       EntrySystem,
		Message:    message,
		SystemType: SystemInfo,
	})
}

func (s *State) reducePlanApproved() {
	s.AwaitingApproval = false
	s.CurrentPlan = nil
	s.appendEntry(Entry{
		Type:       EntrySystem,
		Message:    "Plan approved, resuming execution",
		SystemType: SystemSuccess,
	})
}

func (s *State) reduceValidationNote(env protocol.Envelope) {
	var p protocol.MessagePayload
	if err := env.DecodeInto(&p); err != nil {
		return
	}
	agent := p.Agent
	if agent == "" {
		agent = protocol.AgentValidator
	}
	s.appendEntry(Entry{
		Type:      EntryMessage,
		AgentType: agent,
		Message:   p.Message,
	})
}

func (s *State) reduceAnswerChunk(env protocol.Envelope) {
	var p protocol.AnswerChunkPayload
	if err := env.DecodeInto(&p); err != nil {
		return
	}
	s.StreamedText += p.Chunk
}

func (s *State) reduceComplete(env protocol.Envelope) {
	var p protocol.CompletePayload
	if err := env.DecodeInto(&p); err != nil {
		log.Warn().Err(err).Msg("bad complete payload")
	}

	// Snapshot before clearing transient state so the persisted message
	// carries the plan and results that produced it.
	if p.Answer != "" || p.Success != nil {
		s.FinalMessage = s.buildFinalMessage(p)
	}
	if p.Success != nil && *p.Success {
		s.appendEntry(Entry{
			Type:       EntrySystem,
			Message:    "Task completed successfully",
			SystemType: SystemSuccess,
		})
	}

	s.Thinking = nil
	s.AwaitingApproval = false
	s.CurrentPlan = nil
	s.IsStreaming = false
	s.IsLoading = false
	s.Terminal = true
}

func (s *State) reduceError(env protocol.Envelope) {
	var p protocol.ErrorPayload
	_ = env.DecodeInto(&p)

	s.Thinking = nil
	s.appendEntry(Entry{
		Type:       EntrySystem,
		Message:    p.Text(),
		SystemType: SystemError,
	})
	s.ErrorMessage = p.Text()
	s.IsStreaming = false
	s.IsLoading = false
	s.Terminal = true
}

// buildFinalMessage materializes the assistant message persisted at the end
// of a run, with a deep snapshot of the activity log for later replay.
func (s *State) buildFinalMessage(p protocol.CompletePayload) *models.Message {
	content := p.Answer
	if content == "" {
		content = s.StreamedText
	}

	activity, err := json.Marshal(s.SnapshotEntries())
	if err != nil {
		log.Error().Err(err).Msg("snapshot entry log")
		activity = nil
	}

	var results []json.RawMessage
	if len(s.ExecutionResults) > 0 {
		results = make([]json.RawMessage, len(s.ExecutionResults))
		copy(results, s.ExecutionResults)
	}

	return &models.Message{
		ConversationID: s.ConversationID,
		Role:           "assistant",
		Content:        content,
		CreatedAt:      s.now(),
		ProcessingData: &models.ProcessingData{
			AgentActivity:    activity,
			Plan:             s.CurrentPlan,
			ExecutionResults: results,
			Validation:       s.Validation,
		},
	}
}

func phaseAgent(e protocol.EventType) string {
	switch e {
	case protocol.EventIntentStarted, protocol.EventIntentAnalyzed:
		return protocol.AgentIntent
	case protocol.EventContextStarted, protocol.EventContextRetrieved:
		return protocol.AgentContext
	case protocol.EventPlanningStarted, protocol.EventPlanCreated:
		return protocol.AgentPlanner
	case protocol.EventExecutionStarted, protocol.EventExecutionCompleted:
		return protocol.AgentExecutor
	case protocol.EventValidationStarted, protocol.EventValidationResult:
		return protocol.AgentValidator
	}
	return protocol.AgentOrchestrator
}

func phaseOpeningMessage(e protocol.EventType) string {
	switch e {
	case protocol.EventIntentStarted:
		return "Analyzing your request"
	case protocol.EventContextStarted:
		return "Gathering project context"
	case protocol.EventPlanningStarted:
		return "Drafting an implementation plan"
	case protocol.EventExecutionStarted:
		return "Executing the plan"
	case protocol.EventValidationStarted:
		return "Validating the generated changes"
	}
	return "Processing"
}

func phaseCompletionMessage(e protocol.EventType) string {
	switch e {
	case protocol.EventIntentAnalyzed:
		return "Intent analysis complete"
	case protocol.EventContextRetrieved:
		return "Project context retrieved"
	case protocol.EventPlanCreated:
		return "Implementation plan drafted"
	case protocol.EventExecutionCompleted:
		return "All plan steps executed"
	case protocol.EventValidationResult:
		return "Validation finished"
	}
	return "Phase complete"
}
