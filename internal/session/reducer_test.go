package session

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laraflow/internal/protocol"
)

func env(event protocol.EventType, data string) protocol.Envelope {
	if data == "" {
		data = "{}"
	}
	return protocol.Envelope{Event: event, Data: json.RawMessage(data)}
}

func fixedClock() func() string {
	return func() string { return "2026-08-28T12:00:00Z" }
}

// The reference scenario from the protocol contract: a full pipeline with
// an approval gate, one executed step and a streamed answer.
func TestReduceFullScenario(t *testing.T) {
	st := NewStateAt(fixedClock())

	st.ReduceAll([]protocol.Envelope{
		env(protocol.EventConnected, `{"conversation_id":"c1"}`),
		env(protocol.EventIntentStarted, `{"agent":"nova","message":"Analyzing"}`),
		env(protocol.EventIntentAnalyzed, `{"agent":"nova","message":"Done"}`),
		env(protocol.EventPlanReady, `{"awaiting_approval":true,"plan":{"summary":"x","steps":[{"order":1,"action":"create","file":"a.php","description":"d"}]}}`),
	})

	assert.Equal(t, "c1", st.ConversationID)
	require.True(t, st.AwaitingApproval)
	require.NotNil(t, st.CurrentPlan)
	assert.Equal(t, "x", st.CurrentPlan.Summary)
	assert.Nil(t, st.Thinking)

	st.ReduceAll([]protocol.Envelope{
		env(protocol.EventPlanApproved, `{}`),
		env(protocol.EventStepStarted, `{"step":{"order":1,"action":"create","file":"a.php","description":"d"}}`),
		env(protocol.EventStepCompleted, `{"step":{"order":1}}`),
		env(protocol.EventComplete, `{"success":true,"answer":"done"}`),
	})

	require.Len(t, st.Entries, 6)

	assert.Equal(t, EntryMessage, st.Entries[0].Type)
	assert.Equal(t, KindGreeting, st.Entries[0].Kind)
	assert.Equal(t, "nova", st.Entries[0].AgentType)

	assert.Equal(t, EntryMessage, st.Entries[1].Type)
	assert.Equal(t, KindCompletion, st.Entries[1].Kind)

	assert.Equal(t, EntrySystem, st.Entries[2].Type)
	assert.Equal(t, SystemInfo, st.Entries[2].SystemType)

	assert.Equal(t, EntrySystem, st.Entries[3].Type)
	assert.Equal(t, SystemSuccess, st.Entries[3].SystemType)

	assert.Equal(t, EntryStep, st.Entries[4].Type)
	assert.True(t, st.Entries[4].Completed)
	assert.Equal(t, "a.php", st.Entries[4].FilePath)

	assert.Equal(t, EntrySystem, st.Entries[5].Type)
	assert.Equal(t, SystemSuccess, st.Entries[5].SystemType)

	// entry IDs are dense and monotonic within the session
	for i, e := range st.Entries {
		assert.Equal(t, i+1, e.ID)
	}

	assert.Nil(t, st.Thinking)
	assert.False(t, st.AwaitingApproval)
	assert.True(t, st.Terminal)
	require.NotNil(t, st.FinalMessage)
	assert.Equal(t, "done", st.FinalMessage.Content)
	assert.Equal(t, "assistant", st.FinalMessage.Role)
	assert.Equal(t, "c1", st.FinalMessage.ConversationID)
	require.NotNil(t, st.FinalMessage.ProcessingData)
	assert.NotEmpty(t, st.FinalMessage.ProcessingData.AgentActivity)
}

// FIFO pairing: every completion finishes the earliest still-open step, and
// completions beyond the number of starts are no-ops.
func TestStepPairingFIFO(t *testing.T) {
	for _, tc := range []struct {
		started, completed int
	}{
		{0, 1},
		{1, 1},
		{3, 2},
		{2, 5},
	} {
		t.Run(fmt.Sprintf("%d_started_%d_completed", tc.started, tc.completed), func(t *testing.T) {
			st := NewStateAt(fixedClock())
			for i := 0; i < tc.started; i++ {
				st.Reduce(env(protocol.EventStepStarted,
					fmt.Sprintf(`{"step":{"order":%d,"action":"modify","file":"f%d.php"}}`, i+1, i+1)))
			}
			for i := 0; i < tc.completed; i++ {
				st.Reduce(env(protocol.EventStepCompleted, `{}`))
			}

			want := tc.completed
			if tc.started < want {
				want = tc.started
			}
			var done int
			for _, e := range st.Entries {
				require.Equal(t, EntryStep, e.Type)
				if e.Completed {
					done++
				}
			}
			assert.Equal(t, want, done)

			// earliest steps complete first
			for i, e := range st.Entries {
				if i < want {
					assert.True(t, e.Completed, "entry %d should be completed", i)
				} else {
					assert.False(t, e.Completed, "entry %d should still be open", i)
				}
			}
		})
	}
}

// Thinking exclusivity: completion-family events always clear the slot,
// thinking/started-family events always leave the latest payload in it.
func TestThinkingExclusivity(t *testing.T) {
	st := NewStateAt(fixedClock())

	st.Reduce(env(protocol.EventIntentThinking, `{"agent":"intent_analyzer","thought":"first"}`))
	require.NotNil(t, st.Thinking)
	assert.Equal(t, "first", st.Thinking.Thought)

	st.Reduce(env(protocol.EventPlanningThinking, `{"agent":"planner","thought":"second","progress":0.5}`))
	require.NotNil(t, st.Thinking)
	assert.Equal(t, "second", st.Thinking.Thought)
	assert.Equal(t, "planner", st.Thinking.Agent)
	require.NotNil(t, st.Thinking.Progress)
	assert.Equal(t, 0.5, *st.Thinking.Progress)

	st.Reduce(env(protocol.EventIntentAnalyzed, `{"agent":"intent_analyzer"}`))
	assert.Nil(t, st.Thinking)

	st.Reduce(env(protocol.EventExecutionStarted, `{"agent":"executor"}`))
	require.NotNil(t, st.Thinking)

	st.Reduce(env(protocol.EventStepCompleted, `{}`))
	assert.Nil(t, st.Thinking)

	st.Reduce(env(protocol.EventValidationThinking, `{"agent":"validator","thought":"checking"}`))
	require.NotNil(t, st.Thinking)

	st.Reduce(env(protocol.EventComplete, `{}`))
	assert.Nil(t, st.Thinking)
}

func TestUnknownEventIsNoOp(t *testing.T) {
	st := NewStateAt(fixedClock())
	st.Reduce(env(protocol.EventType("telemetry_snapshot"), `{"anything":1}`))

	assert.Empty(t, st.Entries)
	assert.Nil(t, st.Thinking)
	assert.False(t, st.Terminal)
}

// complete with neither answer nor success clears transient state but
// produces no message and no entry
func TestCompleteWithoutAnswerOrSuccess(t *testing.T) {
	st := NewStateAt(fixedClock())
	st.Reduce(env(protocol.EventPlanReady, `{"awaiting_approval":true,"plan":{"summary":"p","steps":[]}}`))
	entriesBefore := len(st.Entries)

	st.Reduce(env(protocol.EventComplete, `{}`))

	assert.Len(t, st.Entries, entriesBefore)
	assert.Nil(t, st.FinalMessage)
	assert.Nil(t, st.Thinking)
	assert.False(t, st.AwaitingApproval)
	assert.Nil(t, st.CurrentPlan)
	assert.True(t, st.Terminal)
}

func TestAnswerChunksAccumulateInOrder(t *testing.T) {
	st := NewStateAt(fixedClock())
	for _, chunk := range []string{"Lar", "avel ", "rocks"} {
		st.Reduce(env(protocol.EventAnswerChunk, fmt.Sprintf(`{"chunk":%q}`, chunk)))
	}

	assert.Equal(t, "Laravel rocks", st.StreamedText)
	assert.Empty(t, st.Entries, "answer chunks have no entry log effect")

	// complete without an explicit answer falls back to the accumulator
	st.Reduce(env(protocol.EventComplete, `{"success":true}`))
	require.NotNil(t, st.FinalMessage)
	assert.Equal(t, "Laravel rocks", st.FinalMessage.Content)
}

func TestValidationResultStored(t *testing.T) {
	st := NewStateAt(fixedClock())
	st.Reduce(env(protocol.EventValidationResult,
		`{"agent":"validator","validation":{"approved":false,"score":55,"summary":"needs work","issues":[{"severity":"error","message":"missing test","file":"a.php","line":3}]}}`))

	require.NotNil(t, st.Validation)
	assert.Equal(t, 55, st.Validation.Score)
	assert.False(t, st.Validation.Approved)
	require.Len(t, st.Validation.Issues, 1)
	assert.Equal(t, "missing test", st.Validation.Issues[0].Message)

	require.Len(t, st.Entries, 1)
	assert.Equal(t, KindCompletion, st.Entries[0].Kind)
	assert.Equal(t, "needs work", st.Entries[0].Message)
}

func TestPlanReadyWithoutGatePayloadStillLogs(t *testing.T) {
	st := NewStateAt(fixedClock())
	st.Reduce(env(protocol.EventPlanReady, `{"awaiting_approval":false}`))

	assert.False(t, st.AwaitingApproval)
	assert.Nil(t, st.CurrentPlan)
	require.Len(t, st.Entries, 1)
	assert.Equal(t, EntrySystem, st.Entries[0].Type)
}

func TestErrorEventTerminatesWithEntry(t *testing.T) {
	st := NewStateAt(fixedClock())
	st.Reduce(env(protocol.EventIntentThinking, `{"agent":"intent_analyzer","thought":"x"}`))
	st.Reduce(env(protocol.EventError, `{"message":"pipeline exploded"}`))

	assert.Nil(t, st.Thinking)
	assert.True(t, st.Terminal)
	assert.Equal(t, "pipeline exploded", st.ErrorMessage)
	require.Len(t, st.Entries, 1)
	assert.Equal(t, SystemError, st.Entries[0].SystemType)
}

func TestPayloadTimestampWins(t *testing.T) {
	st := NewStateAt(fixedClock())
	st.Reduce(env(protocol.EventAgentMessage,
		`{"from_agent":"planner","message":"hi","timestamp":"2026-01-02T03:04:05Z"}`))
	st.Reduce(env(protocol.EventAgentMessage, `{"from_agent":"planner","message":"no ts"}`))

	require.Len(t, st.Entries, 2)
	assert.Equal(t, "2026-01-02T03:04:05Z", st.Entries[0].Timestamp)
	assert.Equal(t, "2026-08-28T12:00:00Z", st.Entries[1].Timestamp)
}

func TestHandoffEntry(t *testing.T) {
	st := NewStateAt(fixedClock())
	st.Reduce(env(protocol.EventAgentHandoff,
		`{"from_agent":"intent_analyzer","to_agent":"planner","message":"over to you"}`))

	require.Len(t, st.Entries, 1)
	assert.Equal(t, EntryHandoff, st.Entries[0].Type)
	assert.Equal(t, "intent_analyzer", st.Entries[0].AgentType)
	assert.Equal(t, "planner", st.Entries[0].ToAgentType)
}

func TestExecutionResultsAccumulate(t *testing.T) {
	st := NewStateAt(fixedClock())
	st.Reduce(env(protocol.EventStepStarted, `{"step":{"order":1,"action":"create","file":"a.php"}}`))
	st.Reduce(env(protocol.EventStepCompleted, `{"result":{"file":"a.php","status":"created"}}`))

	require.Len(t, st.ExecutionResults, 1)
	assert.JSONEq(t, `{"file":"a.php","status":"created"}`, string(st.ExecutionResults[0]))
}
