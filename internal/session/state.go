package session

import (
	"encoding/json"
	"time"

	"github.com/laraflow/pkg/models"
)

// State holds everything owned by one task run: the permanent entry log,
// the ephemeral thinking slot, the plan-approval gate and the streamed
// answer accumulator. A fresh State is created per run; nothing is shared
// across sessions.
type State struct {
	ConversationID   string
	IsLoading        bool
	IsStreaming      bool
	StreamedText     string
	Entries          []Entry
	Thinking         *Thinking
	AwaitingApproval bool
	CurrentPlan      *models.Plan
	Validation       *models.ValidationResult
	ExecutionResults []json.RawMessage
	ErrorMessage     string
	FinalMessage     *models.Message
	Terminal         bool

	// now is injectable so tests get deterministic timestamps
	now func() string

	nextID int
	// openSteps holds entry indexes of step entries with Completed=false,
	// in start order. step_completed always finishes the front of the
	// queue, making the FIFO pairing invariant explicit.
	openSteps []int
}

// NewState creates an empty session state
func NewState() *State {
	return &State{
		now: func() string { return time.Now().UTC().Format(time.RFC3339) },
	}
}

// NewStateAt creates a session state with a fixed clock, for tests and
// history replay where capture time must not leak in.
func NewStateAt(now func() string) *State {
	s := NewState()
	if now != nil {
		s.now = now
	}
	return s
}

// appendEntry assigns the next per-session ID and appends. Returns the
// entry's index in the log.
func (s *State) appendEntry(e Entry) int {
	s.nextID++
	e.ID = s.nextID
	if e.Timestamp == "" {
		e.Timestamp = s.now()
	}
	s.Entries = append(s.Entries, e)
	return len(s.Entries) - 1
}

// AppendUserEntry records the user's message optimistically, before the
// stream request is issued
func (s *State) AppendUserEntry(text string) {
	s.appendEntry(Entry{
		Type:      EntryMessage,
		AgentType: "user",
		Message:   text,
	})
}

// SnapshotEntries returns a deep copy of the entry log for persistence.
// Entry holds no reference fields, so an element-wise copy is a deep copy.
func (s *State) SnapshotEntries() []Entry {
	out := make([]Entry, len(s.Entries))
	copy(out, s.Entries)
	return out
}
