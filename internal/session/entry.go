package session

// EntryType categorizes one item in the activity log
type EntryType string

const (
	EntryMessage EntryType = "message"
	EntryHandoff EntryType = "handoff"
	EntryStep    EntryType = "step"
	EntrySystem  EntryType = "system"
)

// MessageKind distinguishes phase-boundary messages from ordinary ones
type MessageKind string

const (
	KindGreeting   MessageKind = "greeting"
	KindCompletion MessageKind = "completion"
)

// SystemLevel is the severity of a system entry
type SystemLevel string

const (
	SystemInfo    SystemLevel = "info"
	SystemSuccess SystemLevel = "success"
	SystemWarning SystemLevel = "warning"
	SystemError   SystemLevel = "error"
)

// Entry is one permanent item in the conversation activity log. Entries are
// append-only and insertion order is the display order. The only permitted
// mutation is flipping Completed on the earliest still-open step entry.
type Entry struct {
	ID          int         `json:"id"`
	Type        EntryType   `json:"type"`
	Timestamp   string      `json:"timestamp"`
	AgentType   string      `json:"agentType,omitempty"`
	ToAgentType string      `json:"toAgentType,omitempty"`
	Message     string      `json:"message,omitempty"`
	Kind        MessageKind `json:"kind,omitempty"`
	ActionType  string      `json:"actionType,omitempty"`
	FilePath    string      `json:"filePath,omitempty"`
	Completed   bool        `json:"completed,omitempty"`
	SystemType  SystemLevel `json:"systemType,omitempty"`
}

// Thinking is the single ephemeral "currently working" slot, distinct from
// the permanent log. It is overwritten wholesale by every thinking/started
// event and cleared by every completion or terminal event.
type Thinking struct {
	Agent      string   `json:"agent"`
	Thought    string   `json:"thought"`
	ActionType string   `json:"actionType,omitempty"`
	FilePath   string   `json:"filePath,omitempty"`
	Progress   *float64 `json:"progress,omitempty"`
}
