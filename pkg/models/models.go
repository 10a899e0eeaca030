package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Plan action types

const (
	ActionCreate  = "create"
	ActionModify  = "modify"
	ActionDelete  = "delete"
	ActionAnalyze = "analyze"
)

// PlanStep is one file-level action proposed by the planner
type PlanStep struct {
	Order          int    `json:"order"`
	Action         string `json:"action"` // create | modify | delete | analyze
	File           string `json:"file"`
	Description    string `json:"description"`
	Dependencies   []int  `json:"dependencies,omitempty"`
	EstimatedLines int    `json:"estimated_lines,omitempty"`
}

// Plan is the ordered set of steps proposed before execution, subject to
// user approval and editing
type Plan struct {
	Summary       string     `json:"summary"`
	Steps         []PlanStep `json:"steps"`
	EstimatedTime string     `json:"estimated_time,omitempty"`
	Complexity    string     `json:"complexity,omitempty"`
	AffectedFiles []string   `json:"affected_files,omitempty"`
}

// Normalize reassigns step orders to a dense 1..N sequence. Every plan
// mutation must call this before the plan is sent back to the server.
func (p *Plan) Normalize() {
	sort.SliceStable(p.Steps, func(i, j int) bool {
		return p.Steps[i].Order < p.Steps[j].Order
	})
	for i := range p.Steps {
		p.Steps[i].Order = i + 1
	}
}

// InsertStep inserts a step at the given 1-based position and renumbers
func (p *Plan) InsertStep(pos int, step PlanStep) {
	if pos < 1 {
		pos = 1
	}
	if pos > len(p.Steps)+1 {
		pos = len(p.Steps) + 1
	}
	idx := pos - 1
	p.Steps = append(p.Steps[:idx], append([]PlanStep{step}, p.Steps[idx:]...)...)
	for i := range p.Steps {
		p.Steps[i].Order = i + 1
	}
}

// RemoveStep removes the step with the given order and renumbers
func (p *Plan) RemoveStep(order int) error {
	for i, s := range p.Steps {
		if s.Order == order {
			p.Steps = append(p.Steps[:i], p.Steps[i+1:]...)
			for j := range p.Steps {
				p.Steps[j].Order = j + 1
			}
			return nil
		}
	}
	return fmt.Errorf("plan has no step with order %d", order)
}

// MoveStep moves the step with the given order to a new 1-based position
func (p *Plan) MoveStep(order, pos int) error {
	idx := -1
	for i, s := range p.Steps {
		if s.Order == order {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("plan has no step with order %d", order)
	}
	step := p.Steps[idx]
	p.Steps = append(p.Steps[:idx], p.Steps[idx+1:]...)
	if pos < 1 {
		pos = 1
	}
	if pos > len(p.Steps)+1 {
		pos = len(p.Steps) + 1
	}
	target := pos - 1
	p.Steps = append(p.Steps[:target], append([]PlanStep{step}, p.Steps[target:]...)...)
	for i := range p.Steps {
		p.Steps[i].Order = i + 1
	}
	return nil
}

// ValidationIssue is one problem the validator found in generated code
type ValidationIssue struct {
	Severity   string `json:"severity"` // info | warning | error | critical
	Message    string `json:"message"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ValidationResult is the validator's verdict on the executed changes
type ValidationResult struct {
	Approved    bool              `json:"approved"`
	Score       int               `json:"score"` // 0-100
	Issues      []ValidationIssue `json:"issues,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Summary     string            `json:"summary"`
}

// ProcessingData is the persisted snapshot of one task run, attached to the
// final assistant message so history can be redisplayed without re-running
// the agent pipeline. Either Events (raw envelope list, replayable) or
// AgentActivity (precomputed entry snapshot) is present.
type ProcessingData struct {
	Events           []StoredEvent     `json:"events,omitempty"`
	AgentActivity    json.RawMessage   `json:"agent_activity,omitempty"`
	Plan             *Plan             `json:"plan,omitempty"`
	ExecutionResults []json.RawMessage `json:"execution_results,omitempty"`
	Validation       *ValidationResult `json:"validation,omitempty"`
}

// StoredEvent is one raw envelope as persisted by the backend
type StoredEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Message is one persisted chat message
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Role           string          `json:"role"` // user | assistant
	Content        string          `json:"content"`
	CreatedAt      string          `json:"created_at,omitempty"`
	ProcessingData *ProcessingData `json:"processing_data,omitempty"`
}

// Conversation is a persisted chat thread for one project
type Conversation struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Title     string `json:"title,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}
