package simulator

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/laraflow/pkg/models"
)

// ScriptedEvent is one envelope the simulator will emit, with optional
// pacing and gating
type ScriptedEvent struct {
	Event        string          `json:"event"`
	Data         json.RawMessage `json:"data"`
	DelayMs      int             `json:"delay_ms,omitempty"`
	WaitApproval bool            `json:"wait_approval,omitempty"`
}

// Scenario is a full scripted pipeline run
type Scenario struct {
	Name   string          `json:"name"`
	Events []ScriptedEvent `json:"events"`
}

// LoadScenario reads a scenario from a JSON file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if len(s.Events) == 0 {
		return nil, fmt.Errorf("scenario %s has no events", path)
	}
	return &s, nil
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// DefaultScenario scripts a representative pipeline: intent analysis,
// context retrieval, planning with an approval gate, two execution steps,
// validation, and a streamed answer.
func DefaultScenario() *Scenario {
	plan := &models.Plan{
		Summary: "Add a password reset flow",
		Steps: []models.PlanStep{
			{Order: 1, Action: models.ActionCreate, File: "app/Http/Controllers/Auth/PasswordResetController.php", Description: "Create the reset controller"},
			{Order: 2, Action: models.ActionModify, File: "routes/web.php", Description: "Register reset routes"},
		},
		Complexity:    "medium",
		AffectedFiles: []string{"app/Http/Controllers/Auth/PasswordResetController.php", "routes/web.php"},
	}

	events := []ScriptedEvent{
		{Event: "intent_started", Data: mustJSON(map[string]string{"agent": "intent_analyzer", "message": "Analyzing your request"})},
		{Event: "intent_thinking", Data: mustJSON(map[string]string{"agent": "intent_analyzer", "thought": "Classifying the requested change"}), DelayMs: 40},
		{Event: "intent_analyzed", Data: mustJSON(map[string]string{"agent": "intent_analyzer", "message": "You want a password reset flow"})},
		{Event: "context_started", Data: mustJSON(map[string]string{"agent": "context_retriever", "message": "Gathering project context"})},
		{Event: "context_retrieved", Data: mustJSON(map[string]string{"agent": "context_retriever", "message": "Found auth scaffolding and route files"})},
		{Event: "planning_started", Data: mustJSON(map[string]string{"agent": "planner", "message": "Drafting an implementation plan"})},
		{Event: "plan_step_added", Data: mustJSON(map[string]interface{}{"step": plan.Steps[0]}), DelayMs: 30},
		{Event: "plan_step_added", Data: mustJSON(map[string]interface{}{"step": plan.Steps[1]}), DelayMs: 30},
		{Event: "plan_created", Data: mustJSON(map[string]string{"agent": "planner", "message": "Plan drafted with 2 steps"})},
		{Event: "plan_ready", Data: mustJSON(map[string]interface{}{"awaiting_approval": true, "plan": plan}), WaitApproval: true},
		{Event: "plan_approved", Data: mustJSON(map[string]string{})},
		{Event: "execution_started", Data: mustJSON(map[string]string{"agent": "executor", "message": "Executing the plan"})},
		{Event: "step_started", Data: mustJSON(map[string]interface{}{"step": plan.Steps[0]})},
		{Event: "step_thinking", Data: mustJSON(map[string]string{"agent": "executor", "thought": "Writing controller actions", "action_type": "create", "file_path": plan.Steps[0].File}), DelayMs: 40},
		{Event: "step_completed", Data: mustJSON(map[string]interface{}{"step": plan.Steps[0], "result": map[string]string{"file": plan.Steps[0].File, "status": "created"}})},
		{Event: "step_started", Data: mustJSON(map[string]interface{}{"step": plan.Steps[1]})},
		{Event: "step_completed", Data: mustJSON(map[string]interface{}{"step": plan.Steps[1], "result": map[string]string{"file": plan.Steps[1].File, "status": "modified"}})},
		{Event: "execution_completed", Data: mustJSON(map[string]string{"agent": "executor", "message": "All plan steps executed"})},
		{Event: "validation_started", Data: mustJSON(map[string]string{"agent": "validator", "message": "Validating the generated changes"})},
		{Event: "validation_result", Data: mustJSON(map[string]interface{}{
			"agent": "validator",
			"validation": models.ValidationResult{
				Approved: true,
				Score:    92,
				Summary:  "Changes look consistent with the existing auth flow",
			},
		})},
	}

	answer := "Added a password reset flow: new PasswordResetController plus the reset routes in routes/web.php."
	for _, word := range splitChunks(answer, 18) {
		events = append(events, ScriptedEvent{Event: "answer_chunk", Data: mustJSON(map[string]string{"chunk": word})})
	}
	events = append(events, ScriptedEvent{
		Event: "complete",
		Data:  mustJSON(map[string]interface{}{"success": true, "answer": answer}),
	})

	return &Scenario{Name: "password-reset", Events: events}
}

func splitChunks(s string, size int) []string {
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
