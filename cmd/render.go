package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/laraflow/internal/session"
	"github.com/laraflow/pkg/models"
)

// RenderEntry writes one activity log entry as a console line
func RenderEntry(w io.Writer, e session.Entry) {
	switch e.Type {
	case session.EntryStep:
		status := " "
		if e.Completed {
			status = "x"
		}
		fmt.Fprintf(w, "  [%s] %s %s", status, e.ActionType, e.FilePath)
		if e.Message != "" {
			fmt.Fprintf(w, " - %s", e.Message)
		}
		fmt.Fprintln(w)
	case session.EntryHandoff:
		fmt.Fprintf(w, "  %s -> %s: %s\n", e.AgentType, e.ToAgentType, e.Message)
	case session.EntrySystem:
		fmt.Fprintf(w, "  [%s] %s\n", strings.ToUpper(string(e.SystemType)), e.Message)
	default:
		agent := e.AgentType
		if agent == "" {
			agent = "agent"
		}
		fmt.Fprintf(w, "  %s: %s\n", agent, e.Message)
	}
}

// RenderEntries writes the whole timeline
func RenderEntries(w io.Writer, entries []session.Entry) {
	for _, e := range entries {
		RenderEntry(w, e)
	}
}

// RenderPlan writes a plan the way the approval dialog shows it
func RenderPlan(w io.Writer, plan *models.Plan) {
	if plan == nil {
		return
	}
	fmt.Fprintf(w, "Plan: %s\n", plan.Summary)
	if plan.Complexity != "" {
		fmt.Fprintf(w, "Complexity: %s\n", plan.Complexity)
	}
	for _, step := range plan.Steps {
		fmt.Fprintf(w, "  %d. %s %s", step.Order, step.Action, step.File)
		if step.Description != "" {
			fmt.Fprintf(w, " - %s", step.Description)
		}
		fmt.Fprintln(w)
	}
}

// RenderThinking writes the ephemeral thinking slot as a status line
func RenderThinking(w io.Writer, t *session.Thinking) {
	if t == nil {
		return
	}
	line := fmt.Sprintf("... %s: %s", t.Agent, t.Thought)
	if t.FilePath != "" {
		line += " (" + t.FilePath + ")"
	}
	if t.Progress != nil {
		line += fmt.Sprintf(" %.0f%%", *t.Progress*100)
	}
	fmt.Fprintln(w, line)
}
