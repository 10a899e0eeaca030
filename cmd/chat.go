package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/laraflow/internal/session"
)

// ChatCommand returns the CLI command for an interactive chat session
func ChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Chat with the agent pipeline for a project",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"P"},
				Usage:   "Project ID (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "auto-approve",
				Usage: "Approve generated plans without asking",
			},
		},
		Action: func(c *cli.Context) error {
			controller, _, err := buildController(c)
			if err != nil {
				return err
			}

			if marker, ok := controller.InProgress(); ok {
				fmt.Printf("Note: a previous run for conversation %s may still be in progress (started %s)\n",
					marker.ConversationID, marker.Timestamp)
			}

			fmt.Println("LaraFlow chat. Type a request, or /new, /quit.")
			stdin := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !stdin.Scan() {
					return stdin.Err()
				}
				line := strings.TrimSpace(stdin.Text())
				switch {
				case line == "":
					continue
				case line == "/quit", line == "/exit":
					return nil
				case line == "/new":
					controller.StartNew()
					fmt.Println("Started a new conversation.")
					continue
				}

				if err := runTurn(c.Context, controller, line, c.Bool("auto-approve"), stdin); err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				}
			}
		},
	}
}

// runTurn drives one task run: the stream runs in a goroutine while this
// loop renders new entries and handles the plan-approval gate. Ctrl-C-style
// cancellation maps to the /cancel line command.
func runTurn(ctx context.Context, controller *session.Controller, text string, autoApprove bool, stdin *bufio.Scanner) error {
	done := make(chan error, 1)
	go func() {
		done <- controller.SendMessage(ctx, text)
	}()

	rendered := 0
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			rendered = renderNew(controller, rendered)
			st := controller.State()
			if st != nil && st.FinalMessage != nil {
				fmt.Printf("\n%s\n", st.FinalMessage.Content)
			}
			return err
		case <-ticker.C:
			rendered = renderNew(controller, rendered)

			if awaiting, _ := controller.Gate(); !awaiting {
				continue
			}
			if err := resolveGate(ctx, controller, autoApprove, stdin); err != nil {
				fmt.Fprintf(os.Stderr, "Gate error (plan still pending): %v\n", err)
			}
		}
	}
}

func renderNew(controller *session.Controller, rendered int) int {
	entries := controller.Entries()
	if rendered > len(entries) {
		rendered = len(entries)
	}
	for _, e := range entries[rendered:] {
		RenderEntry(os.Stdout, e)
	}
	return len(entries)
}

func resolveGate(ctx context.Context, controller *session.Controller, autoApprove bool, stdin *bufio.Scanner) error {
	_, plan := controller.Gate()
	RenderPlan(os.Stdout, plan)

	if autoApprove {
		fmt.Println("Auto-approving plan.")
		return controller.ApprovePlan(ctx, nil)
	}

	fmt.Print("Approve this plan? [y/N/reason]: ")
	if !stdin.Scan() {
		return controller.RejectPlan(ctx, "input closed")
	}
	answer := strings.TrimSpace(stdin.Text())
	switch strings.ToLower(answer) {
	case "y", "yes":
		return controller.ApprovePlan(ctx, nil)
	case "", "n", "no":
		return controller.RejectPlan(ctx, "")
	default:
		return controller.RejectPlan(ctx, answer)
	}
}
