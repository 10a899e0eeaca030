package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/laraflow/internal/session"
)

// HistoryCommand returns the CLI command for redisplaying a past conversation
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show a persisted conversation with its agent activity",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"P"},
				Usage:   "Project ID (overrides config)",
			},
			&cli.StringFlag{
				Name:     "conversation",
				Aliases:  []string{"C"},
				Usage:    "Conversation ID to load",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			controller, _, err := buildController(c)
			if err != nil {
				return err
			}

			messages, err := controller.LoadHistory(c.Context, c.String("conversation"))
			if err != nil {
				return err
			}

			for _, msg := range messages {
				fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
				if msg.ProcessingData == nil || len(msg.ProcessingData.AgentActivity) == 0 {
					continue
				}
				var entries []session.Entry
				if err := json.Unmarshal(msg.ProcessingData.AgentActivity, &entries); err != nil {
					fmt.Fprintf(os.Stderr, "  (unreadable agent activity: %v)\n", err)
					continue
				}
				RenderEntries(os.Stdout, entries)
			}
			return nil
		},
	}
}
