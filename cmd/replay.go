package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/laraflow/internal/session"
	"github.com/laraflow/pkg/models"
)

// ReplayCommand rebuilds and prints a timeline from a stored raw event
// list, without any network access
func ReplayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Replay a stored event log into a timeline",
		ArgsUsage: "EVENTS_FILE",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("events file argument is required")
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read events file: %w", err)
			}

			var events []models.StoredEvent
			if err := json.Unmarshal(data, &events); err != nil {
				return fmt.Errorf("parse events file: %w", err)
			}

			activity, err := session.ReplayEvents(events)
			if err != nil {
				return err
			}

			var entries []session.Entry
			if err := json.Unmarshal(activity, &entries); err != nil {
				return fmt.Errorf("decode replayed entries: %w", err)
			}
			RenderEntries(os.Stdout, entries)
			return nil
		},
	}
}
