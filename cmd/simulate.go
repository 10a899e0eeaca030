package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/laraflow/internal/simulator"
)

// SimulateCommand returns the CLI command for the local agent simulator
func SimulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Run a local stand-in for the agent service",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the simulator",
				Value:   8787,
			},
			&cli.StringFlag{
				Name:  "scenario",
				Usage: "Scenario JSON file (defaults to a built-in pipeline)",
			},
		},
		Action: func(c *cli.Context) error {
			var scenario *simulator.Scenario
			if path := c.String("scenario"); path != "" {
				var err error
				scenario, err = simulator.LoadScenario(path)
				if err != nil {
					return err
				}
			}
			return simulator.NewServer(scenario).Start(c.Int("port"))
		},
	}
}
