package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/laraflow/internal/auth"
	"github.com/laraflow/internal/client"
	"github.com/laraflow/internal/config"
	"github.com/laraflow/internal/retry"
	"github.com/laraflow/internal/session"
	"github.com/laraflow/internal/store"
)

// buildController wires the configured client, token store and state store
// into a session controller. Shared by the chat and history commands.
func buildController(c *cli.Context) (*session.Controller, *config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if project := c.String("project"); project != "" {
		cfg.Server.ProjectID = project
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tokens, err := tokenStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.NewFile(cfg.Chat.StateFile)
	if err != nil {
		return nil, nil, fmt.Errorf("open state store: %w", err)
	}

	api := client.New(cfg.Server.BaseURL, tokens)
	retryCfg := retry.DefaultConfig()
	if cfg.Retry.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.Retry.MaxRetries
	}
	if cfg.Retry.BaseDelay > 0 {
		retryCfg.BaseDelay = cfg.Retry.BaseDelay
	}
	if cfg.Retry.MaxDelay > 0 {
		retryCfg.MaxDelay = cfg.Retry.MaxDelay
	}

	controller := session.NewController(api, st, cfg.Server.ProjectID, session.Options{
		InteractiveMode:     cfg.Chat.InteractiveMode,
		RequirePlanApproval: cfg.Chat.RequirePlanApproval,
		Retry:               retryCfg,
	})
	return controller, cfg, nil
}

func tokenStore(cfg *config.Config) (*auth.TokenStore, error) {
	if cfg.Auth.Token != "" {
		return auth.NewStatic(cfg.Auth.Token), nil
	}
	tokens, err := auth.NewFromFile(cfg.Auth.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("load auth token: %w", err)
	}
	return tokens, nil
}
