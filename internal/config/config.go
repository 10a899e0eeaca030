package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		BaseURL   string `koanf:"base_url"`
		ProjectID string `koanf:"project_id"`
	} `koanf:"server"`

	Auth struct {
		Token     string `koanf:"token"`
		TokenFile string `koanf:"token_file"`
	} `koanf:"auth"`

	Chat struct {
		InteractiveMode     bool   `koanf:"interactive_mode"`
		RequirePlanApproval bool   `koanf:"require_plan_approval"`
		StateFile           string `koanf:"state_file"`
	} `koanf:"chat"`

	Retry struct {
		MaxRetries int           `koanf:"max_retries"`
		BaseDelay  time.Duration `koanf:"base_delay"`
		MaxDelay   time.Duration `koanf:"max_delay"`
	} `koanf:"retry"`
}

// LoadConfig loads the configuration from a file, falling back to default
// locations, then applies LARAFLOW_ environment overrides
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"server.base_url":            "http://localhost:8787/api/v1",
		"chat.interactive_mode":      true,
		"chat.require_plan_approval": true,
		"chat.state_file":            "./lfdata/state.json",
		"retry.max_retries":          3,
		"retry.base_delay":           "500ms",
		"retry.max_delay":            "10s",
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./lfdata/laraflow.toml", "./laraflow.toml", "$HOME/.laraflow.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix LARAFLOW_
	k.Load(env.Provider("LARAFLOW_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "LARAFLOW_")), "_", ".", 1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# LaraFlow Configuration

[server]
base_url = "https://app.laraflow.dev/api/v1"
project_id = "your-project-id"

[auth]
# Either paste the token here or point token_file at a file holding it
token = ""
token_file = "$HOME/.laraflow-token"

[chat]
interactive_mode = true
require_plan_approval = true
state_file = "./lfdata/state.json"

[retry]
max_retries = 3
base_delay = "500ms"
max_delay = "10s"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server base_url is required")
	}
	if config.Server.ProjectID == "" {
		return fmt.Errorf("server project_id is required")
	}
	if config.Auth.Token == "" && config.Auth.TokenFile == "" {
		return fmt.Errorf("auth token or token_file is required")
	}
	return nil
}
