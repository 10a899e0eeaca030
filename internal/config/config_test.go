package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "laraflow.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
base_url = "https://api.example.test/v1"
project_id = "p42"

[auth]
token = "tok"

[chat]
interactive_mode = false

[retry]
max_retries = 7
base_delay = "250ms"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.test/v1", cfg.Server.BaseURL)
	assert.Equal(t, "p42", cfg.Server.ProjectID)
	assert.Equal(t, "tok", cfg.Auth.Token)
	assert.False(t, cfg.Chat.InteractiveMode)
	// unset keys keep their defaults
	assert.True(t, cfg.Chat.RequirePlanApproval)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxDelay)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "laraflow.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
base_url = "https://file.example.test"
project_id = "p1"
`), 0o644))

	t.Setenv("LARAFLOW_SERVER_BASE_URL", "https://env.example.test")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.test", cfg.Server.BaseURL)
	assert.Equal(t, "p1", cfg.Server.ProjectID)
}

func TestLoadConfigRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "laraflow.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nbad"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestInitConfigRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "laraflow.toml")
	require.NoError(t, InitConfig(path))

	err := InitConfig(path)
	assert.Error(t, err)

	// the generated sample parses
	cfg, lerr := LoadConfig(path)
	require.NoError(t, lerr)
	assert.Equal(t, "your-project-id", cfg.Server.ProjectID)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.Server.BaseURL = "https://api.example.test"
	cfg.Server.ProjectID = "p1"
	cfg.Auth.Token = "tok"
	assert.NoError(t, Validate(cfg))

	cfg.Auth.Token = ""
	cfg.Auth.TokenFile = ""
	assert.Error(t, Validate(cfg))

	cfg.Auth.TokenFile = "/tmp/token"
	assert.NoError(t, Validate(cfg))

	cfg.Server.ProjectID = ""
	assert.Error(t, Validate(cfg))

	cfg.Server.ProjectID = "p1"
	cfg.Server.BaseURL = ""
	assert.Error(t, Validate(cfg))
}
