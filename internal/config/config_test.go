package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withArgs(t *testing.T, args []string) {
	t.Helper()
	old := os.Args
	os.Args = append([]string{"lmsubmit"}, args...)
	t.Cleanup(func() { os.Args = old })
}

func TestLoadConfig_Defaults(t *testing.T) {
	withArgs(t, nil)

	cfg := LoadConfig()
	assert.Equal(t, "submissions.db", cfg.DatabasePath)
	assert.Equal(t, "com.lmsubmit.file-uploads", cfg.SessionID)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Empty(t, cfg.TracingEndpoint)
}

func TestLoadConfig_Flags(t *testing.T) {
	withArgs(t, []string{"-a", "https://lms.example/api/v1", "-t", "tok", "-i", "5"})

	cfg := LoadConfig()
	assert.Equal(t, "https://lms.example/api/v1", cfg.APIEndpoint)
	assert.Equal(t, "tok", cfg.AccessToken)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
}

func TestLoadConfig_JSONAndFlagPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.json")
	jc := JSONConfig{
		APIEndpoint:  "https://json.example/api",
		DatabasePath: "json.db",
		PollInterval: "3s",
	}
	b, err := json.Marshal(jc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))

	// flags override JSON, JSON overrides defaults
	withArgs(t, []string{"-c", path, "-a", "https://flag.example/api"})

	cfg := LoadConfig()
	assert.Equal(t, "https://flag.example/api", cfg.APIEndpoint)
	assert.Equal(t, "json.db", cfg.DatabasePath)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
}
