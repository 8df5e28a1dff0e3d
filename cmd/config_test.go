package cmd

import (
	"testing"
	"time"

	"github.com/iksnae/copilot-session/internal"
	"github.com/stretchr/testify/require"
)

func TestConfigSetShow(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "config", "show")
	require.Contains(t, out, "transport: sse")

	env.mustRun(t, "config", "set", "transport", "ws")
	env.mustRun(t, "config", "set", "timeout", "45")

	out = env.mustRun(t, "config", "show")
	require.Contains(t, out, "transport: ws")
	require.Contains(t, out, "timeout: 45s")
	require.Contains(t, out, "state dir: "+env.stateDir)

	// Streaming follows the persisted transport
	out = env.mustRun(t, "login", "-u", "alice", "-p", "secret")
	require.Contains(t, out, "Logged in")
	env.mustRun(t, "chat", "over websocket")
	require.Equal(t, 1, env.backend.Calls("GET /api/v1/chat/ws"))
}

func TestConfigSet_Errors(t *testing.T) {
	env := newCLIEnv(t)

	tests := [][]string{
		{"config", "set", "color", "blue"},
		{"config", "set", "transport", "carrier-pigeon"},
		{"config", "set", "timeout", "soon"},
		{"config", "set", "temperature", "5"},
		{"config", "set", "mode", "poetry"},
		{"config", "set", "base_url", "not a url"},
	}
	for _, args := range tests {
		if _, err := env.run(t, args...); err == nil {
			t.Errorf("%v should fail", args)
		}
	}
}

func TestSetConfigValue(t *testing.T) {
	cfg := internal.DefaultConfig()
	require.NoError(t, setConfigValue(&cfg, "base_url", "https://copilot.example.com/"))
	require.NoError(t, setConfigValue(&cfg, "timeout", "2m"))
	require.NoError(t, setConfigValue(&cfg, "temperature", "0.2"))
	require.NoError(t, setConfigValue(&cfg, "model", "gpt-x"))

	require.Equal(t, "https://copilot.example.com", cfg.BaseURL)
	require.Equal(t, 2*time.Minute, cfg.Timeout)
	require.Equal(t, 0.2, cfg.Temperature)
	require.Equal(t, "gpt-x", cfg.Model)
}
