package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthcheckCommand(t *testing.T) {
	rootCmd.SetArgs([]string{"healthcheck", "--help"})

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)

	resetFlags(rootCmd)
	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("healthcheck command failed: %v", err)
	}

	if buf.String() == "" {
		t.Error("healthcheck --help should produce output")
	}
}

func TestHealthcheckCommand_States(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "healthcheck", "--details")
	require.Contains(t, out, "Configuration loaded")
	require.Contains(t, out, "Base URL:  "+env.backend.URL())
	require.Contains(t, out, "Backend healthy")
	require.Contains(t, out, "Not logged in")
	require.Contains(t, out, "not logged in")

	env.login(t)
	out = env.mustRun(t, "healthcheck", "--details")
	require.Contains(t, out, "Logged in as alice")
	require.Contains(t, out, "Token expires:")
	require.Contains(t, out, "Health check passed!")
}

func TestHealthcheckCommand_Unreachable(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, err := execute(t, "--state-dir", env.stateDir, "--base-url", "http://127.0.0.1:1", "healthcheck")
	require.Error(t, err)
	require.Contains(t, out, "Backend unreachable")
	require.Contains(t, out, "not verified")

	// The stored login survives an unreachable backend
	out = env.mustRun(t, "whoami")
	require.True(t, strings.Contains(out, "alice"), "whoami output %q", out)
}
