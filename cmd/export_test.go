package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExportCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	first := env.backend.AddSession("alice", "Notes")
	env.backend.AddMessage(first, "user", "first question")
	env.backend.AddMessage(first, "assistant", "first answer")
	second := env.backend.AddSession("alice", "Other")
	env.backend.AddMessage(second, "user", "second question")

	tests := []struct {
		format string
		ext    string
		want   []string
	}{
		{"md", "md", []string{"# Notes", "first question", "first answer"}},
		{"jsonl", "jsonl", []string{`"role":"user"`, "first question"}},
		{"yaml", "yaml", []string{"title: Notes", "first answer"}},
		{"json", "json", []string{`"title": "Notes"`, "first question"}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "out")
			env.mustRun(t, "export", "--format", tt.format, "--out", dir)

			data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("session_%d.%s", first, tt.ext)))
			require.NoError(t, err)
			for _, w := range tt.want {
				require.Contains(t, string(data), w)
			}
			_, err = os.Stat(filepath.Join(dir, fmt.Sprintf("session_%d.%s", second, tt.ext)))
			require.NoError(t, err)
		})
	}
}

func TestExportCommand_SingleSession(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	keep := env.backend.AddSession("alice", "Keep")
	skip := env.backend.AddSession("alice", "Skip")

	dir := t.TempDir()
	env.mustRun(t, "export", "--session-id", fmt.Sprint(keep), "--out", dir)

	_, err := os.Stat(filepath.Join(dir, fmt.Sprintf("session_%d.jsonl", keep)))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, fmt.Sprintf("session_%d.jsonl", skip)))
	require.True(t, os.IsNotExist(err))

	_, err = env.run(t, "export", "--session-id", "999", "--out", dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "session not found")
}

func TestExportCommand_Cached(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	id := env.backend.AddSession("alice", "Cached")
	env.backend.AddMessage(id, "user", "kept locally")

	env.mustRun(t, "export", "--out", t.TempDir())
	listed := env.backend.Calls("GET /api/v1/session/list")

	dir := t.TempDir()
	env.mustRun(t, "export", "--cached", "--format", "md", "--out", dir)
	data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("session_%d.md", id)))
	require.NoError(t, err)
	require.Contains(t, string(data), "kept locally")
	require.Equal(t, listed, env.backend.Calls("GET /api/v1/session/list"))

	env.mustRun(t, "logout")
	_, err = env.run(t, "export", "--cached", "--out", t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "cache belongs to")
}

func TestExportCommand_Errors(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"invalid format", []string{"export", "--format", "invalid"}, "unsupported format"},
		{"cached without cache", []string{"export", "--cached", "--out", t.TempDir()}, "no cached sessions"},
		{"clear with cached", []string{"export", "--cached", "--clear-cache"}, "cannot be combined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
