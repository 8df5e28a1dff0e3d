package cmd

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/iksnae/copilot-session/internal"
	"github.com/stretchr/testify/require"
)

func TestSessionsLifecycle(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out := env.mustRun(t, "sessions")
	require.Contains(t, out, "No sessions found")

	out = env.mustRun(t, "sessions", "create", "First")
	require.Contains(t, out, "Created session")
	require.Contains(t, out, "(First)")

	id := env.backend.AddSession("alice", "Second")
	out = env.mustRun(t, "sessions")
	require.Contains(t, out, "Found 2 session(s)")
	require.Contains(t, out, "First")
	require.Contains(t, out, "Second")

	out = env.mustRun(t, "sessions", "rename", fmt.Sprint(id), "Renamed")
	require.Contains(t, out, "Renamed session")
	require.Contains(t, env.backend.SessionTitles(), "Renamed")

	out = env.mustRun(t, "sessions", "delete", fmt.Sprint(id))
	require.Contains(t, out, fmt.Sprintf("Deleted session %d", id))
	require.NotContains(t, env.backend.SessionTitles(), "Renamed")
}

func TestSessionsCreate_Mode(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	_, err := env.run(t, "sessions", "create", "x", "--mode", "bogus")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown mode")

	env.mustRun(t, "sessions", "create", "Review", "--mode", internal.ModeCodeExplain)
	out := env.mustRun(t, "sessions")
	require.Contains(t, out, internal.ModeCodeExplain)
}

func TestSessionsCached(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "sessions", "--cached")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no cached sessions")

	env.login(t)
	env.backend.AddSession("alice", "Kept offline")
	env.mustRun(t, "sessions")

	out := env.mustRun(t, "sessions", "--cached")
	require.Contains(t, out, "Kept offline")
	require.Contains(t, out, "Messages")
}

func TestCachedCommands_OtherAccount(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	id := env.backend.AddSession("alice", "Alice private")
	env.backend.AddMessage(id, "user", "alice only")
	env.mustRun(t, "sessions")
	env.mustRun(t, "history", fmt.Sprint(id))

	env.backend.AddUser("bob", "hunter2")
	env.mustRun(t, "login", "-u", "bob", "-p", "hunter2")

	for _, args := range [][]string{
		{"sessions", "--cached"},
		{"history", fmt.Sprint(id), "--cached"},
		{"export", "--cached", "--out", t.TempDir()},
	} {
		out, err := env.run(t, args...)
		require.Error(t, err, "%v", args)
		require.Contains(t, err.Error(), `cache belongs to "alice"`, "%v", args)
		require.NotContains(t, out, "alice only")
	}

	env.mustRun(t, "sessions")
	out := env.mustRun(t, "sessions", "--cached")
	require.NotContains(t, out, "Alice private")
	_, err := env.run(t, "history", fmt.Sprint(id), "--cached")
	require.Error(t, err)
	require.Contains(t, err.Error(), "is not cached")
}

func TestSessions_InvalidID(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	for _, args := range [][]string{
		{"sessions", "delete", "abc"},
		{"sessions", "rename", "0", "x"},
		{"history", "0"},
	} {
		_, err := env.run(t, args...)
		if err == nil || !strings.Contains(err.Error(), "invalid session id") {
			t.Errorf("%v: expected invalid session id error, got %v", args, err)
		}
	}
}

func TestDisplaySessions(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	sessions := []internal.Session{
		{ID: 7, Title: "Planning", Mode: "chat", UpdatedAt: now.Add(-time.Hour)},
		{ID: 3, Title: strings.Repeat("long ", 20), CreatedAt: now.Add(-48 * time.Hour)},
		{ID: 1},
	}

	tests := []struct {
		name     string
		sessions []internal.Session
		counts   map[int64]int
		want     []string
		notWant  []string
	}{
		{
			name:     "empty",
			sessions: nil,
			want:     []string{"No sessions found"},
		},
		{
			name:     "online",
			sessions: sessions,
			want:     []string{"Found 3 session(s)", "Planning", "Untitled", "...", "Today 11:00", "history <id>"},
			notWant:  []string{"Messages"},
		},
		{
			name:     "cached",
			sessions: sessions,
			counts:   map[int64]int{7: 12},
			want:     []string{"Messages", "12"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			displaySessions(&buf, tt.sessions, tt.counts, now)
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("output should not contain %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestFormatWhen(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero", time.Time{}, "—"},
		{"today", now.Add(-2 * time.Hour), "Today 10:00"},
		{"this week", now.Add(-72 * time.Hour), "Sat 12:00"},
		{"this year", now.AddDate(0, -2, 0), "Apr 10 12:00"},
		{"older", now.AddDate(-2, 0, 0), "2023-06-10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatWhen(tt.t, now); got != tt.want {
				t.Errorf("formatWhen() = %q, want %q", got, tt.want)
			}
		})
	}
}
