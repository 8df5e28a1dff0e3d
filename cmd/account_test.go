package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoginWhoamiLogout(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "whoami")
	require.Contains(t, out, "Not logged in")

	out = env.mustRun(t, "login", "-u", "alice", "-p", "secret")
	require.Contains(t, out, "Logged in as alice")

	out = env.mustRun(t, "whoami")
	require.Contains(t, out, "alice")
	require.Contains(t, out, "Expires:")
	require.Contains(t, out, env.backend.URL())

	env.mustRun(t, "logout")
	out = env.mustRun(t, "whoami")
	require.Contains(t, out, "Not logged in")
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "login", "-u", "alice", "-p", "wrong")
	require.Error(t, err)

	out := env.mustRun(t, "whoami")
	require.Contains(t, out, "Not logged in")
}

func TestLogin_RequiresUsername(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "login", "-p", "secret")
	require.Error(t, err)
}

func TestRegisterThenLogin(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "register", "bob", "-p", "pw", "--nickname", "Bobby")
	require.Contains(t, out, "Registered bob")

	// Registration does not log in
	out = env.mustRun(t, "whoami")
	require.Contains(t, out, "Not logged in")

	out = env.mustRun(t, "login", "-u", "bob", "-p", "pw")
	require.Contains(t, out, "Logged in as Bobby")
}

func TestProfileUpdate(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	_, err := env.run(t, "profile", "update")
	require.Error(t, err)

	out := env.mustRun(t, "profile", "update", "--nickname", "Al")
	require.Contains(t, out, "Profile updated for Al")

	out = env.mustRun(t, "whoami")
	require.True(t, strings.HasPrefix(strings.TrimSpace(out), "Al"), "whoami output %q", out)
}

func TestPasswordChange(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out := env.mustRun(t, "password", "--old", "secret", "--new", "s3cret")
	require.Contains(t, out, "Password changed")

	env.mustRun(t, "logout")
	_, err := env.run(t, "login", "-u", "alice", "-p", "secret")
	require.Error(t, err)
	env.mustRun(t, "login", "-u", "alice", "-p", "s3cret")
}

func TestCommandsRequireLogin(t *testing.T) {
	env := newCLIEnv(t)

	tests := [][]string{
		{"sessions"},
		{"sessions", "create", "x"},
		{"history", "1"},
		{"chat", "hello"},
		{"export", "--out", t.TempDir()},
		{"password", "--old", "a", "--new", "b"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, err := env.run(t, args...)
			if err == nil || !strings.Contains(err.Error(), "not logged in") {
				t.Errorf("expected not logged in error, got %v", err)
			}
		})
	}
}
