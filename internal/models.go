package internal

import (
	"strings"
	"time"
)

// UserProfile is the cached identity of the logged-in user
type UserProfile struct {
	ID       int64  `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
	Nickname string `json:"nickname,omitempty" yaml:"nickname,omitempty"`
	Email    string `json:"email,omitempty" yaml:"email,omitempty"`
}

// DisplayName prefers the nickname over the username
func (p UserProfile) DisplayName() string {
	if p.Nickname != "" {
		return p.Nickname
	}
	return p.Username
}

// Credential is the bearer token plus the profile fetched for it.
// Profile is nil while the fetch is pending.
type Credential struct {
	Token   string
	Profile *UserProfile
}

// Empty reports whether no token is held
func (c Credential) Empty() bool {
	return c.Token == ""
}

// LoginResult is the payload returned by login and register
type LoginResult struct {
	Token string      `json:"token"`
	User  UserProfile `json:"user"`
}

// Chat modes understood by the mode endpoint
const (
	ModeChat         = "chat"
	ModeCodeGenerate = "code_generate"
	ModeCodeExplain  = "code_explain"
	ModeCodeOptimize = "code_optimize"
	ModeCodeVuln     = "code_vuln"
	ModeCodeTest     = "code_test"
	ModeRAG          = "rag"
)

// ChatModes lists the modes accepted by ChatWithMode
var ChatModes = []string{
	ModeChat,
	ModeCodeGenerate,
	ModeCodeExplain,
	ModeCodeOptimize,
	ModeCodeVuln,
	ModeCodeTest,
}

// ValidChatMode reports whether mode is accepted by the mode endpoint
func ValidChatMode(mode string) bool {
	for _, m := range ChatModes {
		if m == mode {
			return true
		}
	}
	return false
}

// ParseRole converts a wire role into a Role. Unknown roles are reported as not ok.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, true
	case "assistant":
		return RoleAssistant, true
	case "system":
		return RoleSystem, true
	default:
		return "", false
	}
}

// FormatTimestamp formats t as RFC3339, or "" for the zero time
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// MessageIDFromTime derives a local message identifier from a timestamp
func MessageIDFromTime(t time.Time) int64 {
	return t.UnixMilli()
}
