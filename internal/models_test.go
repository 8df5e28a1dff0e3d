package internal

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input  string
		want   Role
		wantOK bool
	}{
		{"user", RoleUser, true},
		{"assistant", RoleAssistant, true},
		{" Assistant ", RoleAssistant, true},
		{"SYSTEM", RoleSystem, true},
		{"tool", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseRole(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseRole(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestValidChatMode(t *testing.T) {
	for _, mode := range ChatModes {
		if !ValidChatMode(mode) {
			t.Errorf("ValidChatMode(%q) = false, want true", mode)
		}
	}
	if ValidChatMode("poetry") {
		t.Error("ValidChatMode(poetry) = true, want false")
	}
	if ValidChatMode(ModeRAG) {
		t.Error("rag is served by its own endpoint, not the mode endpoint")
	}
}

func TestSession_DecodeServerPayload(t *testing.T) {
	payload := `{"id":12,"user_id":3,"title":"Refactor","mode":"code_explain",
		"created_at":"2025-03-01T10:00:00Z","updated_at":"2025-03-01T11:00:00Z"}`

	var s Session
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if s.ID != 12 || s.Title != "Refactor" || s.Mode != "code_explain" {
		t.Errorf("decoded session = %+v", s)
	}
	if !s.UpdatedAt.Equal(time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("UpdatedAt = %v", s.UpdatedAt)
	}
}

func TestSession_DisplayTitle(t *testing.T) {
	if got := (Session{}).DisplayTitle(); got != "Untitled" {
		t.Errorf("DisplayTitle() = %q, want Untitled", got)
	}
	if got := (Session{Title: "Plans"}).DisplayTitle(); got != "Plans" {
		t.Errorf("DisplayTitle() = %q, want Plans", got)
	}
}

func TestConversation_FlattensSession(t *testing.T) {
	conv := Conversation{
		Session:  Session{ID: 4, Title: "t"},
		Messages: []Message{{ID: 1, Role: RoleUser, Content: "hi"}},
	}
	data, err := json.Marshal(conv)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if raw["id"] != float64(4) {
		t.Errorf("id = %v, want 4 at top level", raw["id"])
	}
	if _, ok := raw["messages"]; !ok {
		t.Error("messages missing from encoded conversation")
	}
}

func TestUserProfile_DisplayName(t *testing.T) {
	if got := (UserProfile{Username: "alice"}).DisplayName(); got != "alice" {
		t.Errorf("DisplayName() = %q, want alice", got)
	}
	if got := (UserProfile{Username: "alice", Nickname: "Al"}).DisplayName(); got != "Al" {
		t.Errorf("DisplayName() = %q, want Al", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	if got := FormatTimestamp(time.Time{}); got != "" {
		t.Errorf("FormatTimestamp(zero) = %q, want empty", got)
	}
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := FormatTimestamp(ts); got != "2024-01-02T03:04:05Z" {
		t.Errorf("FormatTimestamp() = %q", got)
	}
}
