package internal

import (
	"testing"
	"time"
)

func TestDeduplicator_Deduplicate(t *testing.T) {
	ts := time.Date(2025, 2, 2, 9, 0, 0, 0, time.UTC)
	d := NewDeduplicator()

	tests := []struct {
		name     string
		messages []Message
		want     []string
	}{
		{
			name:     "no messages",
			messages: []Message{},
			want:     []string{},
		},
		{
			name: "distinct ids kept",
			messages: []Message{
				{ID: 1, Role: RoleUser, Content: "same"},
				{ID: 2, Role: RoleUser, Content: "same"},
			},
			want: []string{"same", "same"},
		},
		{
			name: "repeated id keeps first",
			messages: []Message{
				{ID: 1, Role: RoleUser, Content: "first"},
				{ID: 1, Role: RoleUser, Content: "second"},
			},
			want: []string{"first"},
		},
		{
			name: "id-less duplicates collapse by content",
			messages: []Message{
				{Role: RoleAssistant, Content: "a", CreatedAt: ts},
				{Role: RoleAssistant, Content: "a", CreatedAt: ts},
				{Role: RoleAssistant, Content: "a", CreatedAt: ts.Add(time.Second)},
			},
			want: []string{"a", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Deduplicate(tt.messages)
			if len(got) != len(tt.want) {
				t.Fatalf("Deduplicate() returned %d messages, want %d", len(got), len(tt.want))
			}
			for i, msg := range got {
				if msg.Content != tt.want[i] {
					t.Errorf("message %d content = %q, want %q", i, msg.Content, tt.want[i])
				}
			}
		})
	}
}

func TestDeduplicator_HashStable(t *testing.T) {
	d := NewDeduplicator()
	msg := Message{Role: RoleUser, Content: "hello"}
	if d.hashMessageContent(msg) != d.hashMessageContent(msg) {
		t.Error("hashMessageContent() should be stable for same input")
	}
	other := Message{Role: RoleAssistant, Content: "hello"}
	if d.hashMessageContent(msg) == d.hashMessageContent(other) {
		t.Error("hashMessageContent() should differ when role differs")
	}
}
