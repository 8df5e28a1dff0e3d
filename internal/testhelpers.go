package internal

import (
	"time"
)

// CreateTestConversation creates a conversation with a short exchange
func CreateTestConversation(id int64) *Conversation {
	created := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	return &Conversation{
		Session: Session{
			ID:        id,
			Title:     "Test Conversation",
			Mode:      ModeChat,
			CreatedAt: created,
			UpdatedAt: created.Add(time.Minute),
		},
		Messages: []Message{
			{
				ID:        id*100 + 1,
				Role:      RoleUser,
				Content:   "Hello, how are you?",
				CreatedAt: created,
			},
			{
				ID:        id*100 + 2,
				Role:      RoleAssistant,
				Content:   "I'm doing well, thank you!",
				CreatedAt: created.Add(time.Second),
			},
		},
	}
}

// CreateTestConversationWithMessages creates a conversation with custom messages
func CreateTestConversationWithMessages(id int64, messages []Message) *Conversation {
	conv := CreateTestConversation(id)
	conv.Messages = messages
	return conv
}

// CreateTestSessions creates n sessions with descending ids, newest first
func CreateTestSessions(n int) []Session {
	sessions := make([]Session, 0, n)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := n; i >= 1; i-- {
		sessions = append(sessions, Session{
			ID:        int64(i),
			Title:     "Session " + string(rune('A'+i-1)),
			Mode:      ModeChat,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			UpdatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	return sessions
}
