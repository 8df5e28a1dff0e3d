package internal

import "time"

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Session represents a server-side chat session
type Session struct {
	ID        int64     `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Mode      string    `json:"mode,omitempty" yaml:"mode,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Message represents one transcript entry
type Message struct {
	ID        int64     `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Conversation is a session together with its transcript, as cached and exported
type Conversation struct {
	Session  `yaml:",inline"`
	Messages []Message `json:"messages" yaml:"messages"`
}

// DisplayTitle returns the title, or a placeholder for untitled sessions
func (s Session) DisplayTitle() string {
	if s.Title == "" {
		return "Untitled"
	}
	return s.Title
}
