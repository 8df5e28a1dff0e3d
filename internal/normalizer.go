package internal

import "time"

// Normalizer converts server history into transcript messages
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a new Normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NormalizeHistory canonicalizes roles, drops system prompts and duplicate
// entries, and fills in missing identifiers. Order is preserved.
func (n *Normalizer) NormalizeHistory(history []Message) []Message {
	messages := make([]Message, 0, len(history))
	for _, msg := range history {
		role, ok := ParseRole(string(msg.Role))
		if !ok {
			// Unknown roles are shown as user input
			role = RoleUser
		}
		if role == RoleSystem {
			continue
		}
		msg.Role = role
		messages = append(messages, msg)
	}

	messages = NewDeduplicator().Deduplicate(messages)
	n.assignMissingIDs(messages)
	return messages
}

// assignMissingIDs gives entries without a server id a unique local one
func (n *Normalizer) assignMissingIDs(messages []Message) {
	var maxID int64
	for _, msg := range messages {
		if msg.ID > maxID {
			maxID = msg.ID
		}
	}
	for i := range messages {
		if messages[i].ID != 0 {
			continue
		}
		maxID++
		messages[i].ID = maxID
		if messages[i].CreatedAt.IsZero() {
			messages[i].CreatedAt = n.now()
		}
	}
}

// NormalizeConversation builds a Conversation from a session and its raw history
func (n *Normalizer) NormalizeConversation(session Session, history []Message) *Conversation {
	return &Conversation{
		Session:  session,
		Messages: n.NormalizeHistory(history),
	}
}
