package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Deduplicator removes duplicate history entries
type Deduplicator struct{}

// NewDeduplicator creates a new Deduplicator
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// Deduplicate keeps the first occurrence of each message. Messages with a
// server id are keyed by id, the rest by a content hash.
func (d *Deduplicator) Deduplicate(messages []Message) []Message {
	seen := make(map[string]bool)
	unique := make([]Message, 0, len(messages))

	for _, msg := range messages {
		key := d.key(msg)
		if !seen[key] {
			seen[key] = true
			unique = append(unique, msg)
		}
	}

	return unique
}

func (d *Deduplicator) key(msg Message) string {
	if msg.ID != 0 {
		return "id:" + strconv.FormatInt(msg.ID, 10)
	}
	return "hash:" + d.hashMessageContent(msg)
}

// hashMessageContent creates a content-based hash for a message
func (d *Deduplicator) hashMessageContent(msg Message) string {
	h := sha256.New()
	h.Write([]byte(msg.Role))
	h.Write([]byte(msg.Content))
	h.Write([]byte(FormatTimestamp(msg.CreatedAt)))
	return hex.EncodeToString(h.Sum(nil))
}
