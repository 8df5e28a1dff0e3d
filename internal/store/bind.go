package store

import (
	"github.com/iksnae/copilot-session/internal"
)

// Anchor pins the transcript that was active when it was taken. Writes
// through an anchor never reach a different session.
type Anchor struct {
	sessionID int64
	tr        *transcript
}

// SessionID returns the session the anchor is bound to
func (a Anchor) SessionID() int64 {
	return a.sessionID
}

// Target identifies one message inside an anchored transcript
type Target struct {
	SessionID int64
	MessageID int64
	tr        *transcript
}

// Anchor returns an anchor on the active transcript
func (s *Store) Anchor() Anchor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Anchor{sessionID: s.active.sessionID, tr: s.active}
}

// liveLocked reports whether tr is still held by the store
func (s *Store) liveLocked(tr *transcript) bool {
	if tr == nil {
		return false
	}
	if tr == s.active {
		return true
	}
	return tr.sessionID != 0 && s.retained[tr.sessionID] == tr
}

// finishLocked publishes when tr is visible, otherwise just unlocks
func (s *Store) finishLocked(tr *transcript) {
	if tr == s.active {
		s.commitLocked()
		return
	}
	s.mu.Unlock()
}

// AppendAt appends a message to the anchored transcript
func (s *Store) AppendAt(a Anchor, role internal.Role, content string) (internal.Message, error) {
	s.mu.Lock()
	if !s.liveLocked(a.tr) {
		s.mu.Unlock()
		return internal.Message{}, internal.ErrTargetGone
	}
	msg := s.appendLocked(a.tr, role, content)
	s.finishLocked(a.tr)
	return msg, nil
}

// AppendPlaceholder appends an empty message to the anchored transcript
// and returns a target for filling it in.
func (s *Store) AppendPlaceholder(a Anchor, role internal.Role) (Target, error) {
	msg, err := s.AppendAt(a, role, "")
	if err != nil {
		return Target{}, err
	}
	return Target{SessionID: a.sessionID, MessageID: msg.ID, tr: a.tr}, nil
}

// ApplyFragment appends text to the target message. It returns
// internal.ErrTargetGone once the transcript or the message is gone.
func (s *Store) ApplyFragment(t Target, text string) error {
	publish, err := s.StageFragment(t, text)
	if err != nil {
		return err
	}
	publish()
	return nil
}

// StageFragment is ApplyFragment without the notification. The caller must
// call publish exactly once, after releasing any lock a subscriber might
// need.
func (s *Store) StageFragment(t Target, text string) (publish func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.liveLocked(t.tr) {
		return nil, internal.ErrTargetGone
	}
	i := t.tr.index(t.MessageID)
	if i < 0 {
		return nil, internal.ErrTargetGone
	}
	t.tr.messages[i].Content += text

	tr := t.tr
	return func() {
		s.mu.Lock()
		s.finishLocked(tr)
	}, nil
}

// Content returns the current text of the target message
func (s *Store) Content(t Target) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.liveLocked(t.tr) {
		return "", false
	}
	i := t.tr.index(t.MessageID)
	if i < 0 {
		return "", false
	}
	return t.tr.messages[i].Content, true
}

// Transcript returns the retained messages of a session loaded in this
// process, including sessions that are no longer active.
func (s *Store) Transcript(sessionID int64) ([]internal.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr := s.retained[sessionID]
	if sessionID == s.active.sessionID {
		tr = s.active
	}
	if tr == nil {
		return nil, false
	}
	return append([]internal.Message(nil), tr.messages...), true
}
