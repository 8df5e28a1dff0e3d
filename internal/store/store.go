// Package store holds the session list and the active transcript.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/iksnae/copilot-session/internal"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// SessionAPI is the part of the request layer the store needs
type SessionAPI interface {
	ListSessions(ctx context.Context) ([]internal.Session, error)
	CreateSession(ctx context.Context, title, mode string) (*internal.Session, error)
	GetSession(ctx context.Context, id int64) (*internal.Session, error)
	UpdateSession(ctx context.Context, id int64, title string) (*internal.Session, error)
	DeleteSession(ctx context.Context, id int64) error
	History(ctx context.Context, id int64) ([]internal.Message, error)
}

// State is a snapshot of the store
type State struct {
	Sessions         []internal.Session
	CurrentSessionID int64
	Messages         []internal.Message
	Loading          bool
}

// transcript is the message list of one session. Stream targets keep a
// pointer to it, so a replaced transcript is never written again.
type transcript struct {
	sessionID int64
	messages  []internal.Message
}

func (t *transcript) index(id int64) int {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Store is safe for concurrent use. Every mutation notifies subscribers
// synchronously before the mutating call returns.
type Store struct {
	api  SessionAPI
	norm *internal.Normalizer
	log  zerolog.Logger
	now  func() time.Time

	mu        sync.Mutex
	sessions  []internal.Session
	active    *transcript
	retained  map[int64]*transcript
	loading   int
	selectSeq uint64
	lastID    int64

	notifier internal.Notifier[State]
}

// New creates an empty store with no active session
func New(sessionAPI SessionAPI) *Store {
	return &Store{
		api:      sessionAPI,
		norm:     internal.NewNormalizer(),
		log:      internal.ComponentLogger("store"),
		now:      time.Now,
		active:   &transcript{},
		retained: make(map[int64]*transcript),
	}
}

// Subscribe registers fn for state changes. fn must not mutate the store.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	return s.notifier.Subscribe(fn)
}

// commitLocked publishes the current state and releases s.mu
func (s *Store) commitLocked() {
	s.notifier.Publish(s.stateLocked(), s.mu.Unlock)
}

func (s *Store) stateLocked() State {
	return State{
		Sessions:         append([]internal.Session(nil), s.sessions...),
		CurrentSessionID: s.active.sessionID,
		Messages:         append([]internal.Message(nil), s.active.messages...),
		Loading:          s.loading > 0,
	}
}

// State returns a snapshot
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// CurrentSessionID returns the active session, 0 when none
func (s *Store) CurrentSessionID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.sessionID
}

// ListSessions replaces the session list with the server's
func (s *Store) ListSessions(ctx context.Context) ([]internal.Session, error) {
	sessions, err := s.api.ListSessions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}

	s.mu.Lock()
	s.sessions = append([]internal.Session(nil), sessions...)
	s.commitLocked()
	return sessions, nil
}

// CreateSession creates a session with the default mode
func (s *Store) CreateSession(ctx context.Context, title string) (*internal.Session, error) {
	return s.CreateSessionWithMode(ctx, title, "")
}

// CreateSessionWithMode creates a session and prepends it once the server
// has confirmed it. The active session does not change.
func (s *Store) CreateSessionWithMode(ctx context.Context, title, mode string) (*internal.Session, error) {
	session, err := s.api.CreateSession(ctx, title, mode)
	if err != nil {
		return nil, errors.Wrap(err, "create session")
	}

	s.mu.Lock()
	s.sessions = append([]internal.Session{*session}, removeSession(s.sessions, session.ID)...)
	s.commitLocked()
	return session, nil
}

// GetSession fetches a session and refreshes its local entry
func (s *Store) GetSession(ctx context.Context, id int64) (*internal.Session, error) {
	session, err := s.api.GetSession(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get session %d", id)
	}

	s.mu.Lock()
	if i := findSession(s.sessions, id); i >= 0 && s.sessions[i] != *session {
		s.sessions[i] = *session
		s.commitLocked()
	} else {
		s.mu.Unlock()
	}
	return session, nil
}

// RenameSession changes a session's title and updates the entry in place
func (s *Store) RenameSession(ctx context.Context, id int64, title string) (*internal.Session, error) {
	session, err := s.api.UpdateSession(ctx, id, title)
	if err != nil {
		return nil, errors.Wrapf(err, "rename session %d", id)
	}

	s.mu.Lock()
	if i := findSession(s.sessions, id); i >= 0 {
		s.sessions[i] = *session
	}
	s.commitLocked()
	return session, nil
}

// DeleteSession deletes a session. Deleting the active session clears the
// active id and transcript in the same transition.
func (s *Store) DeleteSession(ctx context.Context, id int64) error {
	if err := s.api.DeleteSession(ctx, id); err != nil {
		return errors.Wrapf(err, "delete session %d", id)
	}

	s.mu.Lock()
	s.sessions = removeSession(s.sessions, id)
	delete(s.retained, id)
	if s.active.sessionID == id {
		s.active = &transcript{}
	}
	s.commitLocked()
	s.log.Debug().Int64("session_id", id).Msg("session deleted")
	return nil
}

// SelectSession loads a session's history and makes it active. When
// selections overlap only the latest one is applied. Loading stays set
// while any selection is in flight.
func (s *Store) SelectSession(ctx context.Context, id int64) error {
	s.mu.Lock()
	s.selectSeq++
	seq := s.selectSeq
	s.loading++
	s.commitLocked()

	var (
		history []internal.Message
		loaded  bool
	)
	defer func() {
		s.mu.Lock()
		s.loading--
		if loaded && seq == s.selectSeq {
			tr := &transcript{sessionID: id, messages: s.norm.NormalizeHistory(history)}
			s.retained[id] = tr
			s.active = tr
		} else if loaded {
			s.log.Debug().Int64("session_id", id).Msg("discarding superseded selection")
		}
		s.commitLocked()
	}()

	history, err := s.api.History(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "load history of session %d", id)
	}
	loaded = true
	return nil
}

// Clear empties the transcript and unsets the active session
func (s *Store) Clear() {
	s.mu.Lock()
	if s.active.sessionID != 0 {
		delete(s.retained, s.active.sessionID)
	}
	s.active = &transcript{}
	s.commitLocked()
}

// AppendMessage appends a local message to the active transcript
func (s *Store) AppendMessage(role internal.Role, content string) internal.Message {
	s.mu.Lock()
	msg := s.appendLocked(s.active, role, content)
	s.commitLocked()
	return msg
}

func (s *Store) appendLocked(tr *transcript, role internal.Role, content string) internal.Message {
	msg := internal.Message{
		ID:        s.nextIDLocked(),
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	}
	tr.messages = append(tr.messages, msg)
	return msg
}

// nextIDLocked derives ids from the clock, strictly increasing per store
func (s *Store) nextIDLocked() int64 {
	id := internal.MessageIDFromTime(s.now())
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

func findSession(sessions []internal.Session, id int64) int {
	for i, session := range sessions {
		if session.ID == id {
			return i
		}
	}
	return -1
}

func removeSession(sessions []internal.Session, id int64) []internal.Session {
	out := make([]internal.Session, 0, len(sessions))
	for _, session := range sessions {
		if session.ID != id {
			out = append(out, session)
		}
	}
	return out
}
