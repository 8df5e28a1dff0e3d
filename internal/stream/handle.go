package stream

import (
	"context"
	"sync"

	"github.com/iksnae/copilot-session/internal"
	"github.com/iksnae/copilot-session/internal/api"
	"github.com/iksnae/copilot-session/internal/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of a handle
type State int

const (
	StateIdle State = iota
	StateOpen
	StateCompleted
	StateErrored
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// Callbacks receive the outcome of a streamed reply. They run on the
// reader goroutine without the handle locked, so they may cancel it.
// OnComplete and OnError run at most once, and never both.
type Callbacks struct {
	OnFragment func(text string)
	OnComplete func(content string)
	OnError    func(err error)
}

// Handle is one streamed reply bound to an assistant placeholder
type Handle struct {
	sessionID int64
	target    store.Target
	store     Transcript
	cb        Callbacks
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	state  State
	err    error
	stream api.Stream
}

func newHandle(ctx context.Context, st Transcript, target store.Target, cb Callbacks, log zerolog.Logger) *Handle {
	h := &Handle{
		sessionID: target.SessionID,
		target:    target,
		store:     st,
		cb:        cb,
		log: log.With().
			Int64("session_id", target.SessionID).
			Int64("message_id", target.MessageID).
			Logger(),
		done:  make(chan struct{}),
		state: StateIdle,
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	return h
}

// SessionID returns the session the reply belongs to
func (h *Handle) SessionID() int64 {
	return h.sessionID
}

// MessageID returns the id of the assistant placeholder
func (h *Handle) MessageID() int64 {
	return h.target.MessageID
}

// State returns the current state
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the error that ended the handle, if any. A handle cancelled
// because its transcript disappeared reports internal.ErrTargetGone.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Content returns the reply text received so far
func (h *Handle) Content() string {
	text, _ := h.store.Content(h.target)
	return text
}

// Done is closed once the reader has stopped
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle stops or ctx ends and returns the final state
func (h *Handle) Wait(ctx context.Context) (State, error) {
	select {
	case <-h.done:
		return h.State(), nil
	case <-ctx.Done():
		return h.State(), ctx.Err()
	}
}

// Cancel closes the connection. After it returns no fragment is applied.
// Calling it on a finished handle does nothing.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Terminal() {
		return
	}
	h.finishLocked(StateCancelled, nil)
	h.log.Debug().Msg("stream cancelled")
}

// open moves the handle out of idle before the reader starts
func (h *Handle) open() {
	h.mu.Lock()
	h.state = StateOpen
	h.mu.Unlock()
	context.AfterFunc(h.ctx, h.Cancel)
}

// run reads the stream until completion, failure or cancellation
func (h *Handle) run(transport api.Transport, req api.StreamRequest, release func(*Handle)) {
	defer close(h.done)
	defer release(h)

	s, err := transport.Open(h.ctx, req)
	if err != nil {
		h.fail(err)
		return
	}
	if !h.attach(s) {
		_ = s.Close()
		return
	}

	for {
		ev, err := s.Next()
		if err != nil {
			h.fail(err)
			return
		}
		if ev.Kind == api.EventDone {
			h.complete()
			return
		}
		if !h.apply(ev.Text) {
			return
		}
	}
}

func (h *Handle) attach(s api.Stream) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateOpen {
		return false
	}
	h.stream = s
	return true
}

// apply appends one fragment; false stops the reader. The fragment is
// written under h.mu so it cannot land after Cancel returns. Store
// subscribers and OnFragment run after h.mu is released and may cancel.
func (h *Handle) apply(text string) bool {
	h.mu.Lock()
	if h.state != StateOpen {
		h.mu.Unlock()
		return false
	}
	publish, err := h.store.StageFragment(h.target, text)
	if err != nil {
		h.finishLocked(StateCancelled, err)
		h.mu.Unlock()
		h.log.Debug().Err(err).Msg("dropping fragment, transcript is gone")
		return false
	}
	h.mu.Unlock()

	publish()
	if h.cb.OnFragment != nil {
		h.cb.OnFragment(text)
	}
	return true
}

func (h *Handle) complete() {
	h.mu.Lock()
	if h.state != StateOpen {
		h.mu.Unlock()
		return
	}
	h.finishLocked(StateCompleted, nil)
	h.mu.Unlock()

	content := h.Content()
	h.log.Debug().Int("length", len(content)).Msg("stream completed")
	if h.cb.OnComplete != nil {
		h.cb.OnComplete(content)
	}
}

func (h *Handle) fail(err error) {
	h.mu.Lock()
	if h.state != StateOpen {
		h.mu.Unlock()
		return
	}
	if h.ctx.Err() != nil {
		// the caller's context ended; that is a cancellation, not a failure
		h.finishLocked(StateCancelled, nil)
		h.mu.Unlock()
		return
	}
	if !isStreamError(err) {
		err = &internal.TransportError{Op: "read", Err: err}
	}
	h.finishLocked(StateErrored, err)
	h.mu.Unlock()

	h.log.Warn().Err(err).Msg("stream failed")
	if h.cb.OnError != nil {
		h.cb.OnError(err)
	}
}

// finishLocked enters a terminal state and releases the connection
func (h *Handle) finishLocked(state State, err error) {
	h.state = state
	h.err = err
	h.cancel()
	if h.stream != nil {
		if cerr := h.stream.Close(); cerr != nil {
			h.log.Debug().Err(cerr).Msg("closing stream")
		}
	}
}

func isStreamError(err error) bool {
	var transportErr *internal.TransportError
	var validationErr *internal.ValidationError
	return errors.As(err, &transportErr) ||
		errors.As(err, &validationErr) ||
		errors.Is(err, internal.ErrUnauthorized)
}
