// Package stream drives chat turns: it echoes the user's message into the
// store, opens a stream transport and applies the reply fragments to an
// assistant placeholder as they arrive.
package stream

import (
	"context"
	"strings"
	"sync"

	"github.com/iksnae/copilot-session/internal"
	"github.com/iksnae/copilot-session/internal/api"
	"github.com/iksnae/copilot-session/internal/store"
	"github.com/rs/zerolog"
)

// Transcript is the part of the store a controller writes to
type Transcript interface {
	Anchor() store.Anchor
	AppendAt(a store.Anchor, role internal.Role, content string) (internal.Message, error)
	AppendPlaceholder(a store.Anchor, role internal.Role) (store.Target, error)
	StageFragment(t store.Target, text string) (publish func(), err error)
	Content(t store.Target) (string, bool)
}

// TokenSource supplies the bearer token for stream requests
type TokenSource interface {
	Token() string
}

// ChatAPI is the non-streaming fallback
type ChatAPI interface {
	Chat(ctx context.Context, req api.ChatRequest) (*api.ChatReply, error)
	ChatWithMode(ctx context.Context, mode string, req api.ChatRequest) (*api.ChatReply, error)
	RAGChat(ctx context.Context, req api.ChatRequest) (*api.ChatReply, error)
}

// Options are sent with non-streaming requests
type Options struct {
	Model       string
	Temperature float64
}

// Controller runs at most one streamed reply at a time
type Controller struct {
	store     Transcript
	tokens    TokenSource
	transport api.Transport
	chat      ChatAPI
	opts      Options
	log       zerolog.Logger

	// submitMu serializes Submit; mu only guards live, so store
	// subscribers may call Cancel while a turn is being set up.
	submitMu sync.Mutex
	mu       sync.Mutex
	live     *Handle
}

// New creates a controller
func New(st Transcript, tokens TokenSource, transport api.Transport, chat ChatAPI, opts Options) *Controller {
	return &Controller{
		store:     st,
		tokens:    tokens,
		transport: transport,
		chat:      chat,
		opts:      opts,
		log:       internal.ComponentLogger("stream"),
	}
}

// Submit sends message in the active session and streams the reply.
// sessionID must be the store's active session (0 for an unsaved one).
// A live handle is cancelled first. The returned handle is open; callbacks
// report how it ends. Store subscribers must not call Submit.
func (c *Controller) Submit(ctx context.Context, sessionID int64, message string, cb Callbacks) (*Handle, error) {
	anchor, err := c.anchor(sessionID, message)
	if err != nil {
		return nil, err
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()
	c.Cancel()

	if _, err := c.store.AppendAt(anchor, internal.RoleUser, message); err != nil {
		return nil, err
	}
	target, err := c.store.AppendPlaceholder(anchor, internal.RoleAssistant)
	if err != nil {
		return nil, err
	}

	h := newHandle(ctx, c.store, target, cb, c.log)
	h.open()
	c.mu.Lock()
	c.live = h
	c.mu.Unlock()

	req := api.StreamRequest{Message: message, SessionID: sessionID}
	if c.tokens != nil {
		req.Token = c.tokens.Token()
	}
	go h.run(c.transport, req, c.release)

	h.log.Debug().Msg("stream opened")
	return h, nil
}

// Live returns the open handle, nil when none
func (c *Controller) Live() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Cancel cancels the live handle, if any
func (c *Controller) Cancel() {
	c.mu.Lock()
	h := c.live
	c.live = nil
	c.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
}

func (c *Controller) release(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live == h {
		c.live = nil
	}
}

// anchor validates a turn against the active session
func (c *Controller) anchor(sessionID int64, message string) (store.Anchor, error) {
	if strings.TrimSpace(message) == "" {
		return store.Anchor{}, &internal.ValidationError{Field: "message", Reason: "must not be empty"}
	}
	anchor := c.store.Anchor()
	if anchor.SessionID() != sessionID {
		return store.Anchor{}, &internal.ValidationError{
			Field:  "session_id",
			Reason: "session is not active",
		}
	}
	return anchor, nil
}

// Chat sends message without streaming and appends the full reply
func (c *Controller) Chat(ctx context.Context, sessionID int64, message string) (*api.ChatReply, error) {
	return c.send(ctx, sessionID, message, c.chat.Chat)
}

// ChatWithMode is Chat using one of the task modes
func (c *Controller) ChatWithMode(ctx context.Context, sessionID int64, mode, message string) (*api.ChatReply, error) {
	if !internal.ValidChatMode(mode) {
		return nil, &internal.ValidationError{Field: "mode", Reason: "unknown chat mode " + mode}
	}
	return c.send(ctx, sessionID, message, func(ctx context.Context, req api.ChatRequest) (*api.ChatReply, error) {
		return c.chat.ChatWithMode(ctx, mode, req)
	})
}

// RAGChat is Chat answered from the knowledge base
func (c *Controller) RAGChat(ctx context.Context, sessionID int64, message string) (*api.ChatReply, error) {
	return c.send(ctx, sessionID, message, c.chat.RAGChat)
}

func (c *Controller) send(ctx context.Context, sessionID int64, message string,
	do func(context.Context, api.ChatRequest) (*api.ChatReply, error)) (*api.ChatReply, error) {
	anchor, err := c.anchor(sessionID, message)
	if err != nil {
		return nil, err
	}
	if _, err := c.store.AppendAt(anchor, internal.RoleUser, message); err != nil {
		return nil, err
	}

	reply, err := do(ctx, api.ChatRequest{
		Message:     message,
		SessionID:   sessionID,
		Model:       c.opts.Model,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		return nil, err
	}

	if _, err := c.store.AppendAt(anchor, internal.RoleAssistant, reply.Reply); err != nil {
		c.log.Debug().Int64("session_id", sessionID).Err(err).Msg("reply arrived after its transcript was dropped")
	}
	return reply, nil
}
