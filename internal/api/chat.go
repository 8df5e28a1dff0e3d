package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/iksnae/copilot-session/internal"
)

// ChatRequest is the body shared by the non-streaming chat endpoints
type ChatRequest struct {
	Message     string  `json:"message"`
	SessionID   int64   `json:"session_id,omitempty"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// ChatReply is a complete assistant reply
type ChatReply struct {
	Reply     string `json:"reply"`
	SessionID int64  `json:"session_id,omitempty"`
	Context   string `json:"context,omitempty"`
}

func validateChat(req ChatRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return &internal.ValidationError{Field: "message", Reason: "must not be empty"}
	}
	return nil
}

// Chat sends a message and waits for the full reply
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	return c.chat(ctx, "/chat", nil, req)
}

// ChatWithMode sends a message using one of the task modes
func (c *Client) ChatWithMode(ctx context.Context, mode string, req ChatRequest) (*ChatReply, error) {
	if !internal.ValidChatMode(mode) {
		return nil, &internal.ValidationError{Field: "mode", Reason: "unknown chat mode " + mode}
	}
	return c.chat(ctx, "/chat/mode", url.Values{"mode": {mode}}, req)
}

// RAGChat sends a message answered from the knowledge base
func (c *Client) RAGChat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	return c.chat(ctx, "/rag/chat", nil, req)
}

func (c *Client) chat(ctx context.Context, path string, query url.Values, req ChatRequest) (*ChatReply, error) {
	if err := validateChat(req); err != nil {
		return nil, err
	}
	var reply ChatReply
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   path,
		query:  query,
		body:   req,
		authed: true,
	}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}
