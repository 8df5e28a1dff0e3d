package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/iksnae/copilot-session/internal"
)

// HistoryEntry is one stored message as returned by the history endpoint
type HistoryEntry struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ListSessions returns the user's sessions in server order
func (c *Client) ListSessions(ctx context.Context) ([]internal.Session, error) {
	var sessions []internal.Session
	if err := c.do(ctx, call{method: http.MethodGet, path: "/session/list", authed: true}, &sessions); err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []internal.Session{}
	}
	return sessions, nil
}

// CreateSession creates a session. Empty title and mode take server defaults.
func (c *Client) CreateSession(ctx context.Context, title, mode string) (*internal.Session, error) {
	var session internal.Session
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/session",
		body:   map[string]string{"title": title, "mode": mode},
		authed: true,
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession fetches a single session
func (c *Client) GetSession(ctx context.Context, id int64) (*internal.Session, error) {
	var session internal.Session
	if err := c.do(ctx, call{method: http.MethodGet, path: sessionPath(id), authed: true}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateSession renames a session
func (c *Client) UpdateSession(ctx context.Context, id int64, title string) (*internal.Session, error) {
	if title == "" {
		return nil, &internal.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	var session internal.Session
	err := c.do(ctx, call{
		method: http.MethodPut,
		path:   sessionPath(id),
		body:   map[string]string{"title": title},
		authed: true,
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession deletes a session and its history
func (c *Client) DeleteSession(ctx context.Context, id int64) error {
	return c.do(ctx, call{method: http.MethodDelete, path: sessionPath(id), authed: true}, nil)
}

// History returns the stored messages of a session in ascending order
func (c *Client) History(ctx context.Context, id int64) ([]internal.Message, error) {
	var entries []HistoryEntry
	if err := c.do(ctx, call{method: http.MethodGet, path: sessionPath(id) + "/history", authed: true}, &entries); err != nil {
		return nil, err
	}

	messages := make([]internal.Message, 0, len(entries))
	for _, e := range entries {
		messages = append(messages, internal.Message{
			ID:        e.ID,
			Role:      internal.Role(e.Role),
			Content:   e.Content,
			CreatedAt: e.CreatedAt,
		})
	}
	return messages, nil
}

func sessionPath(id int64) string {
	return fmt.Sprintf("/session/%d", id)
}
