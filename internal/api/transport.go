package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/iksnae/copilot-session/internal"
	"github.com/pkg/errors"
)

// DoneSentinel marks the end of a streamed reply
const DoneSentinel = "[DONE]"

// EventKind distinguishes stream events
type EventKind int

const (
	EventFragment EventKind = iota
	EventDone
)

// Event is one decoded stream event
type Event struct {
	Kind EventKind
	Text string
}

// StreamRequest describes a streamed chat turn
type StreamRequest struct {
	Message   string
	SessionID int64
	Token     string
}

// Stream yields events until the reply completes or fails. Next returns
// a *internal.TransportError when the connection fails or closes before
// the completion marker.
type Stream interface {
	Next() (Event, error)
	Close() error
}

// Transport opens streams for chat turns
type Transport interface {
	Open(ctx context.Context, req StreamRequest) (Stream, error)
}

// Transport returns the stream transport for kind ("sse" or "ws")
func (c *Client) Transport(kind string) (Transport, error) {
	switch kind {
	case "", internal.TransportSSE:
		return &SSETransport{client: c}, nil
	case internal.TransportWebSocket:
		return &WSTransport{client: c}, nil
	default:
		return nil, &internal.ValidationError{Field: "transport", Reason: "unknown transport " + kind}
	}
}

// decodeEvent maps a named payload to an event. The "error" event carries
// the server's failure text.
func decodeEvent(name, data string) (Event, error) {
	switch name {
	case "error":
		if data == "" {
			data = "stream failed"
		}
		return Event{}, &internal.TransportError{Op: "read", Err: errors.New(data)}
	case "done":
		return Event{Kind: EventDone}, nil
	}
	if data == DoneSentinel {
		return Event{Kind: EventDone}, nil
	}
	return Event{Kind: EventFragment, Text: data}, nil
}

func streamQuery(req StreamRequest) (url.Values, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, &internal.ValidationError{Field: "message", Reason: "must not be empty"}
	}
	q := url.Values{"message": {req.Message}}
	if req.SessionID > 0 {
		q.Set("session_id", strconv.FormatInt(req.SessionID, 10))
	}
	return q, nil
}

func streamHeaders(req StreamRequest) http.Header {
	h := http.Header{}
	h.Set("X-Request-ID", uuid.NewString())
	if req.Token != "" {
		h.Set("Authorization", "Bearer "+req.Token)
	}
	return h
}

// openFailure converts a rejected stream handshake into an error
func (c *Client) openFailure(path string, req StreamRequest, resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return c.lostAuthorization(path, req.Token)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &internal.TransportError{
		Op:  "open",
		Err: &internal.APIError{Path: path, Status: resp.StatusCode, Message: msg},
	}
}
