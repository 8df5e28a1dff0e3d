package api

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/iksnae/copilot-session/internal"
)

const ssePath = "/chat/stream"

// SSETransport streams replies over server-sent events
type SSETransport struct {
	client *Client
}

// Open starts the stream. The connection lives until ctx is cancelled or
// the stream is closed.
func (t *SSETransport) Open(ctx context.Context, req StreamRequest) (Stream, error) {
	q, err := streamQuery(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.client.endpoint(ssePath, false, q), nil)
	if err != nil {
		return nil, &internal.TransportError{Op: "open", Err: err}
	}
	httpReq.Header = streamHeaders(req)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.stream.Do(httpReq)
	if err != nil {
		return nil, &internal.TransportError{Op: "open", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, t.client.openFailure(ssePath, req, resp)
	}

	t.client.log.Debug().Int64("session_id", req.SessionID).Msg("sse stream opened")
	return &sseStream{
		body:   resp.Body,
		reader: bufio.NewReaderSize(resp.Body, 64*1024),
	}, nil
}

type sseStream struct {
	body      io.ReadCloser
	reader    *bufio.Reader
	closeOnce sync.Once
}

// Next reads lines until a blank line dispatches an event. Comment lines
// are skipped and multi-line data is joined with "\n".
func (s *sseStream) Next() (Event, error) {
	var (
		name    string
		data    []string
		pending bool
	)
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return Event{}, &internal.TransportError{Op: "read", Err: err}
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !pending {
				continue
			}
			return decodeEvent(name, strings.Join(data, "\n"))
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
			pending = true
		case "data":
			data = append(data, value)
			pending = true
		}
	}
}

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}
