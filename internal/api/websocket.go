package api

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/iksnae/copilot-session/internal"
)

const wsPath = "/chat/ws"

// WSTransport streams replies over a WebSocket. Each frame is a JSON
// object {"event": ..., "data": ...}.
type WSTransport struct {
	client *Client
	dialer *websocket.Dialer
}

type wsFrame struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

func wsURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	}
	return httpURL
}

// Open dials the stream endpoint. The connection is closed when ctx is
// cancelled.
func (t *WSTransport) Open(ctx context.Context, req StreamRequest) (Stream, error) {
	q, err := streamQuery(req)
	if err != nil {
		return nil, err
	}

	dialer := t.dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL(t.client.endpoint(wsPath, false, q)), streamHeaders(req))
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, t.client.openFailure(wsPath, req, resp)
		}
		return nil, &internal.TransportError{Op: "open", Err: err}
	}

	t.client.log.Debug().Int64("session_id", req.SessionID).Msg("websocket stream opened")
	s := &wsStream{conn: conn}
	s.stop = context.AfterFunc(ctx, func() { _ = conn.Close() })
	return s, nil
}

type wsStream struct {
	conn      *websocket.Conn
	stop      func() bool
	closeOnce sync.Once
}

func (s *wsStream) Next() (Event, error) {
	var frame wsFrame
	if err := s.conn.ReadJSON(&frame); err != nil {
		return Event{}, &internal.TransportError{Op: "read", Err: err}
	}
	return decodeEvent(frame.Event, frame.Data)
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stop()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
