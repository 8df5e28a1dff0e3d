// Package api is the HTTP request layer for the copilot backend. It holds
// no state beyond the base URL, the timeout and the credential hook.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/iksnae/copilot-session/internal"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const apiPrefix = "/api/v1"

// Credentials supplies the bearer token and is told which token the
// server rejected.
type Credentials interface {
	Token() string
	Invalidate(rejected string)
}

// Client performs JSON calls against the backend
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
	creds   Credentials
	log     zerolog.Logger
}

// NewClient creates a client for baseURL. timeout bounds request/response
// calls; streams are bounded only by their context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		stream:  &http.Client{},
		log:     internal.ComponentLogger("api"),
	}
}

// SetCredentials installs the credential hook used by authenticated calls
func (c *Client) SetCredentials(creds Credentials) {
	c.creds = creds
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type call struct {
	method string
	path   string
	query  url.Values
	body   interface{}
	authed bool
	root   bool // path is not under /api/v1
}

func (c *Client) endpoint(path string, root bool, query url.Values) string {
	u := c.baseURL
	if !root {
		u += apiPrefix
	}
	u += path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) token() string {
	if c.creds == nil {
		return ""
	}
	return c.creds.Token()
}

// lostAuthorization drops the credential when the rejected call carried one
func (c *Client) lostAuthorization(path, sent string) error {
	if sent != "" && c.creds != nil {
		c.log.Warn().Str("path", path).Msg("credential rejected, invalidating")
		c.creds.Invalidate(sent)
	}
	return &internal.AuthorizationLostError{Path: path}
}

func (c *Client) do(ctx context.Context, cl call, out interface{}) error {
	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.endpoint(cl.path, cl.root, cl.query), body)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	sent := ""
	if cl.authed {
		sent = c.token()
		if sent != "" {
			req.Header.Set("Authorization", "Bearer "+sent)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &internal.TransportError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("request_id", requestID).
		Str("method", cl.method).
		Str("path", cl.path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api call")

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &internal.TransportError{Op: "read", Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	message := env.Message
	if decodeErr != nil || message == "" {
		message = strings.TrimSpace(string(raw))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
	}

	status := resp.StatusCode
	switch {
	case status == http.StatusUnauthorized || (status < 300 && env.Code == http.StatusUnauthorized):
		if cl.authed {
			return c.lostAuthorization(cl.path, sent)
		}
		return &internal.APIError{Path: cl.path, Status: status, Code: env.Code, Message: message}
	case status == http.StatusBadRequest || (status < 300 && env.Code == http.StatusBadRequest):
		return &internal.ValidationError{Field: "request", Reason: message}
	case status < 200 || status >= 300:
		return &internal.APIError{Path: cl.path, Status: status, Code: env.Code, Message: message}
	case decodeErr != nil:
		return &internal.APIError{Path: cl.path, Status: status, Code: -1, Message: "malformed response: " + decodeErr.Error()}
	case env.Code != 0:
		return &internal.APIError{Path: cl.path, Status: status, Code: env.Code, Message: message}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &internal.APIError{Path: cl.path, Status: status, Code: env.Code, Message: "malformed data: " + err.Error()}
	}
	return nil
}

// Health checks that the backend is reachable
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, call{method: http.MethodGet, path: "/health", root: true}, nil)
}
