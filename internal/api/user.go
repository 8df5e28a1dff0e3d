package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/iksnae/copilot-session/internal"
	"github.com/pkg/errors"
)

// Login exchanges credentials for a token. Rejected credentials yield
// *internal.AuthenticationError.
func (c *Client) Login(ctx context.Context, username, password string) (*internal.LoginResult, error) {
	if strings.TrimSpace(username) == "" {
		return nil, &internal.ValidationError{Field: "username", Reason: "must not be empty"}
	}
	if password == "" {
		return nil, &internal.ValidationError{Field: "password", Reason: "must not be empty"}
	}

	var result internal.LoginResult
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/user/login",
		body:   map[string]string{"username": username, "password": password},
	}, &result)
	if err != nil {
		var apiErr *internal.APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Code == http.StatusUnauthorized) {
			return nil, &internal.AuthenticationError{Username: username, Message: apiErr.Message, Err: err}
		}
		return nil, err
	}
	if result.Token == "" {
		return nil, &internal.APIError{Path: "/user/login", Status: http.StatusOK, Message: "response carried no token"}
	}
	return &result, nil
}

// RegisterRequest is the payload for Register
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Nickname string `json:"nickname,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Register creates an account. The token it may return is ignored.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*internal.UserProfile, error) {
	if strings.TrimSpace(req.Username) == "" {
		return nil, &internal.ValidationError{Field: "username", Reason: "must not be empty"}
	}
	if req.Password == "" {
		return nil, &internal.ValidationError{Field: "password", Reason: "must not be empty"}
	}

	var result internal.LoginResult
	err := c.do(ctx, call{method: http.MethodPost, path: "/user/register", body: req}, &result)
	if err != nil {
		var validationErr *internal.ValidationError
		if errors.As(err, &validationErr) {
			return nil, &internal.AuthenticationError{Username: req.Username, Message: validationErr.Reason, Err: err}
		}
		return nil, err
	}
	return &result.User, nil
}

// UserInfo fetches the profile of the token owner
func (c *Client) UserInfo(ctx context.Context) (*internal.UserProfile, error) {
	var profile internal.UserProfile
	if err := c.do(ctx, call{method: http.MethodGet, path: "/user/info", authed: true}, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateUserInfo changes nickname and email. Empty fields are left unchanged.
func (c *Client) UpdateUserInfo(ctx context.Context, nickname, email string) (*internal.UserProfile, error) {
	var profile internal.UserProfile
	err := c.do(ctx, call{
		method: http.MethodPut,
		path:   "/user/info",
		body:   map[string]string{"nickname": nickname, "email": email},
		authed: true,
	}, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// ChangePassword replaces the account password
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return &internal.ValidationError{Field: "password", Reason: "old and new password are required"}
	}
	return c.do(ctx, call{
		method: http.MethodPut,
		path:   "/user/password",
		body:   map[string]string{"old_password": oldPassword, "new_password": newPassword},
		authed: true,
	}, nil)
}
