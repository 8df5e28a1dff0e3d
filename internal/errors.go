package internal

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnauthorized marks a request rejected because the bearer credential
	// is missing, expired or revoked.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTargetGone is returned when a stream or reply is bound to a
	// transcript that no longer exists in the store.
	ErrTargetGone = errors.New("target transcript no longer exists")
)

// AuthenticationError represents rejected credentials on login or register
type AuthenticationError struct {
	Username string
	Message  string
	Err      error
}

func (e *AuthenticationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("authentication failed for %q: %s", e.Username, msg)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// AuthorizationLostError is returned by an authenticated call the server
// rejected as unauthorized. The credential has already been dropped when
// the caller sees it.
type AuthorizationLostError struct {
	Path string
}

func (e *AuthorizationLostError) Error() string {
	return fmt.Sprintf("authorization lost: %s", e.Path)
}

func (e *AuthorizationLostError) Unwrap() error {
	return ErrUnauthorized
}

// TransportError represents a dropped stream or a network failure
type TransportError struct {
	Op  string // "open", "read", "request"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError represents a malformed request
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// APIError represents a non-success response envelope
type APIError struct {
	Path    string
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error [%d/%d] %s: %s", e.Status, e.Code, e.Path, e.Message)
}

// StorageError represents errors accessing local state
type StorageError struct {
	Path string
	Op   string // "open", "read", "write", "delete"
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err was caused by a rejected credential
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
