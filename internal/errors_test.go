package internal

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestStorageError(t *testing.T) {
	originalErr := errors.New("permission denied")
	err := &StorageError{
		Path: "/test/path",
		Op:   "open",
		Err:  originalErr,
	}

	errorMsg := err.Error()
	if !strings.Contains(errorMsg, "storage error") {
		t.Errorf("StorageError.Error() should contain 'storage error', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "/test/path") {
		t.Errorf("StorageError.Error() should contain path, got: %q", errorMsg)
	}
	if !errors.Is(err, originalErr) {
		t.Error("StorageError.Unwrap() should return original error")
	}
}

func TestAuthenticationError(t *testing.T) {
	tests := []struct {
		name string
		err  *AuthenticationError
		want string
	}{
		{
			name: "server message",
			err:  &AuthenticationError{Username: "alice", Message: "invalid password"},
			want: "invalid password",
		},
		{
			name: "wrapped error",
			err:  &AuthenticationError{Username: "alice", Err: errors.New("status 401")},
			want: "status 401",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			if !strings.Contains(msg, "alice") {
				t.Errorf("AuthenticationError.Error() should contain username, got: %q", msg)
			}
			if !strings.Contains(msg, tt.want) {
				t.Errorf("AuthenticationError.Error() = %q, want it to contain %q", msg, tt.want)
			}
		})
	}
}

func TestAuthorizationLostError(t *testing.T) {
	err := errors.Wrap(&AuthorizationLostError{Path: "/session/list"}, "list sessions")

	if !IsUnauthorized(err) {
		t.Error("AuthorizationLostError should unwrap to ErrUnauthorized")
	}
	var lost *AuthorizationLostError
	if !errors.As(err, &lost) {
		t.Fatal("errors.As should find AuthorizationLostError")
	}
	if lost.Path != "/session/list" {
		t.Errorf("Path = %q, want /session/list", lost.Path)
	}
}

func TestTransportError(t *testing.T) {
	originalErr := errors.New("connection reset")
	err := &TransportError{Op: "read", Err: originalErr}

	if !strings.Contains(err.Error(), "transport error") {
		t.Errorf("TransportError.Error() should contain 'transport error', got: %q", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("TransportError.Unwrap() should return original error")
	}
	if IsUnauthorized(err) {
		t.Error("TransportError should not be reported as unauthorized")
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "message", Reason: "must not be empty"}
	if got := err.Error(); got != "invalid message: must not be empty" {
		t.Errorf("ValidationError.Error() = %q", got)
	}
}

func TestAPIError(t *testing.T) {
	err := &APIError{Path: "/session/9", Status: 404, Code: 404, Message: "session not found"}
	msg := err.Error()
	if !strings.Contains(msg, "404") || !strings.Contains(msg, "session not found") {
		t.Errorf("APIError.Error() = %q", msg)
	}
}

func TestExportError(t *testing.T) {
	originalErr := errors.New("write failed")
	err := &ExportError{
		Format: "jsonl",
		Path:   "/output/file.jsonl",
		Err:    originalErr,
	}

	errorMsg := err.Error()
	if !strings.Contains(errorMsg, "export error") {
		t.Errorf("ExportError.Error() should contain 'export error', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "jsonl") {
		t.Errorf("ExportError.Error() should contain format, got: %q", errorMsg)
	}
	if !errors.Is(err, originalErr) {
		t.Error("ExportError.Unwrap() should return original error")
	}
}
