package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/iksnae/copilot-session/internal"
	"github.com/iksnae/copilot-session/testutil"
	"github.com/stretchr/testify/require"
)

type fakeCreds struct {
	mu          sync.Mutex
	token       string
	rejected    string
	invalidated int
}

func (f *fakeCreds) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeCreds) Invalidate(rejected string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
	f.rejected = rejected
	f.token = ""
}

func (f *fakeCreds) Invalidations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidated
}

func newTestClient(t *testing.T) (*Client, *testutil.Backend, *fakeCreds) {
	t.Helper()
	backend := testutil.NewBackend(t)
	backend.AddUser("alice", "secret")

	client := NewClient(backend.URL(), 5*time.Second)
	creds := &fakeCreds{token: backend.IssueToken("alice")}
	client.SetCredentials(creds)
	return client, backend, creds
}

func TestClient_Login(t *testing.T) {
	client, _, _ := newTestClient(t)
	ctx := context.Background()

	result, err := client.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.Equal(t, "alice", result.User.Username)
	require.NotZero(t, result.User.ID)

	_, err = client.Login(ctx, "alice", "wrong")
	var authErr *internal.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "alice", authErr.Username)

	_, err = client.Login(ctx, " ", "secret")
	var validationErr *internal.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "username", validationErr.Field)
}

func TestClient_Register(t *testing.T) {
	client, _, _ := newTestClient(t)
	ctx := context.Background()

	profile, err := client.Register(ctx, RegisterRequest{Username: "bob", Password: "hunter22", Nickname: "Bobby"})
	require.NoError(t, err)
	require.Equal(t, "bob", profile.Username)
	require.Equal(t, "Bobby", profile.Nickname)

	_, err = client.Register(ctx, RegisterRequest{Username: "bob", Password: "again"})
	var authErr *internal.AuthenticationError
	require.ErrorAs(t, err, &authErr)

	_, err = client.Login(ctx, "bob", "hunter22")
	require.NoError(t, err)
}

func TestClient_UserInfo(t *testing.T) {
	client, _, _ := newTestClient(t)
	ctx := context.Background()

	profile, err := client.UserInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", profile.Username)

	updated, err := client.UpdateUserInfo(ctx, "Ally", "ally@example.com")
	require.NoError(t, err)
	require.Equal(t, "Ally", updated.Nickname)
	require.Equal(t, "ally@example.com", updated.Email)

	require.NoError(t, client.ChangePassword(ctx, "secret", "n3w-secret"))
	var validationErr *internal.ValidationError
	require.ErrorAs(t, client.ChangePassword(ctx, "secret", "other"), &validationErr)

	_, err = client.Login(ctx, "alice", "n3w-secret")
	require.NoError(t, err)
}

func TestClient_UnauthorizedInvalidatesCredential(t *testing.T) {
	client, backend, creds := newTestClient(t)
	token := creds.Token()
	backend.RevokeToken(token)

	_, err := client.UserInfo(context.Background())
	require.Error(t, err)
	require.True(t, internal.IsUnauthorized(err))

	var lost *internal.AuthorizationLostError
	require.ErrorAs(t, err, &lost)
	require.Equal(t, "/user/info", lost.Path)
	require.Equal(t, 1, creds.Invalidations())
	require.Equal(t, token, creds.rejected)
	require.Empty(t, creds.Token())
}

func TestClient_UnauthorizedWithoutTokenDoesNotInvalidate(t *testing.T) {
	client, _, creds := newTestClient(t)
	creds.token = ""

	_, err := client.ListSessions(context.Background())
	require.True(t, internal.IsUnauthorized(err))
	require.Zero(t, creds.Invalidations())
}

func TestClient_SessionLifecycle(t *testing.T) {
	client, backend, _ := newTestClient(t)
	ctx := context.Background()

	sessions, err := client.ListSessions(ctx)
	require.NoError(t, err)
	require.Empty(t, sessions)

	first, err := client.CreateSession(ctx, "First", "")
	require.NoError(t, err)
	require.Equal(t, "First", first.Title)
	require.Equal(t, internal.ModeChat, first.Mode)

	second, err := client.CreateSession(ctx, "", internal.ModeCodeExplain)
	require.NoError(t, err)
	require.NotEmpty(t, second.Title)
	require.Equal(t, internal.ModeCodeExplain, second.Mode)

	sessions, err = client.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, second.ID, sessions[0].ID)

	renamed, err := client.UpdateSession(ctx, first.ID, "Renamed")
	require.NoError(t, err)
	require.Equal(t, "Renamed", renamed.Title)

	got, err := client.GetSession(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Title)

	backend.AddMessage(first.ID, "user", "hi")
	backend.AddMessage(first.ID, "assistant", "hello")
	history, err := client.History(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, internal.RoleUser, history[0].Role)
	require.Equal(t, "hello", history[1].Content)
	require.Less(t, history[0].ID, history[1].ID)

	require.NoError(t, client.DeleteSession(ctx, first.ID))
	_, err = client.GetSession(ctx, first.ID)
	var apiErr *internal.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestClient_Chat(t *testing.T) {
	client, backend, _ := newTestClient(t)
	ctx := context.Background()
	backend.SetReply(func(mode, message string) string {
		return mode + ":" + message
	})
	session, err := client.CreateSession(ctx, "Chat", "")
	require.NoError(t, err)

	reply, err := client.Chat(ctx, ChatRequest{Message: "hi", SessionID: session.ID})
	require.NoError(t, err)
	require.Equal(t, "chat:hi", reply.Reply)
	require.Equal(t, session.ID, reply.SessionID)
	require.Len(t, backend.History(session.ID), 2)

	reply, err = client.ChatWithMode(ctx, internal.ModeCodeTest, ChatRequest{Message: "func f()"})
	require.NoError(t, err)
	require.Equal(t, "code_test:func f()", reply.Reply)

	reply, err = client.RAGChat(ctx, ChatRequest{Message: "docs?"})
	require.NoError(t, err)
	require.Equal(t, "rag:docs?", reply.Reply)
	require.NotEmpty(t, reply.Context)

	_, err = client.ChatWithMode(ctx, "poetry", ChatRequest{Message: "x"})
	var validationErr *internal.ValidationError
	require.ErrorAs(t, err, &validationErr)

	_, err = client.Chat(ctx, ChatRequest{Message: "   "})
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, 1, backend.Calls("POST /api/v1/chat"))
}

func TestClient_ServerFailure(t *testing.T) {
	client, backend, creds := newTestClient(t)
	backend.Fail("GET /api/v1/session/list", http.StatusInternalServerError)

	_, err := client.ListSessions(context.Background())
	var apiErr *internal.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.Status)
	require.Equal(t, "injected failure", apiErr.Message)
	require.Zero(t, creds.Invalidations())

	_, err = client.ListSessions(context.Background())
	require.NoError(t, err)
}

func TestClient_TransportFailure(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second)
	err := client.Health(context.Background())

	var transportErr *internal.TransportError
	require.True(t, errors.As(err, &transportErr))
	require.Equal(t, "request", transportErr.Op)
}

func TestClient_Health(t *testing.T) {
	client, _, _ := newTestClient(t)
	require.NoError(t, client.Health(context.Background()))
	require.Equal(t, client.baseURL, client.BaseURL())
}
