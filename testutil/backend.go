package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// StreamStep is one scripted action of a streamed reply
type StreamStep struct {
	Fragment string          // text fragment to emit
	Error    string          // emit an error event and end the stream
	Drop     bool            // close the connection without a completion marker
	Wait     <-chan struct{} // block until closed before performing the step
}

// StreamScript decides how the backend streams the reply to message
type StreamScript func(message string, sessionID int64) []StreamStep

// Fragments is a script emitting parts in order followed by completion
func Fragments(parts ...string) StreamScript {
	return func(string, int64) []StreamStep {
		steps := make([]StreamStep, 0, len(parts))
		for _, p := range parts {
			steps = append(steps, StreamStep{Fragment: p})
		}
		return steps
	}
}

// Backend is an in-process fake of the copilot HTTP API
type Backend struct {
	Server *httptest.Server

	mu            sync.Mutex
	users         map[string]*backendUser
	tokens        map[string]string
	sessions      []*backendSession
	messages      map[int64][]backendMessage
	nextUserID    int64
	nextSessionID int64
	nextMessageID int64
	failures      map[string]int
	holds         map[string]<-chan struct{}
	calls         map[string]int
	script        StreamScript
	doneSentinel  bool
	reply         func(mode, message string) string
	shutdown      chan struct{}
}

type backendUser struct {
	ID       int64
	Username string
	Password string
	Nickname string
	Email    string
}

type backendSession struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type backendMessage struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewBackend starts a fake backend that is shut down when the test ends
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &Backend{
		users:    make(map[string]*backendUser),
		tokens:   make(map[string]string),
		messages: make(map[int64][]backendMessage),
		failures: make(map[string]int),
		holds:    make(map[string]<-chan struct{}),
		calls:    make(map[string]int),
		shutdown: make(chan struct{}),
		reply: func(mode, message string) string {
			return "echo: " + message
		},
	}
	b.script = func(message string, _ int64) []StreamStep {
		return []StreamStep{{Fragment: b.reply("chat", message)}}
	}
	b.Server = httptest.NewServer(b.router())
	t.Cleanup(func() {
		close(b.shutdown)
		b.Server.CloseClientConnections()
		b.Server.Close()
	})
	return b
}

// URL returns the base URL of the backend
func (b *Backend) URL() string {
	return b.Server.URL
}

// AddUser registers a user and returns its id
func (b *Backend) AddUser(username, password string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(username, password, "", "").ID
}

// IssueToken returns a valid bearer token for username
func (b *Backend) IssueToken(username string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	user, ok := b.users[username]
	if !ok {
		panic("testutil: unknown user " + username)
	}
	return b.issueTokenLocked(user)
}

// RevokeToken makes token unauthorized from now on
func (b *Backend) RevokeToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tokens, token)
}

// AddSession creates a session owned by username and returns its id
func (b *Backend) AddSession(username, title string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	user := b.users[username]
	if user == nil {
		panic("testutil: unknown user " + username)
	}
	return b.createSessionLocked(user.ID, title, "chat").ID
}

// AddMessage appends a history entry to a session
func (b *Backend) AddMessage(sessionID int64, role, content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendMessageLocked(sessionID, role, content)
}

// History returns the stored history of a session
func (b *Backend) History(sessionID int64) []backendMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backendMessage(nil), b.messages[sessionID]...)
}

// SessionTitles returns the titles of all sessions, newest first
func (b *Backend) SessionTitles() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	titles := make([]string, 0, len(b.sessions))
	for _, s := range b.sessions {
		titles = append(titles, s.Title)
	}
	return titles
}

// SetStreamScript replaces the streaming behavior
func (b *Backend) SetStreamScript(script StreamScript) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.script = script
}

// SetReply replaces the reply generator for the non-streaming endpoints
func (b *Backend) SetReply(reply func(mode, message string) string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reply = reply
}

// UseDoneSentinel makes streams end with a "[DONE]" data line instead of a done event
func (b *Backend) UseDoneSentinel(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.doneSentinel = enabled
}

// Fail makes the next request to route fail with status. route has the
// form "GET /api/v1/user/info".
func (b *Backend) Fail(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = status
}

// Hold makes the next request to route wait until gate is closed. The
// request is counted by Calls before it waits.
func (b *Backend) Hold(route string, gate <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holds[route] = gate
}

// Calls returns how many requests hit route
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

func (b *Backend) router() *gin.Engine {
	r := gin.New()
	r.Use(b.recordCalls())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, envelope{Code: 0, Message: "success"})
	})

	v1 := r.Group("/api/v1")
	v1.POST("/user/register", b.handleRegister)
	v1.POST("/user/login", b.handleLogin)

	authed := v1.Group("")
	authed.Use(b.requireAuth())
	authed.GET("/user/info", b.handleUserInfo)
	authed.PUT("/user/info", b.handleUpdateUserInfo)
	authed.PUT("/user/password", b.handleChangePassword)

	authed.GET("/session/list", b.handleListSessions)
	authed.POST("/session", b.handleCreateSession)
	authed.GET("/session/:id", b.handleGetSession)
	authed.PUT("/session/:id", b.handleUpdateSession)
	authed.DELETE("/session/:id", b.handleDeleteSession)
	authed.GET("/session/:id/history", b.handleHistory)

	authed.POST("/chat", b.handleChat)
	authed.POST("/chat/mode", b.handleChatWithMode)
	authed.GET("/chat/stream", b.handleStream)
	authed.GET("/chat/ws", b.handleWebSocket)
	authed.POST("/rag/chat", b.handleRAGChat)

	return r
}

func (b *Backend) recordCalls() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.Request.Method + " " + c.FullPath()
		b.mu.Lock()
		b.calls[route]++
		status, fail := b.failures[route]
		delete(b.failures, route)
		gate, held := b.holds[route]
		delete(b.holds, route)
		b.mu.Unlock()

		if held {
			select {
			case <-gate:
			case <-b.shutdown:
			}
		}

		if fail {
			c.AbortWithStatusJSON(status, envelope{Code: status, Message: "injected failure"})
			return
		}
		c.Next()
	}
}

func (b *Backend) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Code: 401, Message: "missing authorization header"})
			return
		}

		claims := &TokenClaims{}
		_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
			return fixtureSigningKey, nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Code: 401, Message: "token invalid or expired"})
			return
		}

		b.mu.Lock()
		username, ok := b.tokens[token]
		user := b.users[username]
		b.mu.Unlock()
		if !ok || user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Code: 401, Message: "token revoked"})
			return
		}

		c.Set("user", user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *backendUser {
	return c.MustGet("user").(*backendUser)
}

func (b *Backend) handleRegister(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Nickname string `json:"nickname"`
		Email    string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Code: 400, Message: "invalid parameters: " + err.Error()})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.users[req.Username]; exists {
		c.JSON(http.StatusBadRequest, envelope{Code: 400, Message: "username already exists"})
		return
	}
	user := b.addUserLocked(req.Username, req.Password, req.Nickname, req.Email)
	c.JSON(http.StatusOK, envelope{Code: 0, Message: "success", Data: gin.H{
		"token": b.issueTokenLocked(user),
		"user":  userPayload(user),
	}})
}

func (b *Backend) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Code: 400, Message: "invalid parameters"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	user, ok := b.users[req.Username]
	if !ok || user.Password != req.Password {
		c.JSON(http.StatusUnauthorized, envelope{Code: 401, Message: "invalid username or password"})
		return
	}
	c.JSON(http.StatusOK, envelope{Code: 0, Message: "success", Data: gin.H{
		"token": b.issueTokenLocked(user),
		"user":  userPayload(user),
	}})
}

func (b *Backend) handleUserInfo(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.JSON(http.StatusOK, envelope{Code: 0, Message: "success", Data: userPayload(currentUser(c))})
}

func (b *Backend) handleUpdateUserInfo(c *gin.Context) {
	var req struct {
		Nickname string `json:"nickname"`
		Email    string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Code: 400, Message: "invalid parameters"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	user := currentUser(c)
	if req.Nickname != "" {
		user.Nickname = req.Nickname
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	c.JSON(http.StatusOK, envelope{Code: 0, Message: "success", Data: userPayload(user)})
}

func (b *Backend) handleChangePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Code: 400, Message: "invalid parameters"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	user := currentUser(c)
	if user.Password != req.OldPassword {
		c.JSON(http.StatusBadRequest, envelope{Code: 400, Message: "old password is incorrect"})
		return
	}
	user.Password = req.NewPassword
	c.JSON(http.StatusOK, envelope{Code: 0, Message: "success"})
}

func (b *Backend) handleListSessions(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	user := currentUser(c)
	list := make([]backendSession, 0)
	for _, s := range b.sessions {
		if s.UserID == user.ID {
			list = append(list, *s)
		}
	}
	c.JSON(http.StatusOK, envelope{Code: 0, Message: "success", Data: list})
}

func (b *Backend) handleCreateSession(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
		Mode  string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Code: 400, Message: "invalid parameters: " + err.Error()})
		return
	}
	if req.Title == "" {
		req.Title = "New session"
	}
	if req.Mode == "" {
		req.Mode = "chat"
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	session := b.createSessionLocked(currentUser(c).ID, req.Title, req.Mode)
	c.JSON(http.StatusOK, envelope{Code: 0, Message: "success", Data: *session})
}

func (b *Backend) handleGetSession(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	session := b.ownedSessionLocked(c)
	if session == nil {
		c.JSON(http.StatusNotFound, envelope{Code: 404, Message: "session not found"})
		return
	}
	c.JSON(http.StatusOK, envelope{Code: 0, Message: "success", Data: *session})
}

func (b *Backend) handleUpdateSession(c *gin.Context) {
	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Code: 400, Message: "invalid parameters"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	session := b.ownedSessionLocked(c)
	if session == nil {
		c.JSON(http.StatusNotFound, envelope{Code: 404, Message: "session not found"})
		return
	}
	session.Title = req.Title
	session.UpdatedAt = time.Now().UTC()
	c.JSON(http.StatusOK, envelope{Code: 0, Message: "success", Data: *session})
}

func (b *Backend) handleDeleteSession(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	session := b.ownedSessionLocked(c)
	if session == nil {
		c.JSON(http.StatusNotFound, envelope{Code: 404, Message: "session not found"})
		return
	}
	for i, s := range b.sessions {
		if s.ID == session.ID {
			b.sessions = append(b.sessions[:i], b.sessions[i+1:]...)
			break
		}
	}
	delete(b.messages, session.ID)
	c.JSON(http.StatusOK, envelope{Code: 0, Message: "success"})
}

func (b *Backend) handleHistory(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	session := b.ownedSessionLocked(c)
	if session == nil {
		c.JSON(http.StatusNotFound, envelope{Code: 404, Message: "session not found"})
		return
	}
	history := append([]backendMessage{}, b.messages[session.ID]...)
	c.JSON(http.StatusOK, envelope{Code: 0, Message: "success", Data: history})
}

type chatRequest struct {
	Message     string  `json:"message" binding:"required"`
	SessionID   int64   `json:"session_id"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

func (b *Backend) bindChat(c *gin.Context) (chatRequest, bool) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Code: 400, Message: "invalid parameters"})
		return req, false
	}
	return req, true
}

func (b *Backend) handleChat(c *gin.Context) {
	req, ok := b.bindChat(c)
	if !ok {
		return
	}
	reply := b.completeTurn(c, "chat", req)
	c.JSON(http.StatusOK, envelope{Code: 0, Message: "success", Data: gin.H{"reply": reply, "session_id": req.SessionID}})
}

func (b *Backend) handleChatWithMode(c *gin.Context) {
	req, ok := b.bindChat(c)
	if !ok {
		return
	}
	reply := b.completeTurn(c, c.DefaultQuery("mode", "chat"), req)
	c.JSON(http.StatusOK, envelope{Code: 0, Message: "success", Data: gin.H{"reply": reply}})
}

func (b *Backend) handleRAGChat(c *gin.Context) {
	req, ok := b.bindChat(c)
	if !ok {
		return
	}
	reply := b.completeTurn(c, "rag", req)
	c.JSON(http.StatusOK, envelope{Code: 0, Message: "success", Data: gin.H{"reply": reply, "context": "[1] knowledge base excerpt"}})
}

func (b *Backend) completeTurn(c *gin.Context, mode string, req chatRequest) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	reply := b.reply(mode, req.Message)
	b.recordTurnLocked(req.SessionID, req.Message, reply)
	return reply
}

func (b *Backend) streamRequest(c *gin.Context) (string, int64, []StreamStep, bool) {
	message := c.Query("message")
	if message == "" {
		c.JSON(http.StatusBadRequest, envelope{Code: 400, Message: "message is required"})
		return "", 0, nil, false
	}
	sessionID, _ := strconv.ParseInt(c.Query("session_id"), 10, 64)

	b.mu.Lock()
	script := b.script
	b.mu.Unlock()
	return message, sessionID, script(message, sessionID), true
}

func (b *Backend) handleStream(c *gin.Context) {
	message, sessionID, steps, ok := b.streamRequest(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	var reply strings.Builder
	for _, step := range steps {
		if !b.wait(step.Wait, c.Request.Context().Done()) {
			return
		}
		switch {
		case step.Drop:
			return
		case step.Error != "":
			c.SSEvent("error", step.Error)
			c.Writer.Flush()
			return
		case step.Fragment != "":
			writeSSEData(c.Writer, "message", step.Fragment)
			c.Writer.Flush()
			reply.WriteString(step.Fragment)
		}
	}

	b.mu.Lock()
	b.recordTurnLocked(sessionID, message, reply.String())
	sentinel := b.doneSentinel
	b.mu.Unlock()

	if sentinel {
		writeSSEData(c.Writer, "message", "[DONE]")
	} else {
		c.SSEvent("done", gin.H{"status": "completed"})
	}
	c.Writer.Flush()
}

func writeSSEData(w gin.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

type wsFrame struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func (b *Backend) handleWebSocket(c *gin.Context) {
	message, sessionID, steps, ok := b.streamRequest(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var reply strings.Builder
	for _, step := range steps {
		if !b.wait(step.Wait, closed) {
			return
		}
		switch {
		case step.Drop:
			return
		case step.Error != "":
			_ = conn.WriteJSON(wsFrame{Event: "error", Data: step.Error})
			closeNormally(conn)
			return
		case step.Fragment != "":
			if err := conn.WriteJSON(wsFrame{Event: "message", Data: step.Fragment}); err != nil {
				return
			}
			reply.WriteString(step.Fragment)
		}
	}

	b.mu.Lock()
	b.recordTurnLocked(sessionID, message, reply.String())
	b.mu.Unlock()

	_ = conn.WriteJSON(wsFrame{Event: "done", Data: "[DONE]"})
	closeNormally(conn)
	<-closed
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// wait blocks on gate; false means the stream should be abandoned
func (b *Backend) wait(gate <-chan struct{}, gone <-chan struct{}) bool {
	if gate == nil {
		return true
	}
	select {
	case <-gate:
		return true
	case <-gone:
		return false
	case <-b.shutdown:
		return false
	}
}

func (b *Backend) addUserLocked(username, password, nickname, email string) *backendUser {
	b.nextUserID++
	user := &backendUser{
		ID:       b.nextUserID,
		Username: username,
		Password: password,
		Nickname: nickname,
		Email:    email,
	}
	b.users[username] = user
	return user
}

func (b *Backend) issueTokenLocked(user *backendUser) string {
	// Distinct tokens even within the same second
	token, err := signToken(user.ID, user.Username, time.Hour+time.Duration(len(b.tokens))*time.Second)
	if err != nil {
		panic(err)
	}
	b.tokens[token] = user.Username
	return token
}

func (b *Backend) createSessionLocked(userID int64, title, mode string) *backendSession {
	b.nextSessionID++
	now := time.Now().UTC()
	session := &backendSession{
		ID:        b.nextSessionID,
		UserID:    userID,
		Title:     title,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.sessions = append([]*backendSession{session}, b.sessions...)
	return session
}

func (b *Backend) ownedSessionLocked(c *gin.Context) *backendSession {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil
	}
	user := currentUser(c)
	for _, s := range b.sessions {
		if s.ID == id && s.UserID == user.ID {
			return s
		}
	}
	return nil
}

func (b *Backend) appendMessageLocked(sessionID int64, role, content string) {
	b.nextMessageID++
	b.messages[sessionID] = append(b.messages[sessionID], backendMessage{
		ID:        b.nextMessageID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
}

func (b *Backend) recordTurnLocked(sessionID int64, message, reply string) {
	if sessionID <= 0 || reply == "" {
		return
	}
	for _, s := range b.sessions {
		if s.ID == sessionID {
			s.UpdatedAt = time.Now().UTC()
			b.appendMessageLocked(sessionID, "user", message)
			b.appendMessageLocked(sessionID, "assistant", reply)
			return
		}
	}
}

func userPayload(user *backendUser) gin.H {
	return gin.H{
		"id":       user.ID,
		"username": user.Username,
		"nickname": user.Nickname,
		"email":    user.Email,
	}
}
