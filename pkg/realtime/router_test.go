package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/auth"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/errors"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/execute"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/session"
)

// stubVerifier resolves "tok-<name>" tokens to user principals.
type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, token string) (*auth.Principal, error) {
	name, ok := strings.CutPrefix(token, "tok-")
	if !ok {
		return nil, errors.NewInvalidTokenError("unknown token", nil)
	}
	return &auth.Principal{
		UserID:      name,
		Email:       name + "@example.com",
		DisplayName: name,
		Role:        auth.RoleUser,
		Origin:      auth.OriginAutoCreated,
	}, nil
}

// stubRunner returns a canned execution result.
type stubRunner struct {
	result execute.Result
	err    error
}

func (s stubRunner) Exec(context.Context, execute.Request) (execute.Result, error) {
	return s.result, s.err
}

// recordingMonitor records subscription toggles.
type recordingMonitor struct {
	mu         sync.Mutex
	subscribed map[string]bool
}

func newRecordingMonitor() *recordingMonitor {
	return &recordingMonitor{subscribed: make(map[string]bool)}
}

func (m *recordingMonitor) Subscribe(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed[sessionID] = true
}

func (m *recordingMonitor) Unsubscribe(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribed, sessionID)
}

func (m *recordingMonitor) isSubscribed(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribed[sessionID]
}

type testEnv struct {
	registry  *session.InMemoryRegistry
	admission *session.Admission
	hub       *Hub
	router    *Router
	monitor   *recordingMonitor
	server    *httptest.Server
}

func newTestEnv(t *testing.T, runner Runner) *testEnv {
	t.Helper()

	registry := session.NewRegistry()
	admission := session.NewAdmission(registry, 10, true, time.Hour)
	limiter := NewIPRateLimiter(100, time.Minute)
	hub := NewHub(stubVerifier{}, limiter, HubConfig{AllowGuestHandshake: true})
	mon := newRecordingMonitor()
	router := NewRouter(registry, admission, hub, runner, mon)

	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	return &testEnv{
		registry:  registry,
		admission: admission,
		hub:       hub,
		router:    router,
		monitor:   mon,
		server:    server,
	}
}

func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http")
	if token != "" {
		url += "?token=" + token
	}
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func (e *testEnv) createSession(t *testing.T, creatorID string) *session.Session {
	t.Helper()
	s, err := e.admission.Create(&auth.Principal{
		UserID:      creatorID,
		DisplayName: creatorID,
		Role:        auth.RoleUser,
		Origin:      auth.OriginAutoCreated,
	}, session.CreateOptions{Name: "test session"})
	require.NoError(t, err)
	return s
}

func send(t *testing.T, ws *websocket.Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(Envelope{Event: event, Data: data}))
}

// awaitEvent reads frames until the wanted event arrives, skipping unrelated
// traffic such as presence updates from concurrent joins.
func awaitEvent(t *testing.T, ws *websocket.Conn, event string) Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var env Envelope
		err := ws.ReadJSON(&env)
		require.NoError(t, err, "waiting for %s", event)
		if env.Event == event {
			return env
		}
	}
}

func joinSession(t *testing.T, ws *websocket.Conn, inviteKey string) sessionJoinedPayload {
	t.Helper()
	send(t, ws, EventJoinSession, joinPayload{InviteKey: inviteKey})
	env := awaitEvent(t, ws, EventSessionJoined)
	var joined sessionJoinedPayload
	require.NoError(t, json.Unmarshal(env.Data, &joined))
	return joined
}

func TestJoinSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws := env.dial(t, "tok-bob")
	joined := joinSession(t, ws, s.InviteKey())

	assert.Equal(t, s.ID(), joined.Session.ID)
	assert.Empty(t, joined.Session.InviteKey, "non-creators must not see the invite key")
	assert.Equal(t, session.DefaultPermissions(), joined.UserPermissions)
	assert.True(t, s.IsMember("bob"))
}

func TestJoinSessionAsCreatorSeesInviteKey(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws := env.dial(t, "tok-alice")
	joined := joinSession(t, ws, s.InviteKey())

	assert.Equal(t, s.InviteKey(), joined.Session.InviteKey)
	assert.Equal(t, session.CreatorPermissions(), joined.UserPermissions)
}

func TestJoinSessionBadInviteKey(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})

	ws := env.dial(t, "tok-bob")
	send(t, ws, EventJoinSession, joinPayload{InviteKey: "ZZZZZZZZZZZZ"})

	errEnv := awaitEvent(t, ws, EventSessionError)
	var payload errorPayload
	require.NoError(t, json.Unmarshal(errEnv.Data, &payload))
	assert.Equal(t, errors.ErrInvalidInvite, payload.Error)
}

func TestDoubleJoinRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws := env.dial(t, "tok-bob")
	joinSession(t, ws, s.InviteKey())

	send(t, ws, EventJoinSession, joinPayload{InviteKey: s.InviteKey()})
	errEnv := awaitEvent(t, ws, EventSessionError)
	var payload errorPayload
	require.NoError(t, json.Unmarshal(errEnv.Data, &payload))
	assert.Equal(t, errors.ErrInvalidPayload, payload.Error)
}

func TestJoinReceivesStateSnapshot(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws := env.dial(t, "tok-bob")
	joinSession(t, ws, s.InviteKey())

	// A fresh session's snapshot is an empty buffer and an empty file map.
	update := awaitEvent(t, ws, EventCodeUpdate)
	var code codeUpdatePayload
	require.NoError(t, json.Unmarshal(update.Data, &code))
	assert.Empty(t, code.Code)

	filesEnv := awaitEvent(t, ws, EventSessionFilesState)
	var files sessionFilesStatePayload
	require.NoError(t, json.Unmarshal(filesEnv.Data, &files))
	assert.Empty(t, files.Files)
	assert.Empty(t, files.Code)
}

func TestJoinSyncsExistingState(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")
	require.NoError(t, s.SetCode("print('shared')"))
	_, err := s.UpsertFile("main.py", "print('shared')", "alice")
	require.NoError(t, err)

	ws := env.dial(t, "tok-bob")
	joinSession(t, ws, s.InviteKey())

	update := awaitEvent(t, ws, EventCodeUpdate)
	var code codeUpdatePayload
	require.NoError(t, json.Unmarshal(update.Data, &code))
	assert.Equal(t, "print('shared')", code.Code)

	filesEnv := awaitEvent(t, ws, EventSessionFilesState)
	var files sessionFilesStatePayload
	require.NoError(t, json.Unmarshal(filesEnv.Data, &files))
	require.Len(t, files.Files, 1)
	assert.Equal(t, "main.py", files.Files[0].Path)
	assert.Equal(t, "print('shared')", files.Code)
}

func TestPresenceAndCodeFanOut(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws1 := env.dial(t, "tok-alice")
	joinSession(t, ws1, s.InviteKey())

	// Join announcements reach the whole room, the joiner included.
	self := awaitEvent(t, ws1, EventUserJoinedSession)
	var who userPresencePayload
	require.NoError(t, json.Unmarshal(self.Data, &who))
	assert.Equal(t, "alice", who.UserID)

	ws2 := env.dial(t, "tok-bob")
	joinSession(t, ws2, s.InviteKey())

	// The first client hears about the second one joining.
	presence := awaitEvent(t, ws1, EventUserJoinedSession)
	require.NoError(t, json.Unmarshal(presence.Data, &who))
	assert.Equal(t, "bob", who.UserID)
	assert.False(t, who.IsGuest)

	// An edit by the second client reaches the first.
	send(t, ws2, EventCodeChange, codeChangePayload{Code: "print('hi')"})
	update := awaitEvent(t, ws1, EventCodeUpdate)
	var code codeUpdatePayload
	require.NoError(t, json.Unmarshal(update.Data, &code))
	assert.Equal(t, "print('hi')", code.Code)
	assert.Equal(t, "bob", code.UserID)
	assert.Equal(t, "print('hi')", s.Code())
}

func TestEventBeforeJoinRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})

	ws := env.dial(t, "tok-bob")
	send(t, ws, EventCodeChange, codeChangePayload{Code: "nope"})

	errEnv := awaitEvent(t, ws, EventError)
	var payload errorPayload
	require.NoError(t, json.Unmarshal(errEnv.Data, &payload))
	assert.Equal(t, errors.ErrAccessDenied, payload.Error)
}

func TestPermissionEnforcement(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws := env.dial(t, "tok-bob")
	joinSession(t, ws, s.InviteKey())

	muted := session.DefaultPermissions()
	muted.CanChat = false
	s.SetPermissions("bob", muted)

	send(t, ws, EventChatMessage, chatPayload{Content: "hello?"})
	errEnv := awaitEvent(t, ws, EventError)
	var payload errorPayload
	require.NoError(t, json.Unmarshal(errEnv.Data, &payload))
	assert.Equal(t, errors.ErrAccessDenied, payload.Error)
	assert.Empty(t, s.ChatLog())
}

func TestChatFanOut(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws1 := env.dial(t, "tok-alice")
	joinSession(t, ws1, s.InviteKey())
	ws2 := env.dial(t, "tok-bob")
	joinSession(t, ws2, s.InviteKey())

	send(t, ws2, EventChatMessage, chatPayload{Content: "hello room"})

	chatEnv := awaitEvent(t, ws1, EventChatMessage)
	var msg session.ChatMessage
	require.NoError(t, json.Unmarshal(chatEnv.Data, &msg))
	assert.Equal(t, "bob", msg.UserID)
	assert.Equal(t, "hello room", msg.Content)
	assert.NotEmpty(t, msg.ID)

	// The sender receives the authoritative copy too.
	echo := awaitEvent(t, ws2, EventChatMessage)
	var own session.ChatMessage
	require.NoError(t, json.Unmarshal(echo.Data, &own))
	assert.Equal(t, msg.ID, own.ID)
}

func TestExecuteCodeFlow(t *testing.T) {
	t.Parallel()

	runner := stubRunner{result: execute.Result{
		Success:  true,
		Output:   "hi\n",
		Language: "python",
		Version:  "3.10.0",
	}}
	env := newTestEnv(t, runner)
	s := env.createSession(t, "alice")

	ws := env.dial(t, "tok-alice")
	joinSession(t, ws, s.InviteKey())

	send(t, ws, EventExecuteCode, executePayload{Code: "print('hi')", Language: "python"})

	started := awaitEvent(t, ws, EventExecutionStarted)
	var sp executionStartedPayload
	require.NoError(t, json.Unmarshal(started.Data, &sp))
	assert.Equal(t, "alice", sp.UserID)
	assert.Equal(t, "python", sp.Language)

	resultEnv := awaitEvent(t, ws, EventExecutionResult)
	var result execute.Result
	require.NoError(t, json.Unmarshal(resultEnv.Data, &result))
	assert.True(t, result.Success)
	assert.Equal(t, "hi\n", result.Output)
}

func TestExecuteCodeUnsupportedLanguage(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws := env.dial(t, "tok-alice")
	joinSession(t, ws, s.InviteKey())

	send(t, ws, EventExecuteCode, executePayload{Code: "x", Language: "cobol"})
	errEnv := awaitEvent(t, ws, EventExecutionError)
	var payload errorPayload
	require.NoError(t, json.Unmarshal(errEnv.Data, &payload))
	assert.Equal(t, errors.ErrUnsupportedLanguage, payload.Error)
}

func TestExecuteCodeFailure(t *testing.T) {
	t.Parallel()

	runner := stubRunner{err: errors.NewExecutionTimeoutError("sandbox did not respond in time", nil)}
	env := newTestEnv(t, runner)
	s := env.createSession(t, "alice")

	ws := env.dial(t, "tok-alice")
	joinSession(t, ws, s.InviteKey())

	send(t, ws, EventExecuteCode, executePayload{Code: "while True: pass", Language: "python"})
	awaitEvent(t, ws, EventExecutionStarted)

	errEnv := awaitEvent(t, ws, EventExecutionError)
	var payload errorPayload
	require.NoError(t, json.Unmarshal(errEnv.Data, &payload))
	assert.Equal(t, errors.ErrExecutionTimeout, payload.Error)
}

func TestUpdatePermissionsByCreator(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws1 := env.dial(t, "tok-alice")
	joinSession(t, ws1, s.InviteKey())
	ws2 := env.dial(t, "tok-bob")
	joinSession(t, ws2, s.InviteKey())

	restricted := session.DefaultPermissions()
	restricted.CanExecute = false
	send(t, ws1, EventUpdatePermissions, updatePermissionsPayload{
		UserID:      "bob",
		Permissions: restricted,
	})

	updateEnv := awaitEvent(t, ws2, EventPermissionsUpdated)
	var update permissionsUpdatedPayload
	require.NoError(t, json.Unmarshal(updateEnv.Data, &update))
	assert.Equal(t, "bob", update.UserID)
	assert.False(t, update.Permissions.CanExecute)

	perms, _ := s.PermissionsFor("bob")
	assert.False(t, perms.CanExecute)
}

func TestUpdatePermissionsDeniedForMember(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws := env.dial(t, "tok-bob")
	joinSession(t, ws, s.InviteKey())

	send(t, ws, EventUpdatePermissions, updatePermissionsPayload{
		UserID:      "alice",
		Permissions: session.Permissions{},
	})
	errEnv := awaitEvent(t, ws, EventError)
	var payload errorPayload
	require.NoError(t, json.Unmarshal(errEnv.Data, &payload))
	assert.Equal(t, errors.ErrAccessDenied, payload.Error)
}

func TestUpdatePermissionsNotDelegable(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws1 := env.dial(t, "tok-alice")
	joinSession(t, ws1, s.InviteKey())
	ws2 := env.dial(t, "tok-bob")
	joinSession(t, ws2, s.InviteKey())

	// Even with canManagePermissions granted, a member cannot rewrite
	// anyone's vector; the capability is keyed to the creator.
	elevated := session.DefaultPermissions()
	elevated.CanManagePermissions = true
	s.SetPermissions("bob", elevated)

	send(t, ws2, EventUpdatePermissions, updatePermissionsPayload{
		UserID:      "alice",
		Permissions: session.Permissions{},
	})
	errEnv := awaitEvent(t, ws2, EventError)
	var payload errorPayload
	require.NoError(t, json.Unmarshal(errEnv.Data, &payload))
	assert.Equal(t, errors.ErrAccessDenied, payload.Error)

	perms, _ := s.PermissionsFor("alice")
	assert.Equal(t, session.CreatorPermissions(), perms)
}

func TestPresenceRequiresViewPermission(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws := env.dial(t, "tok-bob")
	joinSession(t, ws, s.InviteKey())

	blind := session.DefaultPermissions()
	blind.CanViewFiles = false
	s.SetPermissions("bob", blind)

	send(t, ws, EventCursorUpdate, cursorPayload{FilePath: "main.py"})
	errEnv := awaitEvent(t, ws, EventError)
	var payload errorPayload
	require.NoError(t, json.Unmarshal(errEnv.Data, &payload))
	assert.Equal(t, errors.ErrAccessDenied, payload.Error)

	send(t, ws, EventFileActivityUpdate, fileActivityPayload{FilePath: "main.py"})
	errEnv = awaitEvent(t, ws, EventError)
	require.NoError(t, json.Unmarshal(errEnv.Data, &payload))
	assert.Equal(t, errors.ErrAccessDenied, payload.Error)
}

func TestLargeCodeChangeFanOut(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws1 := env.dial(t, "tok-alice")
	joinSession(t, ws1, s.InviteKey())
	awaitEvent(t, ws1, EventUserJoinedSession)

	ws2 := env.dial(t, "tok-bob")
	joinSession(t, ws2, s.InviteKey())
	awaitEvent(t, ws1, EventUserJoinedSession)

	// A 1,000,000-byte buffer of control characters escapes to six bytes
	// per character on the wire and must still round-trip.
	big := strings.Repeat("\x01", 1_000_000)
	send(t, ws2, EventCodeChange, codeChangePayload{Code: big})

	update := awaitEvent(t, ws1, EventCodeUpdate)
	var code codeUpdatePayload
	require.NoError(t, json.Unmarshal(update.Data, &code))
	assert.Len(t, code.Code, 1_000_000)
	assert.Equal(t, big, s.Code())
}

func TestLeaveSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws1 := env.dial(t, "tok-alice")
	joinSession(t, ws1, s.InviteKey())
	ws2 := env.dial(t, "tok-bob")
	joinSession(t, ws2, s.InviteKey())

	send(t, ws2, EventLeaveSession, struct{}{})
	awaitEvent(t, ws2, EventSessionLeft)

	leftEnv := awaitEvent(t, ws1, EventUserLeftSession)
	var who userPresencePayload
	require.NoError(t, json.Unmarshal(leftEnv.Data, &who))
	assert.Equal(t, "bob", who.UserID)
	assert.False(t, s.IsMember("bob"))
}

func TestDisconnectIsImplicitLeave(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws1 := env.dial(t, "tok-alice")
	joinSession(t, ws1, s.InviteKey())
	ws2 := env.dial(t, "tok-bob")
	joinSession(t, ws2, s.InviteKey())

	require.NoError(t, ws2.Close())

	leftEnv := awaitEvent(t, ws1, EventUserLeftSession)
	var who userPresencePayload
	require.NoError(t, json.Unmarshal(leftEnv.Data, &who))
	assert.Equal(t, "bob", who.UserID)

	assert.Eventually(t, func() bool {
		return !s.IsMember("bob")
	}, time.Second, 10*time.Millisecond)
}

func TestGuestHandshakeAndJoin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	// No token at all: the hub admits a guest principal.
	ws := env.dial(t, "")
	joined := joinSession(t, ws, s.InviteKey())
	assert.Equal(t, s.ID(), joined.Session.ID)

	members := s.Members()
	require.Len(t, members, 1)
	assert.True(t, members[0].IsGuest)
	assert.Contains(t, members[0].UserID, "guest-")
}

func TestGuestHandshakeRefusedWhenDisabled(t *testing.T) {
	t.Parallel()

	registry := session.NewRegistry()
	admission := session.NewAdmission(registry, 10, true, time.Hour)
	limiter := NewIPRateLimiter(100, time.Minute)
	hub := NewHub(stubVerifier{}, limiter, HubConfig{AllowGuestHandshake: false})
	NewRouter(registry, admission, hub, stubRunner{}, newRecordingMonitor())

	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshakeRateLimited(t *testing.T) {
	t.Parallel()

	registry := session.NewRegistry()
	admission := session.NewAdmission(registry, 10, true, time.Hour)
	limiter := NewIPRateLimiter(2, time.Minute)
	hub := NewHub(stubVerifier{}, limiter, HubConfig{AllowGuestHandshake: true})
	NewRouter(registry, admission, hub, stubRunner{}, newRecordingMonitor())

	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?token=tok-alice"
	for i := 0; i < 2; i++ {
		ws, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { ws.Close() })
	}

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestMonitoringSubscription(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws := env.dial(t, "tok-alice")
	joinSession(t, ws, s.InviteKey())

	send(t, ws, EventStartPerfMonitoring, struct{}{})
	awaitEvent(t, ws, EventMonitoringStarted)
	assert.True(t, env.monitor.isSubscribed(s.ID()))

	send(t, ws, EventStopPerfMonitoring, struct{}{})
	awaitEvent(t, ws, EventMonitoringStopped)
	assert.False(t, env.monitor.isSubscribed(s.ID()))
}

func TestGetSessionUsersAndFiles(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws := env.dial(t, "tok-alice")
	joinSession(t, ws, s.InviteKey())

	_, err := s.UpsertFile("main.py", "print('hi')", "alice")
	require.NoError(t, err)

	send(t, ws, EventGetSessionUsers, struct{}{})
	usersEnv := awaitEvent(t, ws, EventSessionUsers)
	var users sessionUsersPayload
	require.NoError(t, json.Unmarshal(usersEnv.Data, &users))
	require.Len(t, users.Users, 1)
	assert.Equal(t, "alice", users.Users[0].UserID)

	send(t, ws, EventGetSessionFiles, struct{}{})
	filesEnv := awaitEvent(t, ws, EventSessionFilesState)
	var files sessionFilesStatePayload
	require.NoError(t, json.Unmarshal(filesEnv.Data, &files))
	require.Len(t, files.Files, 1)
	assert.Equal(t, "main.py", files.Files[0].Path)
}

func TestUnknownEventIgnored(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws := env.dial(t, "tok-alice")
	joinSession(t, ws, s.InviteKey())

	require.NoError(t, ws.WriteJSON(Envelope{Event: "no_such_event", Data: json.RawMessage(`{}`)}))
	send(t, ws, EventGetSessionUsers, struct{}{})

	// The unknown event produces no reply at all: the next request is
	// answered with no error frame in between.
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var frame Envelope
		require.NoError(t, ws.ReadJSON(&frame))
		require.NotEqual(t, EventError, frame.Event)
		if frame.Event == EventSessionUsers {
			break
		}
	}
}

func TestSessionDeletedNotification(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubRunner{})
	s := env.createSession(t, "alice")

	ws := env.dial(t, "tok-bob")
	joinSession(t, ws, s.InviteKey())

	_, err := env.admission.Delete(s.ID(), "alice")
	require.NoError(t, err)
	env.router.NotifySessionDeleted(s.ID())

	deletedEnv := awaitEvent(t, ws, EventSessionDeleted)
	var payload sessionDeletedPayload
	require.NoError(t, json.Unmarshal(deletedEnv.Data, &payload))
	assert.Equal(t, s.ID(), payload.SessionID)

	assert.Empty(t, env.hub.roomConns(s.ID()))
}
