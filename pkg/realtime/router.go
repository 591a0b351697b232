package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/errors"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/execute"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/logger"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/session"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/telemetry"
)

// executeTimeout bounds one sandbox round trip as observed by the router.
const executeTimeout = 20 * time.Second

// Runner dispatches code to the execution sandbox.
type Runner interface {
	Exec(ctx context.Context, req execute.Request) (execute.Result, error)
}

// Monitor toggles per-session performance sampling.
type Monitor interface {
	Subscribe(sessionID string)
	Unsubscribe(sessionID string)
}

// Router validates, authorizes, applies, and fans out realtime events. Every
// inbound envelope passes through Dispatch on its connection's read
// goroutine, so per-connection handling is serial by construction.
type Router struct {
	registry  session.Registry
	admission *session.Admission
	hub       *Hub
	runner    Runner
	monitor   Monitor
}

// NewRouter wires the event router and registers it on the hub.
func NewRouter(registry session.Registry, admission *session.Admission, hub *Hub, runner Runner, monitor Monitor) *Router {
	r := &Router{
		registry:  registry,
		admission: admission,
		hub:       hub,
		runner:    runner,
		monitor:   monitor,
	}
	hub.SetRouter(r)
	return r
}

// Dispatch routes one inbound envelope. Handler errors never tear the
// connection down; they come back as typed error events.
func (r *Router) Dispatch(c *Conn, env Envelope) {
	telemetry.EventsRouted.WithLabelValues(env.Event).Inc()

	switch env.Event {
	case EventJoinSession:
		var p joinPayload
		if !r.decode(c, env.Data, &p) {
			return
		}
		r.handleJoin(c, p)

	case EventLeaveSession:
		r.handleLeave(c, false)

	case EventCodeChange:
		r.handleCodeChange(c, env.Data)

	case EventRealtimeCodeChange:
		r.handleRealtimeCodeChange(c, env.Data)

	case EventFileOperation:
		r.handleFileOperation(c, env.Data)

	case EventCreateFile:
		r.handleCreateFile(c, env.Data)

	case EventCreateFolder:
		r.handleCreateFolder(c, env.Data)

	case EventCursorUpdate:
		r.handleCursorUpdate(c, env.Data)

	case EventFileActivityUpdate:
		r.handleFileActivity(c, env.Data)

	case EventChatMessage:
		r.handleChat(c, env.Data)

	case EventExecuteCode:
		r.handleExecute(c, env.Data)

	case EventUpdatePermissions:
		r.handleUpdatePermissions(c, env.Data)

	case EventProjectShareInit:
		r.handleProjectInit(c, env.Data, session.ProjectShare)

	case EventProjectCreateInit:
		r.handleProjectInit(c, env.Data, session.ProjectCreate)

	case EventAccessRightsUpdate:
		r.handleAccessRights(c, env.Data)

	case EventGetSessionUsers:
		if s, ok := r.boundSession(c); ok {
			c.SendEvent(EventSessionUsers, sessionUsersPayload{Users: s.Members()})
		}

	case EventGetSessionInfo:
		if s, ok := r.boundSession(c); ok {
			includeKey := s.CreatorID() == c.principal.UserID
			c.SendEvent(EventSessionInfo, sessionUpdatePayload{Session: s.Snapshot(includeKey)})
		}

	case EventGetSessionFiles:
		if s, ok := r.boundSession(c); ok {
			c.SendEvent(EventSessionFilesState, sessionFilesStatePayload{
				Files: s.FilesSnapshot(),
				Code:  s.Code(),
			})
		}

	case EventStartPerfMonitoring:
		if s, ok := r.boundSession(c); ok {
			r.monitor.Subscribe(s.ID())
			c.SendEvent(EventMonitoringStarted, monitoringStatePayload{SessionID: s.ID()})
		}

	case EventStopPerfMonitoring:
		if s, ok := r.boundSession(c); ok {
			r.monitor.Unsubscribe(s.ID())
			c.SendEvent(EventMonitoringStopped, monitoringStatePayload{SessionID: s.ID()})
		}

	default:
		// Unknown events are dropped, not answered.
		logger.Warnw("ignoring unknown event", "event", env.Event, "connection_id", c.id)
	}
}

// decode parses an inbound payload, rejecting the event on malformed JSON.
func (r *Router) decode(c *Conn, raw json.RawMessage, into any) bool {
	if err := json.Unmarshal(raw, into); err != nil {
		r.reject(c, EventError, errors.NewInvalidPayloadError("malformed payload"))
		return false
	}
	return true
}

// reject sends a typed error event and counts the rejection.
func (r *Router) reject(c *Conn, event string, err error) {
	kind := errors.Kind(err)
	telemetry.EventsRejected.WithLabelValues(kind).Inc()
	c.SendError(event, kind, err.Error())
}

// boundSession resolves the connection's session, rejecting when the
// connection is unbound or the session vanished underneath it.
func (r *Router) boundSession(c *Conn) (*session.Session, bool) {
	sid := c.SessionID()
	if sid == "" {
		r.reject(c, EventError, errors.NewAccessDeniedError("not joined to a session"))
		return nil, false
	}
	s, ok := r.registry.Get(sid)
	if !ok {
		c.unbind()
		r.reject(c, EventSessionError, errors.NewSessionNotFoundError("session no longer exists"))
		return nil, false
	}
	return s, true
}

// requirePermission resolves the session and checks one capability.
func (r *Router) requirePermission(c *Conn, check func(session.Permissions) bool, what string) (*session.Session, bool) {
	s, ok := r.boundSession(c)
	if !ok {
		return nil, false
	}
	perms, _ := s.PermissionsFor(c.principal.UserID)
	if !check(perms) {
		r.reject(c, EventError, errors.NewAccessDeniedError("you do not have permission to "+what))
		return nil, false
	}
	return s, true
}

// handleJoin runs the join state machine: reserve the connection, admit
// through the session directory, bind the fan-out index, then announce.
func (r *Router) handleJoin(c *Conn, p joinPayload) {
	if !c.beginJoin() {
		r.reject(c, EventSessionError, errors.NewInvalidPayloadError("connection is already joined to a session"))
		return
	}

	s, perms, err := r.admission.Join(p.InviteKey, p.SessionID, c.principal)
	if err != nil {
		c.completeJoin("", false)
		r.reject(c, EventSessionError, err)
		return
	}

	r.hub.bind(c, s.ID())
	c.completeJoin(s.ID(), true)

	includeKey := s.CreatorID() == c.principal.UserID
	c.SendEvent(EventSessionJoined, sessionJoinedPayload{
		Session:         s.Snapshot(includeKey),
		UserPermissions: perms,
	})

	// State snapshot follows session_joined so the joiner syncs the shared
	// buffer and file map without asking.
	c.SendEvent(EventCodeUpdate, codeUpdatePayload{Code: s.Code()})
	c.SendEvent(EventSessionFilesState, sessionFilesStatePayload{
		Files: s.FilesSnapshot(),
		Code:  s.Code(),
	})

	r.hub.BroadcastToSession(s.ID(), EventUserJoinedSession, userPresencePayload{
		UserID:      c.principal.UserID,
		DisplayName: c.principal.DisplayName,
		IsGuest:     c.principal.IsGuest(),
	})
	r.hub.BroadcastToSession(s.ID(), EventSessionUpdate, sessionUpdatePayload{Session: s.Snapshot(false)})
}

// handleLeave runs the leave protocol. The state machine guarantees peers
// are notified exactly once whether the leave was explicit or a disconnect.
func (r *Router) handleLeave(c *Conn, implicit bool) {
	sid, ok := c.beginLeave()
	if !ok {
		if !implicit {
			r.reject(c, EventError, errors.NewAccessDeniedError("not joined to a session"))
		}
		return
	}

	s, err := r.admission.Leave(sid, c.principal.UserID)
	r.hub.unbind(c, sid)
	c.completeLeave()

	if err != nil {
		logger.Warnw("leave on missing session", "session_id", sid, "user_id", c.principal.UserID)
		return
	}

	if !implicit {
		c.SendEvent(EventSessionLeft, sessionLeftPayload{SessionID: sid})
	}

	r.hub.BroadcastToSession(sid, EventUserLeftSession, userPresencePayload{
		UserID:      c.principal.UserID,
		DisplayName: c.principal.DisplayName,
		IsGuest:     c.principal.IsGuest(),
	})
	r.hub.BroadcastToSession(sid, EventSessionUpdate, sessionUpdatePayload{Session: s.Snapshot(false)})

	if len(r.hub.roomConns(sid)) == 0 {
		r.monitor.Unsubscribe(sid)
	}
}

func (r *Router) handleCodeChange(c *Conn, raw json.RawMessage) {
	var p codeChangePayload
	if !r.decode(c, raw, &p) {
		return
	}
	s, ok := r.requirePermission(c, func(p session.Permissions) bool { return p.CanEditFiles }, "edit code")
	if !ok {
		return
	}
	if err := s.SetCode(p.Code); err != nil {
		r.reject(c, EventError, err)
		return
	}
	r.hub.BroadcastToPeers(s.ID(), EventCodeUpdate, codeUpdatePayload{
		Code:   p.Code,
		UserID: c.principal.UserID,
	}, c.id)
}

func (r *Router) handleRealtimeCodeChange(c *Conn, raw json.RawMessage) {
	var p realtimeCodePayload
	if !r.decode(c, raw, &p) {
		return
	}
	s, ok := r.requirePermission(c, func(p session.Permissions) bool { return p.CanEditFiles }, "edit files")
	if !ok {
		return
	}
	if _, err := s.UpsertFile(p.FilePath, p.Content, c.principal.UserID); err != nil {
		r.reject(c, EventError, err)
		return
	}
	r.hub.BroadcastToPeers(s.ID(), EventRealtimeCodeUpdate, realtimeCodeUpdatePayload{
		FilePath: p.FilePath,
		Content:  p.Content,
		UserID:   c.principal.UserID,
	}, c.id)
}

func (r *Router) handleFileOperation(c *Conn, raw json.RawMessage) {
	var p fileOperationPayload
	if !r.decode(c, raw, &p) {
		return
	}

	action := session.FileAction(p.Action)
	var check func(session.Permissions) bool
	switch action {
	case session.FileActionCreate:
		check = func(p session.Permissions) bool { return p.CanCreateFiles }
	case session.FileActionDelete:
		check = func(p session.Permissions) bool { return p.CanDeleteFiles }
	case session.FileActionRename, session.FileActionSave:
		check = func(p session.Permissions) bool { return p.CanEditFiles }
	default:
		r.reject(c, EventError, errors.NewInvalidPayloadError(fmt.Sprintf("unknown file action %q", p.Action)))
		return
	}

	s, ok := r.requirePermission(c, check, "perform this file operation")
	if !ok {
		return
	}

	op := session.FileOperation{
		Action:  action,
		Path:    p.Path,
		NewPath: p.Data.NewPath,
		Content: p.Data.Content,
	}
	if err := s.ApplyFileOperation(op, c.principal.UserID); err != nil {
		r.reject(c, EventError, err)
		return
	}

	echo := fileOperationEcho{Action: p.Action, Path: p.Path, UserID: c.principal.UserID}
	echo.Data.Content = p.Data.Content
	echo.Data.NewPath = p.Data.NewPath
	r.hub.BroadcastToSession(s.ID(), EventFileOperation, echo)
}

func (r *Router) handleCreateFile(c *Conn, raw json.RawMessage) {
	var p createFilePayload
	if !r.decode(c, raw, &p) {
		return
	}
	s, ok := r.requirePermission(c, func(p session.Permissions) bool { return p.CanCreateFiles }, "create files")
	if !ok {
		return
	}
	path, entry, err := s.CreateFile(p.Name, p.Content, c.principal.UserID)
	if err != nil {
		r.reject(c, EventError, err)
		return
	}
	r.hub.BroadcastToSession(s.ID(), EventFileCreated, fileCreatedPayload{
		Path:   path,
		Entry:  entry,
		UserID: c.principal.UserID,
	})
}

func (r *Router) handleCreateFolder(c *Conn, raw json.RawMessage) {
	var p createFolderPayload
	if !r.decode(c, raw, &p) {
		return
	}
	s, ok := r.requirePermission(c, func(p session.Permissions) bool { return p.CanCreateFolders }, "create folders")
	if !ok {
		return
	}
	path, entry, err := s.CreateFolder(p.Name, c.principal.UserID)
	if err != nil {
		r.reject(c, EventError, err)
		return
	}
	r.hub.BroadcastToSession(s.ID(), EventFolderCreated, fileCreatedPayload{
		Path:   path,
		Entry:  entry,
		UserID: c.principal.UserID,
	})
}

// Cursor and activity updates are presence traffic: no state mutation, relay
// to peers only. Both require view access.
func (r *Router) handleCursorUpdate(c *Conn, raw json.RawMessage) {
	var p cursorPayload
	if !r.decode(c, raw, &p) {
		return
	}
	s, ok := r.requirePermission(c, func(p session.Permissions) bool { return p.CanViewFiles }, "view files")
	if !ok {
		return
	}
	r.hub.BroadcastToPeers(s.ID(), EventCursorUpdate, cursorUpdateBroadcast{
		FilePath:  p.FilePath,
		Position:  p.Position,
		Selection: p.Selection,
		Color:     p.Color,
		UserID:    c.principal.UserID,
	}, c.id)
}

func (r *Router) handleFileActivity(c *Conn, raw json.RawMessage) {
	var p fileActivityPayload
	if !r.decode(c, raw, &p) {
		return
	}
	s, ok := r.requirePermission(c, func(p session.Permissions) bool { return p.CanViewFiles }, "view files")
	if !ok {
		return
	}
	r.hub.BroadcastToPeers(s.ID(), EventFileActivityUpdate, fileActivityBroadcast{
		FilePath: p.FilePath,
		UserID:   c.principal.UserID,
	}, c.id)
}

func (r *Router) handleChat(c *Conn, raw json.RawMessage) {
	var p chatPayload
	if !r.decode(c, raw, &p) {
		return
	}
	s, ok := r.requirePermission(c, func(p session.Permissions) bool { return p.CanChat }, "send chat messages")
	if !ok {
		return
	}
	msg, err := s.AppendChat(c.principal.UserID, c.principal.DisplayName, p.Content, p.Type)
	if err != nil {
		r.reject(c, EventError, err)
		return
	}
	r.hub.BroadcastToSession(s.ID(), EventChatMessage, msg)
}

// handleExecute broadcasts execution_started to the room before the sandbox
// round trip begins, then runs the dispatch off the read goroutine so slow
// executions don't stall the sender's event stream.
func (r *Router) handleExecute(c *Conn, raw json.RawMessage) {
	var p executePayload
	if !r.decode(c, raw, &p) {
		return
	}
	s, ok := r.requirePermission(c, func(p session.Permissions) bool { return p.CanExecute }, "execute code")
	if !ok {
		return
	}
	if !execute.Supported(p.Language) {
		r.reject(c, EventExecutionError, errors.NewUnsupportedLanguageError(
			fmt.Sprintf("language %q is not supported", p.Language)))
		return
	}

	sid := s.ID()
	r.hub.BroadcastToSession(sid, EventExecutionStarted, executionStartedPayload{
		UserID:   c.principal.UserID,
		Language: p.Language,
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), executeTimeout)
		defer cancel()

		result, err := r.runner.Exec(ctx, execute.Request{
			Language: p.Language,
			Code:     p.Code,
			Stdin:    p.Input,
		})
		if err != nil {
			kind := errors.Kind(err)
			telemetry.EventsRejected.WithLabelValues(kind).Inc()
			r.hub.BroadcastToSession(sid, EventExecutionError, errorPayload{Error: kind, Message: err.Error()})
			return
		}
		r.hub.BroadcastToSession(sid, EventExecutionResult, result)
	}()
}

// handleUpdatePermissions is creator-keyed: granting canManagePermissions to
// a member must not let them rewrite anyone's vector.
func (r *Router) handleUpdatePermissions(c *Conn, raw json.RawMessage) {
	var p updatePermissionsPayload
	if !r.decode(c, raw, &p) {
		return
	}
	s, ok := r.boundSession(c)
	if !ok {
		return
	}
	if s.CreatorID() != c.principal.UserID {
		r.reject(c, EventError, errors.NewAccessDeniedError("only the session creator may manage permissions"))
		return
	}
	if _, seen := s.PermissionsFor(p.UserID); !seen {
		r.reject(c, EventError, errors.NewInvalidPayloadError("user has never joined this session"))
		return
	}
	s.SetPermissions(p.UserID, p.Permissions)
	r.hub.BroadcastToSession(s.ID(), EventPermissionsUpdated, permissionsUpdatedPayload{
		UserID:      p.UserID,
		Permissions: p.Permissions,
	})
}

func (r *Router) handleProjectInit(c *Conn, raw json.RawMessage, mode session.ProjectMode) {
	var p projectInitPayload
	if !r.decode(c, raw, &p) {
		return
	}
	s, ok := r.boundSession(c)
	if !ok {
		return
	}
	if s.CreatorID() != c.principal.UserID {
		r.reject(c, EventError, errors.NewAccessDeniedError("only the session creator may initialize a project"))
		return
	}

	proj := session.Project{
		Mode:     mode,
		OwnerID:  c.principal.UserID,
		Template: p.Template,
		Data:     p.Data,
	}
	var templateFiles map[string]string
	if mode == session.ProjectCreate {
		templateFiles = p.Files
	}
	if err := s.SetProject(proj, templateFiles, c.principal.UserID); err != nil {
		r.reject(c, EventError, err)
		return
	}

	r.hub.BroadcastToSession(s.ID(), EventSessionUpdate, sessionUpdatePayload{Session: s.Snapshot(false)})
	if mode == session.ProjectCreate {
		r.hub.BroadcastToSession(s.ID(), EventSessionFilesState, sessionFilesStatePayload{
			Files: s.FilesSnapshot(),
			Code:  s.Code(),
		})
	}
}

// handleAccessRights lets the project owner coarsely regrant edit and
// execute rights by access level, on top of the fine-grained vector.
func (r *Router) handleAccessRights(c *Conn, raw json.RawMessage) {
	var p accessRightsPayload
	if !r.decode(c, raw, &p) {
		return
	}
	s, ok := r.boundSession(c)
	if !ok {
		return
	}
	proj := s.Project()
	if proj == nil {
		r.reject(c, EventError, errors.NewInvalidPayloadError("session has no project"))
		return
	}
	if proj.OwnerID != c.principal.UserID {
		r.reject(c, EventError, errors.NewAccessDeniedError("only the project owner may change access rights"))
		return
	}

	perms, seen := s.PermissionsFor(p.UserID)
	if !seen {
		r.reject(c, EventError, errors.NewInvalidPayloadError("user has never joined this session"))
		return
	}

	switch p.AccessLevel {
	case "view":
		perms.CanEditFiles = false
		perms.CanExecute = false
	case "edit":
		perms.CanEditFiles = true
		perms.CanExecute = true
	default:
		r.reject(c, EventError, errors.NewInvalidPayloadError(fmt.Sprintf("unknown access level %q", p.AccessLevel)))
		return
	}
	s.SetPermissions(p.UserID, perms)

	r.hub.BroadcastToSession(s.ID(), EventAccessRightsUpdate, accessRightsBroadcast{
		UserID:      p.UserID,
		AccessLevel: p.AccessLevel,
		UpdatedBy:   c.principal.UserID,
	})
	r.hub.BroadcastToSession(s.ID(), EventPermissionsUpdated, permissionsUpdatedPayload{
		UserID:      p.UserID,
		Permissions: perms,
	})
}

// NotifySessionDeleted broadcasts the terminal event and unbinds every
// connection in the room. Called after the directory entry is removed.
func (r *Router) NotifySessionDeleted(sessionID string) {
	r.hub.BroadcastToSession(sessionID, EventSessionDeleted, sessionDeletedPayload{SessionID: sessionID})
	for _, c := range r.hub.roomConns(sessionID) {
		c.unbind()
		r.hub.unbind(c, sessionID)
	}
	r.monitor.Unsubscribe(sessionID)
}
