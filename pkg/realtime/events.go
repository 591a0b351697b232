// Package realtime implements the bidirectional event plane: the websocket
// connection manager, the per-IP handshake rate limiter, and the event
// router that validates, authorizes, applies, and fans out session events.
package realtime

import (
	"encoding/json"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/session"
)

// Inbound event names (client to hub).
const (
	EventJoinSession         = "join_session"
	EventLeaveSession        = "leave_session"
	EventCodeChange          = "code_change"
	EventRealtimeCodeChange  = "realtime_code_change"
	EventFileOperation       = "file_operation"
	EventCreateFile          = "create_file"
	EventCreateFolder        = "create_folder"
	EventCursorUpdate        = "cursor_update"
	EventFileActivityUpdate  = "file_activity_update"
	EventChatMessage         = "chat_message"
	EventExecuteCode         = "execute_code"
	EventUpdatePermissions   = "update_user_permissions"
	EventProjectShareInit    = "project_share_init"
	EventProjectCreateInit   = "project_create_init"
	EventAccessRightsUpdate  = "access_rights_update"
	EventGetSessionUsers     = "get_session_users"
	EventGetSessionInfo      = "get_session_info"
	EventGetSessionFiles     = "get_session_files"
	EventStartPerfMonitoring = "start_performance_monitoring"
	EventStopPerfMonitoring  = "stop_performance_monitoring"
)

// Outbound event names (hub to client).
const (
	EventSessionJoined      = "session_joined"
	EventSessionLeft        = "session_left"
	EventUserJoinedSession  = "user_joined_session"
	EventUserLeftSession    = "user_left_session"
	EventSessionUpdate      = "session_update"
	EventCodeUpdate         = "code_update"
	EventRealtimeCodeUpdate = "realtime_code_update"
	EventSessionFilesState  = "session_files_state"
	EventFileCreated        = "file_created"
	EventFolderCreated      = "folder_created"
	EventExecutionStarted   = "execution_started"
	EventExecutionResult    = "execution_result"
	EventExecutionError     = "execution_error"
	EventPermissionsUpdated = "permissions_updated"
	EventSessionUsers       = "session_users"
	EventSessionInfo        = "session_info"
	EventMonitoringStarted  = "monitoring_started"
	EventMonitoringStopped  = "monitoring_stopped"
	EventPerformanceUpdate  = "performance_update"
	EventSessionDeleted     = "session_deleted"
	EventSessionError       = "session_error"
	EventError              = "error"
	EventConnectionError    = "connection_error"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outbound builds a serialized envelope. Marshal failures are programming
// errors on our own payload types.
func outbound(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// errorPayload is the body of error, session_error, connection_error and
// execution_error events.
type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

// Inbound payloads.

type joinPayload struct {
	InviteKey string `json:"inviteKey"`
	SessionID string `json:"sessionId"`
}

type codeChangePayload struct {
	Code string `json:"code"`
}

type realtimeCodePayload struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
}

type fileOperationPayload struct {
	Action string `json:"action"`
	Path   string `json:"path"`
	Data   struct {
		Content string `json:"content"`
		NewPath string `json:"newPath"`
	} `json:"data"`
}

type createFilePayload struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type createFolderPayload struct {
	Name string `json:"name"`
}

type cursorPayload struct {
	FilePath  string          `json:"filePath"`
	Position  json.RawMessage `json:"position"`
	Selection json.RawMessage `json:"selection,omitempty"`
	Color     string          `json:"color,omitempty"`
}

type fileActivityPayload struct {
	FilePath string `json:"filePath"`
}

type chatPayload struct {
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

type executePayload struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Input    string `json:"input,omitempty"`
}

type updatePermissionsPayload struct {
	UserID      string              `json:"userId"`
	Permissions session.Permissions `json:"permissions"`
}

type projectInitPayload struct {
	Template string            `json:"template,omitempty"`
	Files    map[string]string `json:"files,omitempty"`
	Data     map[string]any    `json:"data,omitempty"`
}

type accessRightsPayload struct {
	UserID      string `json:"userId"`
	AccessLevel string `json:"accessLevel"`
}

// Outbound payloads.

type sessionJoinedPayload struct {
	Session         session.Info        `json:"session"`
	UserPermissions session.Permissions `json:"userPermissions"`
}

type userPresencePayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	IsGuest     bool   `json:"isGuest"`
}

type sessionUpdatePayload struct {
	Session session.Info `json:"session"`
}

type codeUpdatePayload struct {
	Code   string `json:"code"`
	UserID string `json:"userId,omitempty"`
}

type realtimeCodeUpdatePayload struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
	UserID   string `json:"userId"`
}

type fileCreatedPayload struct {
	Path   string            `json:"path"`
	Entry  session.FileEntry `json:"entry"`
	UserID string            `json:"userId"`
}

type fileOperationEcho struct {
	Action string `json:"action"`
	Path   string `json:"path"`
	Data   struct {
		Content string `json:"content"`
		NewPath string `json:"newPath"`
	} `json:"data"`
	UserID string `json:"userId"`
}

type cursorUpdateBroadcast struct {
	FilePath  string          `json:"filePath"`
	Position  json.RawMessage `json:"position"`
	Selection json.RawMessage `json:"selection,omitempty"`
	Color     string          `json:"color,omitempty"`
	UserID    string          `json:"userId"`
}

type fileActivityBroadcast struct {
	FilePath string `json:"filePath"`
	UserID   string `json:"userId"`
}

type permissionsUpdatedPayload struct {
	UserID      string              `json:"userId"`
	Permissions session.Permissions `json:"permissions"`
}

type accessRightsBroadcast struct {
	UserID      string `json:"userId"`
	AccessLevel string `json:"accessLevel"`
	UpdatedBy   string `json:"updatedBy"`
}

type executionStartedPayload struct {
	UserID   string `json:"userId"`
	Language string `json:"language"`
}

type sessionUsersPayload struct {
	Users []session.Member `json:"users"`
}

type sessionDeletedPayload struct {
	SessionID string `json:"sessionId"`
}

type sessionLeftPayload struct {
	SessionID string `json:"sessionId"`
}

type sessionFilesStatePayload struct {
	Files []session.FileState `json:"files"`
	Code  string              `json:"code"`
}

type monitoringStatePayload struct {
	SessionID string `json:"sessionId"`
}
