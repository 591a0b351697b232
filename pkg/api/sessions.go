package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/errors"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/logger"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/session"
)

// DeletionNotifier pushes the terminal session_deleted event to the room
// before connections unbind. Satisfied by the realtime router.
type DeletionNotifier interface {
	NotifySessionDeleted(sessionID string)
}

// SessionsRoutes defines the routes for session management.
type SessionsRoutes struct {
	admission *session.Admission
	registry  session.Registry
	notifier  DeletionNotifier
}

// SessionsRouter creates a new SessionsRoutes instance.
func SessionsRouter(admission *session.Admission, registry session.Registry, notifier DeletionNotifier) http.Handler {
	routes := SessionsRoutes{
		admission: admission,
		registry:  registry,
		notifier:  notifier,
	}

	r := chi.NewRouter()
	r.Get("/", routes.listSessions)
	r.Post("/create", routes.createSession)
	r.Post("/join", routes.joinSession)
	r.Get("/{id}", routes.getSession)
	r.Post("/{id}/regenerate-key", routes.regenerateKey)
	r.Delete("/{id}", routes.deleteSession)

	return r
}

// listSessions returns a directory listing without invite keys.
func (s *SessionsRoutes) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.List()
	infos := make([]session.Info, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Snapshot(false))
	}
	writeJSON(w, http.StatusOK, sessionListResponse{Sessions: infos, Count: len(infos)})
}

func (s *SessionsRoutes) createSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, errors.NewInvalidTokenError("no principal attached", nil))
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewInvalidPayloadError("invalid request body"))
		return
	}

	sess, err := s.admission.Create(principal, session.CreateOptions{
		Name:     req.Name,
		Settings: req.Settings,
	})
	if err != nil {
		logger.Errorf("Failed to create session: %v", err)
		writeError(w, err)
		return
	}

	// The creator sees the invite key.
	writeJSON(w, http.StatusCreated, sessionResponse{Session: sess.Snapshot(true)})
}

func (s *SessionsRoutes) joinSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, errors.NewInvalidTokenError("no principal attached", nil))
		return
	}

	var req joinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewInvalidPayloadError("invalid request body"))
		return
	}

	sess, perms, err := s.admission.Join(req.InviteKey, req.SessionID, principal)
	if err != nil {
		writeError(w, err)
		return
	}

	includeKey := sess.CreatorID() == principal.UserID
	writeJSON(w, http.StatusOK, joinSessionResponse{
		Session:         sess.Snapshot(includeKey),
		UserPermissions: perms,
	})
}

func (s *SessionsRoutes) getSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, errors.NewInvalidTokenError("no principal attached", nil))
		return
	}

	sess, found := s.registry.Get(chi.URLParam(r, "id"))
	if !found {
		writeError(w, errors.NewSessionNotFoundError("session does not exist"))
		return
	}

	includeKey := sess.CreatorID() == principal.UserID
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess.Snapshot(includeKey)})
}

func (s *SessionsRoutes) regenerateKey(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, errors.NewInvalidTokenError("no principal attached", nil))
		return
	}

	key, err := s.admission.RotateInviteKey(chi.URLParam(r, "id"), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, regenerateKeyResponse{InviteKey: key})
}

func (s *SessionsRoutes) deleteSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, errors.NewInvalidTokenError("no principal attached", nil))
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.admission.Delete(id, principal.UserID); err != nil {
		writeError(w, err)
		return
	}
	s.notifier.NotifySessionDeleted(id)
	w.WriteHeader(http.StatusNoContent)
}

// createSessionRequest is the request to create a session.
type createSessionRequest struct {
	Name     string            `json:"name"`
	Settings *session.Settings `json:"settings,omitempty"`
}

// joinSessionRequest resolves a session by invite key or id.
type joinSessionRequest struct {
	InviteKey string `json:"inviteKey,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// sessionResponse wraps a single session snapshot.
type sessionResponse struct {
	Session session.Info `json:"session"`
}

// sessionListResponse is the directory listing.
type sessionListResponse struct {
	Sessions []session.Info `json:"sessions"`
	Count    int            `json:"count"`
}

// joinSessionResponse carries the joiner's materialized permissions.
type joinSessionResponse struct {
	Session         session.Info        `json:"session"`
	UserPermissions session.Permissions `json:"userPermissions"`
}

// regenerateKeyResponse carries the rotated invite key.
type regenerateKeyResponse struct {
	InviteKey string `json:"inviteKey"`
}
