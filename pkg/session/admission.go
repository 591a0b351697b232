package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/auth"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/errors"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/logger"
)

// insertAttempts bounds the invite-key collision retry loop at creation.
const insertAttempts = 5

// Admission creates sessions, admits and evicts members, and manages invite
// keys and the empty-session garbage collector. It is the only writer of the
// registry besides the event router's permission edits.
type Admission struct {
	registry Registry

	// defaults applied to new sessions.
	defaultMaxUsers    int
	defaultAllowGuests bool

	// emptyTTL is how long an empty session survives before the sweep.
	emptyTTL time.Duration
}

// NewAdmission creates an admission controller over the given registry.
func NewAdmission(registry Registry, defaultMaxUsers int, defaultAllowGuests bool, emptyTTL time.Duration) *Admission {
	return &Admission{
		registry:           registry,
		defaultMaxUsers:    defaultMaxUsers,
		defaultAllowGuests: defaultAllowGuests,
		emptyTTL:           emptyTTL,
	}
}

// CreateOptions are the caller-supplied parts of a new session.
type CreateOptions struct {
	Name     string
	Settings *Settings
}

// Create produces a new session. The creator's permission row is
// materialized before the call returns; membership itself is established
// when the creator's realtime connection joins.
func (a *Admission) Create(creator *auth.Principal, opts CreateOptions) (*Session, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = fmt.Sprintf("%s's session", creator.DisplayName)
	}

	settings := Settings{
		MaxUsers:           a.defaultMaxUsers,
		AllowGuests:        a.defaultAllowGuests,
		DefaultPermissions: DefaultPermissions(),
	}
	if opts.Settings != nil {
		if opts.Settings.MaxUsers > 0 {
			settings.MaxUsers = opts.Settings.MaxUsers
		}
		settings.AllowGuests = opts.Settings.AllowGuests
		if opts.Settings.DefaultPermissions != (Permissions{}) {
			settings.DefaultPermissions = opts.Settings.DefaultPermissions
		}
	}

	id, err := NewSessionID()
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:          id,
		name:        name,
		creatorID:   creator.UserID,
		createdAt:   time.Now(),
		settings:    settings,
		members:     make(map[string]Member),
		permissions: make(map[string]Permissions),
		files:       make(map[string]FileEntry),
	}
	s.permissions[creator.UserID] = CreatorPermissions()

	for attempt := 0; ; attempt++ {
		key, err := GenerateInviteKey()
		if err != nil {
			return nil, err
		}
		s.inviteKey = key
		if err := a.registry.Insert(s); err == nil {
			break
		} else if attempt+1 >= insertAttempts {
			return nil, fmt.Errorf("failed to register session: %w", err)
		}
	}

	// A fresh session has no members; arm the sweep so an abandoned
	// creation is still purged.
	a.scheduleSweep(s)

	logger.Infow("session created",
		"session_id", s.id, "creator_id", s.creatorID, "max_users", settings.MaxUsers)
	return s, nil
}

// Join admits a principal into the session resolved from an invite key or a
// session id. It enforces the invite, capacity, and guest invariants, and
// materializes the joiner's permission row on first join. Rejoin is
// idempotent.
func (a *Admission) Join(inviteKey, sessionID string, p *auth.Principal) (*Session, Permissions, error) {
	var s *Session
	var ok bool
	switch {
	case inviteKey != "":
		s, ok = a.registry.GetByInviteKey(inviteKey)
		if !ok {
			return nil, Permissions{}, errors.NewInvalidInviteError("invite key does not match a live session")
		}
	case sessionID != "":
		s, ok = a.registry.Get(sessionID)
		if !ok {
			return nil, Permissions{}, errors.NewInvalidInviteError("session does not exist")
		}
	default:
		return nil, Permissions{}, errors.NewInvalidPayloadError("join requires an invite key or session id")
	}

	perms, err := s.admit(p)
	if err != nil {
		return nil, Permissions{}, err
	}

	// A member arrived; any pending sweep is stale.
	a.cancelSweep(s)

	logger.Infow("user joined session", "session_id", s.id, "user_id", p.UserID)
	return s, perms, nil
}

// admit performs the membership mutation under the session lock.
func (s *Session) admit(p *auth.Principal) (Permissions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, already := s.members[p.UserID]; already {
		return s.permissions[p.UserID], nil
	}

	if p.IsGuest() && !s.settings.AllowGuests {
		return Permissions{}, errors.NewGuestDeniedError("session does not allow guests")
	}
	if len(s.members) >= s.settings.MaxUsers {
		return Permissions{}, errors.NewSessionFullError(
			fmt.Sprintf("session is at its limit of %d users", s.settings.MaxUsers))
	}

	if _, seen := s.permissions[p.UserID]; !seen {
		perms := s.settings.DefaultPermissions
		if p.UserID == s.creatorID {
			perms = CreatorPermissions()
		}
		s.permissions[p.UserID] = perms
	}

	s.members[p.UserID] = Member{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Role:        string(p.Role),
		IsGuest:     p.IsGuest(),
		JoinedAt:    time.Now(),
	}
	return s.permissions[p.UserID], nil
}

// Leave removes a member. The permission row is preserved for rejoin. When
// the session drains empty, a delayed sweep is scheduled.
func (a *Admission) Leave(sessionID, userID string) (*Session, error) {
	s, ok := a.registry.Get(sessionID)
	if !ok {
		return nil, errors.NewSessionNotFoundError("session does not exist")
	}

	s.mu.Lock()
	_, wasMember := s.members[userID]
	delete(s.members, userID)
	empty := len(s.members) == 0
	s.mu.Unlock()

	if !wasMember {
		return s, nil
	}
	if empty {
		a.scheduleSweep(s)
	}

	logger.Infow("user left session", "session_id", sessionID, "user_id", userID)
	return s, nil
}

// RotateInviteKey swaps the session's invite key. Creator only.
func (a *Admission) RotateInviteKey(sessionID, byUserID string) (string, error) {
	s, ok := a.registry.Get(sessionID)
	if !ok {
		return "", errors.NewSessionNotFoundError("session does not exist")
	}
	if s.CreatorID() != byUserID {
		return "", errors.NewAccessDeniedError("only the session creator may rotate the invite key")
	}
	key, err := a.registry.RotateInviteKey(sessionID)
	if err != nil {
		return "", err
	}
	logger.Infow("invite key rotated", "session_id", sessionID)
	return key, nil
}

// Delete purges a session. Creator only. The caller broadcasts the terminal
// session_deleted event to the returned members before connections unbind.
func (a *Admission) Delete(sessionID, byUserID string) (*Session, error) {
	s, ok := a.registry.Get(sessionID)
	if !ok {
		return nil, errors.NewSessionNotFoundError("session does not exist")
	}
	if s.CreatorID() != byUserID {
		return nil, errors.NewAccessDeniedError("only the session creator may delete the session")
	}

	a.cancelSweep(s)
	a.registry.Remove(sessionID)
	logger.Infow("session deleted", "session_id", sessionID, "by", byUserID)
	return s, nil
}

// scheduleSweep arms the delayed empty-session sweep. The sweep re-checks
// emptiness at fire time, so a rejoin between scheduling and firing keeps
// the session alive. Purging is idempotent.
func (a *Admission) scheduleSweep(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gcTimer != nil {
		s.gcTimer.Stop()
	}
	s.gcTimer = time.AfterFunc(a.emptyTTL, func() {
		a.sweep(s.id)
	})
}

// cancelSweep stops a pending sweep, if any.
func (a *Admission) cancelSweep(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gcTimer != nil {
		s.gcTimer.Stop()
		s.gcTimer = nil
	}
}

// sweep purges a session that is still empty at fire time.
func (a *Admission) sweep(sessionID string) {
	s, ok := a.registry.Get(sessionID)
	if !ok {
		return
	}
	if s.MemberCount() > 0 {
		return
	}
	a.registry.Remove(sessionID)
	logger.Infow("empty session purged", "session_id", sessionID)
}
