// Package session holds the live-session directory: the registry indexes,
// admission control, per-user permission vectors, and the in-memory session
// state engine (code buffer, file map, chat log).
package session

import (
	"sync"
	"time"
)

// EntryType distinguishes files from directories in a session's file map.
type EntryType string

// Entry types.
const (
	EntryFile      EntryType = "file"
	EntryDirectory EntryType = "directory"
)

// Permissions is the boolean capability vector controlling what a principal
// may do in a specific session.
type Permissions struct {
	CanViewFiles         bool `json:"canViewFiles"`
	CanEditFiles         bool `json:"canEditFiles"`
	CanCreateFiles       bool `json:"canCreateFiles"`
	CanCreateFolders     bool `json:"canCreateFolders"`
	CanDeleteFiles       bool `json:"canDeleteFiles"`
	CanManagePermissions bool `json:"canManagePermissions"`
	CanInviteOthers      bool `json:"canInviteOthers"`
	CanExecute           bool `json:"canExecute"`
	CanChat              bool `json:"canChat"`
}

// DefaultPermissions is the vector seeded for joiners when the session
// settings don't override it.
func DefaultPermissions() Permissions {
	return Permissions{
		CanViewFiles:     true,
		CanEditFiles:     true,
		CanCreateFiles:   true,
		CanCreateFolders: true,
		CanDeleteFiles:   true,
		CanExecute:       true,
		CanChat:          true,
	}
}

// CreatorPermissions is the full vector granted to the session creator.
func CreatorPermissions() Permissions {
	return Permissions{
		CanViewFiles:         true,
		CanEditFiles:         true,
		CanCreateFiles:       true,
		CanCreateFolders:     true,
		CanDeleteFiles:       true,
		CanManagePermissions: true,
		CanInviteOthers:      true,
		CanExecute:           true,
		CanChat:              true,
	}
}

// Settings are the per-session tunables fixed at creation (aside from
// permission edits).
type Settings struct {
	MaxUsers           int         `json:"maxUsers"`
	AllowGuests        bool        `json:"allowGuests"`
	DefaultPermissions Permissions `json:"defaultPermissions"`
}

// FileEntry is one entry in a session's file map. Directory entries have
// keys ending in "/" and Type == EntryDirectory.
type FileEntry struct {
	Type         EntryType `json:"type"`
	Content      string    `json:"content"`
	CreatedBy    string    `json:"createdBy"`
	LastEditedBy string    `json:"lastEditedBy"`
	LastModified time.Time `json:"lastModified"`
}

// ChatMessage is one entry in a session's chat log.
type ChatMessage struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Content     string    `json:"content"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
}

// ProjectMode distinguishes shared projects from template-created ones.
type ProjectMode string

// Project modes.
const (
	ProjectShare  ProjectMode = "share"
	ProjectCreate ProjectMode = "create"
)

// Project is the optional project attachment of a session.
type Project struct {
	Mode     ProjectMode    `json:"mode"`
	OwnerID  string         `json:"ownerId"`
	Template string         `json:"template,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Member is a membership record inside a session.
type Member struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	IsGuest     bool      `json:"isGuest"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Session is an ephemeral collaboration room. All mutable fields are guarded
// by mu; cross-session code must take the registry lock first (never the
// other way around).
type Session struct {
	mu sync.Mutex

	id        string
	name      string
	creatorID string
	inviteKey string
	createdAt time.Time
	settings  Settings

	members     map[string]Member
	permissions map[string]Permissions

	codeBuffer string
	files      map[string]FileEntry
	chatLog    []ChatMessage
	project    *Project

	// gcTimer is the pending empty-session sweep, nil when members exist.
	gcTimer *time.Timer
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Name returns the session display label.
func (s *Session) Name() string { return s.name }

// CreatorID returns the immutable creator principal id.
func (s *Session) CreatorID() string { return s.creatorID }

// CreatedAt returns the creation timestamp.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// InviteKey returns the current invite key.
func (s *Session) InviteKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inviteKey
}

// Settings returns a copy of the session settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// MemberCount returns the current number of attached members.
func (s *Session) MemberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// Members returns a snapshot of the current members.
func (s *Session) Members() []Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	return out
}

// MemberIDs returns a snapshot of the current member ids.
func (s *Session) MemberIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.members))
	for id := range s.members {
		out = append(out, id)
	}
	return out
}

// IsMember reports whether userID is currently attached.
func (s *Session) IsMember(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[userID]
	return ok
}

// PermissionsFor returns the permission vector materialized for userID.
// The second return is false when the user has never joined this session.
func (s *Session) PermissionsFor(userID string) (Permissions, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.permissions[userID]
	return p, ok
}

// SetPermissions replaces the permission vector for userID. The caller is
// responsible for the creator-only capability check.
func (s *Session) SetPermissions(userID string, p Permissions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions[userID] = p
}

// Project returns the current project attachment, or nil.
func (s *Session) Project() *Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

// Info is the read-only snapshot of a session returned to clients.
type Info struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatorID   string    `json:"creatorId"`
	InviteKey   string    `json:"inviteKey,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Settings    Settings  `json:"settings"`
	UserCount   int       `json:"userCount"`
	Members     []Member  `json:"members"`
	FileCount   int       `json:"fileCount"`
	ChatLength  int       `json:"chatLength"`
	HasProject  bool      `json:"hasProject"`
	ProjectMode string    `json:"projectMode,omitempty"`
}

// Snapshot assembles a client-facing snapshot. The invite key is included
// only when includeKey is set (creator and REST owners see it; room
// broadcasts do not).
func (s *Session) Snapshot(includeKey bool) Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := make([]Member, 0, len(s.members))
	for _, m := range s.members {
		members = append(members, m)
	}

	info := Info{
		ID:         s.id,
		Name:       s.name,
		CreatorID:  s.creatorID,
		CreatedAt:  s.createdAt,
		Settings:   s.settings,
		UserCount:  len(s.members),
		Members:    members,
		FileCount:  len(s.files),
		ChatLength: len(s.chatLog),
		HasProject: s.project != nil,
	}
	if s.project != nil {
		info.ProjectMode = string(s.project.Mode)
	}
	if includeKey {
		info.InviteKey = s.inviteKey
	}
	return info
}
