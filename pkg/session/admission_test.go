package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/auth"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/errors"
)

func testPrincipal(id string) *auth.Principal {
	return &auth.Principal{
		UserID:      id,
		Email:       id + "@example.com",
		DisplayName: id,
		Role:        auth.RoleUser,
		Origin:      auth.OriginAutoCreated,
	}
}

func guestPrincipal(id string) *auth.Principal {
	return &auth.Principal{
		UserID:      "guest-" + id,
		DisplayName: "Guest " + id,
		Role:        auth.RoleGuest,
		Origin:      auth.OriginGuest,
	}
}

func newTestAdmission(maxUsers int, allowGuests bool) (*Admission, *InMemoryRegistry) {
	registry := NewRegistry()
	return NewAdmission(registry, maxUsers, allowGuests, time.Hour), registry
}

func TestCreateSession(t *testing.T) {
	t.Parallel()

	a, registry := newTestAdmission(10, false)
	creator := testPrincipal("alice")

	s, err := a.Create(creator, CreateOptions{Name: "review session"})
	require.NoError(t, err)

	assert.Equal(t, "review session", s.Name())
	assert.Equal(t, "alice", s.CreatorID())
	assert.True(t, ValidInviteKey(s.InviteKey()))
	assert.Equal(t, 10, s.Settings().MaxUsers)
	assert.False(t, s.Settings().AllowGuests)

	// The creator's permission row exists before any member joins.
	perms, seen := s.PermissionsFor("alice")
	require.True(t, seen)
	assert.Equal(t, CreatorPermissions(), perms)
	assert.Equal(t, 0, s.MemberCount())

	got, ok := registry.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestCreateSessionDefaultsName(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdmission(10, false)
	s, err := a.Create(testPrincipal("bob"), CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "bob's session", s.Name())
}

func TestCreateSessionCustomSettings(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdmission(10, false)
	s, err := a.Create(testPrincipal("carol"), CreateOptions{
		Name: "pairing",
		Settings: &Settings{
			MaxUsers:    2,
			AllowGuests: true,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Settings().MaxUsers)
	assert.True(t, s.Settings().AllowGuests)
	assert.Equal(t, DefaultPermissions(), s.Settings().DefaultPermissions)
}

func TestJoinByInviteKey(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdmission(10, false)
	s, err := a.Create(testPrincipal("alice"), CreateOptions{})
	require.NoError(t, err)

	joined, perms, err := a.Join(s.InviteKey(), "", testPrincipal("bob"))
	require.NoError(t, err)
	assert.Same(t, s, joined)
	assert.Equal(t, DefaultPermissions(), perms)
	assert.True(t, s.IsMember("bob"))
	assert.Equal(t, 1, s.MemberCount())
}

func TestJoinBySessionID(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdmission(10, false)
	s, err := a.Create(testPrincipal("alice"), CreateOptions{})
	require.NoError(t, err)

	_, _, err = a.Join("", s.ID(), testPrincipal("bob"))
	require.NoError(t, err)
	assert.True(t, s.IsMember("bob"))
}

func TestJoinRejections(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdmission(10, false)
	s, err := a.Create(testPrincipal("alice"), CreateOptions{})
	require.NoError(t, err)

	tests := []struct {
		name      string
		inviteKey string
		sessionID string
		principal *auth.Principal
		wantKind  string
	}{
		{
			name:      "unknown invite key",
			inviteKey: "ZZZZZZZZZZZZ",
			principal: testPrincipal("bob"),
			wantKind:  errors.ErrInvalidInvite,
		},
		{
			name:      "unknown session id",
			sessionID: "does-not-exist",
			principal: testPrincipal("bob"),
			wantKind:  errors.ErrInvalidInvite,
		},
		{
			name:      "neither key nor id",
			principal: testPrincipal("bob"),
			wantKind:  errors.ErrInvalidPayload,
		},
		{
			name:      "guest denied when session disallows guests",
			inviteKey: s.InviteKey(),
			principal: guestPrincipal("g1"),
			wantKind:  errors.ErrGuestDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := a.Join(tt.inviteKey, tt.sessionID, tt.principal)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, errors.Kind(err))
		})
	}
}

func TestJoinCapacity(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdmission(2, false)
	s, err := a.Create(testPrincipal("alice"), CreateOptions{})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, _, err := a.Join(s.InviteKey(), "", testPrincipal(fmt.Sprintf("user-%d", i)))
		require.NoError(t, err)
	}

	_, _, err = a.Join(s.InviteKey(), "", testPrincipal("late"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrSessionFull, errors.Kind(err))

	// Rejoin of an existing member is idempotent, never a capacity error.
	_, _, err = a.Join(s.InviteKey(), "", testPrincipal("user-0"))
	require.NoError(t, err)
	assert.Equal(t, 2, s.MemberCount())
}

func TestGuestJoinAllowed(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdmission(10, true)
	s, err := a.Create(testPrincipal("alice"), CreateOptions{})
	require.NoError(t, err)

	_, perms, err := a.Join(s.InviteKey(), "", guestPrincipal("g1"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPermissions(), perms)
}

func TestCreatorJoinGetsCreatorPermissions(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdmission(10, false)
	creator := testPrincipal("alice")
	s, err := a.Create(creator, CreateOptions{})
	require.NoError(t, err)

	_, perms, err := a.Join(s.InviteKey(), "", creator)
	require.NoError(t, err)
	assert.Equal(t, CreatorPermissions(), perms)
}

func TestLeavePreservesPermissions(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdmission(10, false)
	s, err := a.Create(testPrincipal("alice"), CreateOptions{})
	require.NoError(t, err)

	bob := testPrincipal("bob")
	_, _, err = a.Join(s.InviteKey(), "", bob)
	require.NoError(t, err)

	custom := DefaultPermissions()
	custom.CanExecute = false
	s.SetPermissions("bob", custom)

	_, err = a.Leave(s.ID(), "bob")
	require.NoError(t, err)
	assert.False(t, s.IsMember("bob"))

	// Rejoin restores the edited vector, not the default.
	_, perms, err := a.Join(s.InviteKey(), "", bob)
	require.NoError(t, err)
	assert.Equal(t, custom, perms)
}

func TestLeaveUnknownSession(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdmission(10, false)
	_, err := a.Leave("missing", "bob")
	require.Error(t, err)
	assert.Equal(t, errors.ErrSessionNotFound, errors.Kind(err))
}

func TestRotateInviteKeyCreatorOnly(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdmission(10, false)
	s, err := a.Create(testPrincipal("alice"), CreateOptions{})
	require.NoError(t, err)
	oldKey := s.InviteKey()

	_, err = a.RotateInviteKey(s.ID(), "bob")
	require.Error(t, err)
	assert.Equal(t, errors.ErrAccessDenied, errors.Kind(err))

	newKey, err := a.RotateInviteKey(s.ID(), "alice")
	require.NoError(t, err)
	assert.NotEqual(t, oldKey, newKey)

	// The old key no longer admits anyone; the new one does.
	_, _, err = a.Join(oldKey, "", testPrincipal("bob"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidInvite, errors.Kind(err))
	_, _, err = a.Join(newKey, "", testPrincipal("bob"))
	require.NoError(t, err)
}

func TestDeleteCreatorOnly(t *testing.T) {
	t.Parallel()

	a, registry := newTestAdmission(10, false)
	s, err := a.Create(testPrincipal("alice"), CreateOptions{})
	require.NoError(t, err)

	_, err = a.Delete(s.ID(), "bob")
	require.Error(t, err)
	assert.Equal(t, errors.ErrAccessDenied, errors.Kind(err))

	_, err = a.Delete(s.ID(), "alice")
	require.NoError(t, err)
	_, ok := registry.Get(s.ID())
	assert.False(t, ok)
}

func TestEmptySessionSweep(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	a := NewAdmission(registry, 10, false, 20*time.Millisecond)

	s, err := a.Create(testPrincipal("alice"), CreateOptions{})
	require.NoError(t, err)

	// Never joined: the creation sweep purges the session.
	assert.Eventually(t, func() bool {
		_, ok := registry.Get(s.ID())
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestSweepCancelledByJoin(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	a := NewAdmission(registry, 10, false, 30*time.Millisecond)

	s, err := a.Create(testPrincipal("alice"), CreateOptions{})
	require.NoError(t, err)

	_, _, err = a.Join(s.InviteKey(), "", testPrincipal("bob"))
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	_, ok := registry.Get(s.ID())
	assert.True(t, ok, "session with a member must survive the sweep window")
}

func TestSweepAfterLastLeave(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	a := NewAdmission(registry, 10, false, 20*time.Millisecond)

	s, err := a.Create(testPrincipal("alice"), CreateOptions{})
	require.NoError(t, err)
	_, _, err = a.Join(s.InviteKey(), "", testPrincipal("bob"))
	require.NoError(t, err)

	_, err = a.Leave(s.ID(), "bob")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := registry.Get(s.ID())
		return !ok
	}, time.Second, 5*time.Millisecond)
}
