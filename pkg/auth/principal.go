// Package auth provides token verification and principal resolution for the
// collaboration backend.
package auth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role is the coarse account role carried by a principal.
type Role string

// Roles.
const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// Origin records which verification path produced a principal.
type Origin string

// Origins.
const (
	// OriginVerified marks principals produced by the federated-identity path.
	OriginVerified Origin = "verified"
	// OriginAutoCreated marks principals produced by the locally-signed or
	// development token paths.
	OriginAutoCreated Origin = "auto-created"
	// OriginGuest marks synthetic guest principals.
	OriginGuest Origin = "guest"
)

// Principal represents an authenticated user or a synthetic guest attached to
// one realtime connection.
type Principal struct {
	// UserID is the unique identifier for the principal.
	UserID string

	// Email is the email address, if available.
	Email string

	// DisplayName is the human-readable name. Falls back to the local part
	// of the email when the token carries no name claim.
	DisplayName string

	// Role is the coarse account role.
	Role Role

	// Avatar is an optional avatar URL.
	Avatar string

	// Origin records which verification path produced this principal.
	Origin Origin
}

// IsGuest reports whether the principal is a synthetic guest.
func (p *Principal) IsGuest() bool {
	return p.Origin == OriginGuest
}

// String returns a representation safe for logging.
func (p *Principal) String() string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Principal{UserID:%q, Origin:%q}", p.UserID, p.Origin)
}

// MarshalJSON serializes the principal with lowercase wire field names.
func (p *Principal) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	type wirePrincipal struct {
		UserID      string `json:"userId"`
		Email       string `json:"email,omitempty"`
		DisplayName string `json:"displayName"`
		Role        Role   `json:"role"`
		Avatar      string `json:"avatar,omitempty"`
		Origin      Origin `json:"origin"`
	}
	return json.Marshal(&wirePrincipal{
		UserID:      p.UserID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Role:        p.Role,
		Avatar:      p.Avatar,
		Origin:      p.Origin,
	})
}

// NewGuestPrincipal creates a synthetic guest principal with a non-reusable
// user id.
func NewGuestPrincipal() *Principal {
	id := uuid.NewString()
	short := strings.SplitN(id, "-", 2)[0]
	return &Principal{
		UserID:      "guest-" + id,
		DisplayName: "Guest " + short,
		Role:        RoleGuest,
		Origin:      OriginGuest,
	}
}

// displayNameFromEmail derives a display name from the local part of an
// email address.
func displayNameFromEmail(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
