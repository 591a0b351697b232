package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// inviteKeyAlphabet is the invite-key character set. Keys are compared
// case-sensitively.
const inviteKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// InviteKeyLength is the fixed invite-key length.
const InviteKeyLength = 12

// GenerateInviteKey returns a fresh 12-character key drawn uniformly from
// [A-Z0-9]. Collision checks against live keys are the registry's job.
func GenerateInviteKey() (string, error) {
	buf := make([]byte, InviteKeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read entropy: %w", err)
	}
	// Rejection sampling keeps the draw uniform over the 36-char alphabet.
	key := make([]byte, 0, InviteKeyLength)
	for len(key) < InviteKeyLength {
		for _, b := range buf {
			if int(b) < 252 { // 252 = 36 * 7, the largest multiple of 36 below 256
				key = append(key, inviteKeyAlphabet[int(b)%len(inviteKeyAlphabet)])
				if len(key) == InviteKeyLength {
					break
				}
			}
		}
		if len(key) < InviteKeyLength {
			if _, err := rand.Read(buf); err != nil {
				return "", fmt.Errorf("failed to read entropy: %w", err)
			}
		}
	}
	return string(key), nil
}

// NewSessionID returns an opaque, non-guessable session id (96 bits of
// entropy, hex encoded).
func NewSessionID() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read entropy: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ValidInviteKey reports whether k has the invite-key shape: exactly 12
// characters from [A-Z0-9].
func ValidInviteKey(k string) bool {
	if len(k) != InviteKeyLength {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
