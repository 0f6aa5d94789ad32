package model

import "time"

// Reasons recorded on revoked refresh tokens.
const (
	ReasonReplaced      = "Replaced by new token"
	ReasonLoggedInAgain = "User logged in again"
	ReasonRevokedByUser = "Revoked by user"
)

// RefreshToken models a row of `security_refresh_tokens`. Token holds the
// SHA-256 hex digest of the value handed to the client; the raw value is
// never persisted. ReplacedByToken points at the digest of the token that
// superseded this one, forming a chain that can be walked to detect reuse.
//
// A token is Active while it is neither used nor revoked and not expired.
// Rotation sets IsUsed, IsRevoked and ReplacedByToken. Explicit revocation
// sets IsRevoked only. Both are terminal.
type RefreshToken struct {
	ID              string    // security_refresh_tokens.id
	Token           string    // security_refresh_tokens.token (sha256 hex)
	ExpiryDate      time.Time // security_refresh_tokens.expiry_date
	IsUsed          bool      // security_refresh_tokens.is_used
	IsRevoked       bool      // security_refresh_tokens.is_revoked
	UserID          string    // security_refresh_tokens.user_id
	ReplacedByToken *string   // security_refresh_tokens.replaced_by_token (nullable)
	ReasonRevoked   *string   // security_refresh_tokens.reason_revoked (nullable)
	Audit

	User *User // loaded by validation
}

// IsActive reports whether the token can still be exchanged at now.
func (t RefreshToken) IsActive(now time.Time) bool {
	return !t.IsUsed && !t.IsRevoked && !t.IsDeleted && now.Before(t.ExpiryDate)
}
