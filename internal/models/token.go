package models

import "time"

// OneTimeCode is a short numeric credential delivered out of band to prove
// control of an email address or phone number. Rows are append-only; the only
// mutation is flipping used_at once.
type OneTimeCode struct {
	ID        string
	Target    string
	Code      string
	Purpose   string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (c *OneTimeCode) Used() bool {
	return c.UsedAt != nil
}

// Session records one authenticated login instance. Its id travels inside
// access tokens as the jti claim. Revocation is terminal.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"-"`
	UserAgent string     `json:"userAgent,omitempty"`
	IP        string     `json:"ip,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

func (s *Session) Active() bool {
	return s.RevokedAt == nil
}

// RefreshToken is the stored side of an opaque single-use refresh credential.
// Only a sha256 of the client-held value is persisted. Each token belongs to
// one session lineage; redemption revokes it and inserts a successor.
type RefreshToken struct {
	ID          string
	SessionID   string
	UserID      string
	TokenHash   string
	CreatedByIP string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	RevokedAt   *time.Time
}

func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}
