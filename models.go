package authflow

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is a verified account. Only PasswordHash mutates after creation, and
// only through a password reset.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Verified      bool       `bun:"is_verified" json:"is_verified,omitempty"`
	LastLoginAt   *time.Time `bun:"last_login,nullzero" json:"last_login,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// PendingSignup is an in-flight registration awaiting email-code
// verification. One live entry per email; a repeated signup overwrites both
// the code and the password hash, so the latest attempt wins.
type PendingSignup struct {
	bun.BaseModel `bun:"table:signup_verifications,alias:sgv"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email"`
	Code          string     `bun:"verification_code,notnull" json:"code"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"password_hash"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt     *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
}

// RecoveryRequest is an outstanding password-reset code. One live entry per
// email; a new request overwrites the previous one.
type RecoveryRequest struct {
	bun.BaseModel `bun:"table:password_recovery,alias:pwr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email"`
	Code          string     `bun:"recovery_code,notnull" json:"code"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt     *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
}

// Session is the single local session of the demo variant. A nil ExpiresAt
// means the session lives until explicitly cleared.
type Session struct {
	UserID    string     `json:"user_id"`
	Email     string     `json:"email"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ExpiredAt reports whether the session is past its expiry at the given
// instant. Sessions without an expiry never expire.
func (s *Session) ExpiredAt(now time.Time) bool {
	if s == nil || s.ExpiresAt == nil {
		return false
	}
	return now.After(*s.ExpiresAt)
}

// SessionRecord is a server-side bearer session. Tokens map to exactly one
// record; logout flips IsActive rather than deleting the row.
type SessionRecord struct {
	bun.BaseModel `bun:"table:user_sessions,alias:uss"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id"`
	IsActive      bool      `bun:"is_active" json:"is_active"`
	IPAddress     string    `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent     string    `bun:"user_agent" json:"user_agent,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expires_at"`
}
