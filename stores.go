package authflow

import "context"

// CredentialStore persists verified accounts keyed by email. Implementations
// must treat emails case-sensitively, exactly as stored.
type CredentialStore interface {
	// FindByEmail returns ErrEmailNotFound when no account exists.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Insert fails with ErrUserExists when the email is taken.
	Insert(ctx context.Context, user *User) (*User, error)
	// UpdatePasswordHash replaces the stored hash for the account.
	UpdatePasswordHash(ctx context.Context, email, passwordHash string) error
}

// PendingSignupStore persists in-flight signups, one live entry per email.
type PendingSignupStore interface {
	// Get returns ErrNoPendingSignup when no entry exists for the email.
	Get(ctx context.Context, email string) (*PendingSignup, error)
	// Put stores the entry, overwriting any previous one for the email.
	Put(ctx context.Context, pending *PendingSignup) error
	Delete(ctx context.Context, email string) error
}

// RecoveryStore persists outstanding password-reset codes, one per email.
type RecoveryStore interface {
	// Get returns ErrInvalidRecoveryCode when no entry exists for the email.
	Get(ctx context.Context, email string) (*RecoveryRequest, error)
	Put(ctx context.Context, request *RecoveryRequest) error
	Delete(ctx context.Context, email string) error
}

// SessionStore holds at most one session, the single-profile model of the
// demo variant. Concurrent writers are last-writer-wins.
type SessionStore interface {
	// Get returns (nil, nil) when no session is stored.
	Get(ctx context.Context) (*Session, error)
	Put(ctx context.Context, session *Session) error
	// Delete is idempotent.
	Delete(ctx context.Context) error
}

// TokenStore keeps the opaque bearer token of the remote variant.
type TokenStore interface {
	// Get returns ErrNoToken when nothing is stored.
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}
