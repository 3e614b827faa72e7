package authflow

import (
	"context"
	"fmt"
)

// Logger is the minimal logging surface used across the package.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// SignupReceipt is what a signup request hands back to the caller. The code
// would be delivered out-of-band in a production deployment; this system
// surfaces it synchronously so the UI can show it.
type SignupReceipt struct {
	Email string `json:"email"`
	Code  string `json:"verification_code"`
}

// Backend is the auth lifecycle contract shared by the local Service and the
// HTTP-backed RemoteClient. Callers select a variant at construction time
// and interact with either through this interface.
type Backend interface {
	Signup(ctx context.Context, email, password string) (*SignupReceipt, error)
	VerifySignup(ctx context.Context, email, code string) (*User, error)
	ResendSignupCode(ctx context.Context, email string) (string, error)
	Login(ctx context.Context, email, password string, remember bool) (*User, error)
	RequestRecovery(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	CurrentSession(ctx context.Context) (*Session, error)
	Logout(ctx context.Context) error
}

// PasswordHasher is the digest primitive. Deterministic digests (SHA256Hasher)
// and salted ones (BcryptHasher) are interchangeable because all lifecycle
// checks go through Compare rather than hash equality.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(password, hash string) error
}

// CodeGenerator produces the numeric codes handed out to users.
type CodeGenerator interface {
	SignupCode() string
	RecoveryCode() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHFLOW "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
