package authflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultRememberTTL is the session lifetime granted by remember-me logins.
var DefaultRememberTTL = 7 * 24 * time.Hour

// Service is the local auth backend. It runs the signup, verification,
// login, and recovery lifecycle directly against four injected stores.
type Service struct {
	credentials CredentialStore
	pending     PendingSignupStore
	recovery    RecoveryStore
	sessions    SessionStore
	lifecycle   *SignupStateMachine
	hasher      PasswordHasher
	codes       CodeGenerator
	now         func() time.Time
	logger      Logger

	rememberTTL time.Duration
	// Zero TTLs disable code expiry, matching the original demo behavior.
	// The HTTP server always configures both.
	verificationTTL time.Duration
	recoveryTTL     time.Duration
}

var _ Backend = (*Service)(nil)

// ServiceOption customizes Service construction.
type ServiceOption func(*Service)

// WithLogger overrides the default logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithHasher overrides the password digest primitive.
func WithHasher(hasher PasswordHasher) ServiceOption {
	return func(s *Service) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

// WithCodeGenerator overrides how verification and recovery codes are made.
func WithCodeGenerator(codes CodeGenerator) ServiceOption {
	return func(s *Service) {
		if codes != nil {
			s.codes = codes
		}
	}
}

// WithRememberTTL sets the remember-me session lifetime.
func WithRememberTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.rememberTTL = ttl
		}
	}
}

// WithVerificationCodeTTL enables strict expiry for signup codes.
func WithVerificationCodeTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.verificationTTL = ttl
	}
}

// WithRecoveryCodeTTL enables strict expiry for recovery codes.
func WithRecoveryCodeTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.recoveryTTL = ttl
	}
}

// NewService builds the local backend from its four stores.
func NewService(credentials CredentialStore, pending PendingSignupStore, recovery RecoveryStore, sessions SessionStore, opts ...ServiceOption) *Service {
	s := &Service{
		credentials: credentials,
		pending:     pending,
		recovery:    recovery,
		sessions:    sessions,
		hasher:      BcryptHasher{},
		codes:       randomCodes{},
		now:         time.Now,
		logger:      defLogger{},
		rememberTTL: DefaultRememberTTL,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.lifecycle = NewSignupStateMachine(credentials, pending, WithStateMachineLogger(s.logger))

	return s
}

// Lifecycle exposes the signup state machine, so UIs can resume an
// interrupted verification flow.
func (s *Service) Lifecycle() *SignupStateMachine {
	return s.lifecycle
}

// Signup stages a registration for the email and returns the verification
// code the user has to echo back. A repeated signup for the same email
// replaces the previous pending entry, password hash included: the latest
// attempt wins at verification time.
func (s *Service) Signup(ctx context.Context, email, password string) (*SignupReceipt, error) {
	if _, err := s.lifecycle.Guard(ctx, email, StatePendingVerification); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	entry := &PendingSignup{
		ID:           uuid.New(),
		Email:        email,
		Code:         s.codes.SignupCode(),
		PasswordHash: hash,
		CreatedAt:    now,
		ExpiresAt:    s.codeExpiry(now, s.verificationTTL),
	}

	if err := s.pending.Put(ctx, entry); err != nil {
		s.logger.Error("signup failed to store pending entry for %s: %v", email, err)
		return nil, err
	}

	return &SignupReceipt{Email: email, Code: entry.Code}, nil
}

// VerifySignup promotes a pending entry into a durable account when the code
// matches exactly, then starts a session for the new user (auto-login, no
// explicit expiry). A wrong code leaves the pending entry untouched.
func (s *Service) VerifySignup(ctx context.Context, email, code string) (*User, error) {
	entry, err := s.pending.Get(ctx, email)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if entry.ExpiresAt != nil && now.After(*entry.ExpiresAt) {
		return nil, ErrNoPendingSignup
	}

	if entry.Code != code {
		return nil, ErrNoPendingSignup
	}

	// An account may have appeared since the signup was staged; the pending
	// entry is dead weight either way.
	if _, err := s.credentials.FindByEmail(ctx, email); err == nil {
		if derr := s.pending.Delete(ctx, email); derr != nil {
			s.logger.Warn("verify failed to drop stale pending entry for %s: %v", email, derr)
		}
		return nil, ErrUserExists
	} else if !errors.Is(err, ErrEmailNotFound) {
		return nil, err
	}

	user := &User{
		ID:           newUserID(email),
		Email:        email,
		PasswordHash: entry.PasswordHash,
		Verified:     true,
		CreatedAt:    &now,
	}

	created, err := s.credentials.Insert(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.pending.Delete(ctx, email); err != nil {
		s.logger.Warn("verify failed to delete pending entry for %s: %v", email, err)
	}

	session := &Session{
		UserID:    created.ID.String(),
		Email:     created.Email,
		CreatedAt: now,
	}
	if err := s.sessions.Put(ctx, session); err != nil {
		s.logger.Error("verify failed to persist session for %s: %v", email, err)
		return nil, err
	}

	return created, nil
}

// ResendSignupCode rotates the verification code of a pending entry in
// place. The staged password hash does not change.
func (s *Service) ResendSignupCode(ctx context.Context, email string) (string, error) {
	entry, err := s.pending.Get(ctx, email)
	if err != nil {
		return "", err
	}

	now := s.now()
	entry.Code = s.codes.SignupCode()
	entry.CreatedAt = now
	entry.ExpiresAt = s.codeExpiry(now, s.verificationTTL)

	if err := s.pending.Put(ctx, entry); err != nil {
		s.logger.Error("resend failed to store pending entry for %s: %v", email, err)
		return "", err
	}

	return entry.Code, nil
}

// Login verifies the password and replaces the stored session. Unknown email
// and wrong password fail identically so callers cannot enumerate accounts.
// remember extends the session to the configured remember TTL; otherwise the
// session has no expiry and lives until cleared.
func (s *Service) Login(ctx context.Context, email, password string, remember bool) (*User, error) {
	user, err := s.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrEmailNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := s.hasher.Compare(password, user.PasswordHash); err != nil {
		if errors.Is(err, ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.now()
	session := &Session{
		UserID:    user.ID.String(),
		Email:     user.Email,
		CreatedAt: now,
	}
	if remember {
		expires := now.Add(s.rememberTTL)
		session.ExpiresAt = &expires
	}

	if err := s.sessions.Put(ctx, session); err != nil {
		s.logger.Error("login failed to persist session for %s: %v", email, err)
		return nil, err
	}

	return user, nil
}

// RequestRecovery stages a password-reset code for a registered email,
// overwriting any outstanding one.
func (s *Service) RequestRecovery(ctx context.Context, email string) (string, error) {
	if _, err := s.credentials.FindByEmail(ctx, email); err != nil {
		return "", err
	}

	now := s.now()
	request := &RecoveryRequest{
		ID:        uuid.New(),
		Email:     email,
		Code:      s.codes.RecoveryCode(),
		CreatedAt: now,
		ExpiresAt: s.codeExpiry(now, s.recoveryTTL),
	}

	if err := s.recovery.Put(ctx, request); err != nil {
		s.logger.Error("recovery failed to store request for %s: %v", email, err)
		return "", err
	}

	return request.Code, nil
}

// ResetPassword consumes a recovery code and replaces the account's password
// hash. It does not log the user in.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	request, err := s.recovery.Get(ctx, email)
	if err != nil {
		return err
	}

	now := s.now()
	if request.ExpiresAt != nil && now.After(*request.ExpiresAt) {
		return ErrInvalidRecoveryCode
	}

	if request.Code != code {
		return ErrInvalidRecoveryCode
	}

	if _, err := s.credentials.FindByEmail(ctx, email); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.credentials.UpdatePasswordHash(ctx, email, hash); err != nil {
		s.logger.Error("reset failed to update password hash for %s: %v", email, err)
		return err
	}

	if err := s.recovery.Delete(ctx, email); err != nil {
		s.logger.Warn("reset failed to delete recovery request for %s: %v", email, err)
	}

	return nil
}

// CurrentSession reads the persisted session. Reading a session past its
// expiry deletes it, so later reads keep returning nil.
func (s *Service) CurrentSession(ctx context.Context) (*Session, error) {
	session, err := s.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	if session.ExpiredAt(s.now()) {
		if err := s.sessions.Delete(ctx); err != nil {
			s.logger.Warn("failed to clear expired session: %v", err)
		}
		return nil, nil
	}

	return session, nil
}

// Logout drops the persisted session. Idempotent.
func (s *Service) Logout(ctx context.Context) error {
	return s.sessions.Delete(ctx)
}

func (s *Service) codeExpiry(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	expires := now.Add(ttl)
	return &expires
}
