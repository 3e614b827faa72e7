package authflow

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BunCredentialStore adapts the Users repository to the CredentialStore
// contract so the lifecycle service can run on SQL.
type BunCredentialStore struct {
	users Users
}

func NewBunCredentialStore(users Users) *BunCredentialStore {
	return &BunCredentialStore{users: users}
}

var _ CredentialStore = (*BunCredentialStore)(nil)

func (s *BunCredentialStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrEmailNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *BunCredentialStore) Insert(ctx context.Context, user *User) (*User, error) {
	if _, err := s.users.GetByEmail(ctx, user.Email); err == nil {
		return nil, ErrUserExists
	} else if !repository.IsRecordNotFound(err) {
		return nil, err
	}
	return s.users.Create(ctx, user)
}

func (s *BunCredentialStore) UpdatePasswordHash(ctx context.Context, email, passwordHash string) error {
	if err := s.users.ResetPassword(ctx, email, passwordHash); err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrEmailNotFound
		}
		return err
	}
	return nil
}

// BunPendingSignupStore keeps in-flight signups in the signup_verifications
// table, one live row per email.
type BunPendingSignupStore struct {
	repo repository.Repository[*PendingSignup]
	db   bun.IDB
}

func NewBunPendingSignupStore(db *bun.DB) *BunPendingSignupStore {
	return &BunPendingSignupStore{
		repo: NewPendingSignupsRepository(db),
		db:   db,
	}
}

var _ PendingSignupStore = (*BunPendingSignupStore)(nil)

func (s *BunPendingSignupStore) Get(ctx context.Context, email string) (*PendingSignup, error) {
	pending, err := s.repo.GetByIdentifier(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrNoPendingSignup
		}
		return nil, err
	}
	return pending, nil
}

func (s *BunPendingSignupStore) Put(ctx context.Context, pending *PendingSignup) error {
	if pending.ID == uuid.Nil {
		pending.ID = uuid.New()
	}
	_, err := s.db.NewInsert().
		Model(pending).
		On("CONFLICT (email) DO UPDATE").
		Set("verification_code = EXCLUDED.verification_code").
		Set("password_hash = EXCLUDED.password_hash").
		Set("created_at = EXCLUDED.created_at").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	return err
}

func (s *BunPendingSignupStore) Delete(ctx context.Context, email string) error {
	_, err := s.db.NewDelete().
		Model((*PendingSignup)(nil)).
		Where("email = ?", email).
		Exec(ctx)
	return err
}

// BunRecoveryStore keeps outstanding reset codes in the password_recovery
// table, one live row per email.
type BunRecoveryStore struct {
	repo repository.Repository[*RecoveryRequest]
	db   bun.IDB
}

func NewBunRecoveryStore(db *bun.DB) *BunRecoveryStore {
	return &BunRecoveryStore{
		repo: NewRecoveriesRepository(db),
		db:   db,
	}
}

var _ RecoveryStore = (*BunRecoveryStore)(nil)

func (s *BunRecoveryStore) Get(ctx context.Context, email string) (*RecoveryRequest, error) {
	request, err := s.repo.GetByIdentifier(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidRecoveryCode
		}
		return nil, err
	}
	return request, nil
}

func (s *BunRecoveryStore) Put(ctx context.Context, request *RecoveryRequest) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	_, err := s.db.NewInsert().
		Model(request).
		On("CONFLICT (email) DO UPDATE").
		Set("recovery_code = EXCLUDED.recovery_code").
		Set("created_at = EXCLUDED.created_at").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	return err
}

func (s *BunRecoveryStore) Delete(ctx context.Context, email string) error {
	_, err := s.db.NewDelete().
		Model((*RecoveryRequest)(nil)).
		Where("email = ?", email).
		Exec(ctx)
	return err
}

// NewBunService wires a Service on top of a bun database. Sessions stay in
// the caller supplied store, which keeps the single profile model of the
// demo variant even when accounts live in SQL.
func NewBunService(db *bun.DB, sessions SessionStore, opts ...ServiceOption) *Service {
	users := NewUsersRepository(db)
	return NewService(
		NewBunCredentialStore(users),
		NewBunPendingSignupStore(db),
		NewBunRecoveryStore(db),
		sessions,
		opts...,
	)
}
