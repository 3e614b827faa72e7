package authflow

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	PendingSignups() repository.Repository[*PendingSignup]
	Recoveries() repository.Repository[*RecoveryRequest]
	Sessions() Sessions
}

func NewPendingSignupsRepository(db *bun.DB) repository.Repository[*PendingSignup] {
	handlers := repository.ModelHandlers[*PendingSignup]{
		NewRecord: func() *PendingSignup {
			return &PendingSignup{}
		},
		GetID: func(record *PendingSignup) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *PendingSignup, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
	}
	return repository.NewRepository(db, handlers)
}

func NewRecoveriesRepository(db *bun.DB) repository.Repository[*RecoveryRequest] {
	handlers := repository.ModelHandlers[*RecoveryRequest]{
		NewRecord: func() *RecoveryRequest {
			return &RecoveryRequest{}
		},
		GetID: func(record *RecoveryRequest) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *RecoveryRequest, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
	}
	return repository.NewRepository(db, handlers)
}

type mngr struct {
	db             *bun.DB
	users          Users
	pendingSignups repository.Repository[*PendingSignup]
	recoveries     repository.Repository[*RecoveryRequest]
	sessions       Sessions
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:             db,
		users:          NewUsersRepository(db),
		pendingSignups: NewPendingSignupsRepository(db),
		recoveries:     NewRecoveriesRepository(db),
		sessions:       NewSessionsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.pendingSignups == nil {
		return errors.New("repository pendingSignups should be initialized")
	}

	if m.recoveries == nil {
		return errors.New("repository recoveries should be initialized")
	}

	if m.sessions == nil {
		return errors.New("repository sessions should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) PendingSignups() repository.Repository[*PendingSignup] {
	return m.pendingSignups
}

func (m mngr) Recoveries() repository.Repository[*RecoveryRequest] {
	return m.recoveries
}

func (m mngr) Sessions() Sessions {
	return m.sessions
}
