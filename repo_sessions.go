package authflow

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Sessions is the server-side bearer session repository.
type Sessions interface {
	repository.Repository[*SessionRecord]

	// FindActive returns the record only when it is active and unexpired.
	FindActive(ctx context.Context, id uuid.UUID, now time.Time) (*SessionRecord, error)
	// Deactivate flips IsActive off. Unknown ids are not an error; logout
	// stays idempotent.
	Deactivate(ctx context.Context, id uuid.UUID) error
	// DeactivateForUser revokes every session of the user, the blast radius
	// of a password reset.
	DeactivateForUser(ctx context.Context, userID uuid.UUID) error
}

type sessions struct {
	repository.Repository[*SessionRecord]
	db *bun.DB
}

var _ Sessions = (*sessions)(nil)

func NewSessionsRepository(db *bun.DB) Sessions {
	repo := repository.NewRepository[*SessionRecord](db, repository.ModelHandlers[*SessionRecord]{
		NewRecord: func() *SessionRecord { return &SessionRecord{} },
		GetID: func(r *SessionRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *SessionRecord, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
	})

	return &sessions{
		Repository: repo,
		db:         db,
	}
}

func (s *sessions) FindActive(ctx context.Context, id uuid.UUID, now time.Time) (*SessionRecord, error) {
	record := &SessionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.is_active = ?", true).
		Where("?TableAlias.expires_at > ?", now).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"session_id": id.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (s *sessions) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.NewUpdate().
		Model((*SessionRecord)(nil)).
		Set("is_active = ?", false).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *sessions) DeactivateForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.NewUpdate().
		Model((*SessionRecord)(nil)).
		Set("is_active = ?", false).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}
