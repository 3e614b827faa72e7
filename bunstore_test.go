package authflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	authflow "github.com/taskflowhq/go-authflow"
)

func TestBunCredentialStore(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := authflow.NewBunCredentialStore(authflow.NewUsersRepository(db))

	_, err := store.FindByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, authflow.ErrEmailNotFound)

	created, err := store.Insert(ctx, &authflow.User{
		Email:        "alice@example.com",
		PasswordHash: "digest-1",
		Verified:     true,
	})
	require.NoError(t, err)
	require.NotEqual(t, "", created.ID.String())

	_, err = store.Insert(ctx, &authflow.User{
		Email:        "alice@example.com",
		PasswordHash: "digest-x",
	})
	require.ErrorIs(t, err, authflow.ErrUserExists)

	found, err := store.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "digest-1", found.PasswordHash)

	require.NoError(t, store.UpdatePasswordHash(ctx, "alice@example.com", "digest-2"))

	found, err = store.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "digest-2", found.PasswordHash)

	err = store.UpdatePasswordHash(ctx, "nobody@example.com", "digest-3")
	require.ErrorIs(t, err, authflow.ErrEmailNotFound)
}

func TestBunPendingSignupStoreUpsert(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := authflow.NewBunPendingSignupStore(db)

	_, err := store.Get(ctx, "bob@example.com")
	require.ErrorIs(t, err, authflow.ErrNoPendingSignup)

	now := time.Now().UTC()
	require.NoError(t, store.Put(ctx, &authflow.PendingSignup{
		Email:        "bob@example.com",
		Code:         "11111",
		PasswordHash: "digest-1",
		CreatedAt:    now,
	}))

	first, err := store.Get(ctx, "bob@example.com")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, first.ID)

	// A second Put for the same email replaces code and hash in place.
	require.NoError(t, store.Put(ctx, &authflow.PendingSignup{
		Email:        "bob@example.com",
		Code:         "22222",
		PasswordHash: "digest-2",
		CreatedAt:    now,
	}))

	found, err := store.Get(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, "22222", found.Code)
	assert.Equal(t, "digest-2", found.PasswordHash)

	require.NoError(t, store.Delete(ctx, "bob@example.com"))
	_, err = store.Get(ctx, "bob@example.com")
	require.ErrorIs(t, err, authflow.ErrNoPendingSignup)
}

func TestBunRecoveryStoreUpsert(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := authflow.NewBunRecoveryStore(db)

	_, err := store.Get(ctx, "carol@example.com")
	require.ErrorIs(t, err, authflow.ErrInvalidRecoveryCode)

	now := time.Now().UTC()
	require.NoError(t, store.Put(ctx, &authflow.RecoveryRequest{
		Email:     "carol@example.com",
		Code:      "111111",
		CreatedAt: now,
	}))

	first, err := store.Get(ctx, "carol@example.com")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, first.ID)

	require.NoError(t, store.Put(ctx, &authflow.RecoveryRequest{
		Email:     "carol@example.com",
		Code:      "999999",
		CreatedAt: now,
	}))

	found, err := store.Get(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, "999999", found.Code)

	require.NoError(t, store.Delete(ctx, "carol@example.com"))
	_, err = store.Get(ctx, "carol@example.com")
	require.ErrorIs(t, err, authflow.ErrInvalidRecoveryCode)
}

// The full lifecycle also runs with accounts in SQL and the session in a
// local store.
func TestServiceOverBunStores(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	svc := authflow.NewBunService(db,
		authflow.NewKVSessionStore(authflow.NewMemoryStorage()),
		authflow.WithHasher(authflow.SHA256Hasher{}),
		authflow.WithCodeGenerator(&seqCodes{
			signup:   []string{"54321"},
			recovery: []string{"666666"},
		}),
	)

	receipt, err := svc.Signup(ctx, "erin@example.com", "old-pass")
	require.NoError(t, err)

	user, err := svc.VerifySignup(ctx, "erin@example.com", receipt.Code)
	require.NoError(t, err)
	assert.True(t, user.Verified)

	_, err = svc.Signup(ctx, "erin@example.com", "whatever")
	require.ErrorIs(t, err, authflow.ErrUserExists)

	_, err = svc.Login(ctx, "erin@example.com", "wrong", false)
	require.ErrorIs(t, err, authflow.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "erin@example.com", "old-pass", true)
	require.NoError(t, err)

	session, err := svc.CurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "erin@example.com", session.Email)

	code, err := svc.RequestRecovery(ctx, "erin@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.ResetPassword(ctx, "erin@example.com", code, "new-pass"))

	_, err = svc.Login(ctx, "erin@example.com", "old-pass", false)
	require.ErrorIs(t, err, authflow.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "erin@example.com", "new-pass", false)
	require.NoError(t, err)
}
