package authflow_test

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	authflow "github.com/taskflowhq/go-authflow"
)

func newLifecycleFixture(t *testing.T) (*authflow.SignupStateMachine, authflow.CredentialStore, authflow.PendingSignupStore) {
	t.Helper()

	storage := authflow.NewMemoryStorage()
	credentials := authflow.NewKVCredentialStore(storage)
	pending := authflow.NewKVPendingSignupStore(storage)

	return authflow.NewSignupStateMachine(credentials, pending), credentials, pending
}

func TestSignupStateMachineCurrent(t *testing.T) {
	ctx := context.Background()
	sm, credentials, pending := newLifecycleFixture(t)

	state, err := sm.Current(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, authflow.StateNoAccount, state)

	require.NoError(t, pending.Put(ctx, &authflow.PendingSignup{
		ID:        uuid.New(),
		Email:     "new@example.com",
		Code:      "12345",
		CreatedAt: time.Now(),
	}))

	state, err = sm.Current(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, authflow.StatePendingVerification, state)

	_, err = credentials.Insert(ctx, &authflow.User{
		ID:       uuid.New(),
		Email:    "new@example.com",
		Verified: true,
	})
	require.NoError(t, err)

	// A durable account outranks a leftover pending entry.
	state, err = sm.Current(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, authflow.StateVerified, state)
}

func TestSignupStateMachineTransitions(t *testing.T) {
	sm, _, _ := newLifecycleFixture(t)

	tests := []struct {
		from    authflow.SignupState
		to      authflow.SignupState
		allowed bool
	}{
		{authflow.StateNoAccount, authflow.StatePendingVerification, true},
		{authflow.StateNoAccount, authflow.StateVerified, false},
		{authflow.StateNoAccount, authflow.StateNoAccount, false},
		{authflow.StatePendingVerification, authflow.StatePendingVerification, true},
		{authflow.StatePendingVerification, authflow.StateVerified, true},
		{authflow.StatePendingVerification, authflow.StateNoAccount, false},
		{authflow.StateVerified, authflow.StatePendingVerification, false},
		{authflow.StateVerified, authflow.StateVerified, false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.allowed, sm.CanTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestSignupStateMachineGuard(t *testing.T) {
	ctx := context.Background()
	sm, credentials, pending := newLifecycleFixture(t)

	t.Run("fresh email can stage a signup", func(t *testing.T) {
		from, err := sm.Guard(ctx, "fresh@example.com", authflow.StatePendingVerification)
		require.NoError(t, err)
		assert.Equal(t, authflow.StateNoAccount, from)
	})

	t.Run("cannot verify without a pending signup", func(t *testing.T) {
		_, err := sm.Guard(ctx, "fresh@example.com", authflow.StateVerified)
		require.ErrorIs(t, err, authflow.ErrNoPendingSignup)
	})

	t.Run("verified account rejects any signup move", func(t *testing.T) {
		_, err := credentials.Insert(ctx, &authflow.User{
			ID:       uuid.New(),
			Email:    "done@example.com",
			Verified: true,
		})
		require.NoError(t, err)

		_, err = sm.Guard(ctx, "done@example.com", authflow.StatePendingVerification)
		require.ErrorIs(t, err, authflow.ErrUserExists)

		_, err = sm.Guard(ctx, "done@example.com", authflow.StateVerified)
		require.ErrorIs(t, err, authflow.ErrUserExists)
	})

	t.Run("pending signup can stage again or verify", func(t *testing.T) {
		require.NoError(t, pending.Put(ctx, &authflow.PendingSignup{
			ID:        uuid.New(),
			Email:     "mid@example.com",
			Code:      "12345",
			CreatedAt: time.Now(),
		}))

		from, err := sm.Guard(ctx, "mid@example.com", authflow.StatePendingVerification)
		require.NoError(t, err)
		assert.Equal(t, authflow.StatePendingVerification, from)

		from, err = sm.Guard(ctx, "mid@example.com", authflow.StateVerified)
		require.NoError(t, err)
		assert.Equal(t, authflow.StatePendingVerification, from)
	})

	t.Run("illegal moves carry metadata", func(t *testing.T) {
		_, err := sm.Guard(ctx, "fresh@example.com", authflow.StateNoAccount)
		require.Error(t, err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, "INVALID_SIGNUP_TRANSITION", richErr.TextCode)
		assert.Equal(t, "no_account", richErr.Metadata["from"])
	})
}
