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

func newTokenFixture(t *testing.T) (*authflow.TokenService, authflow.Sessions, *testClock) {
	t.Helper()

	db := newTestDB(t)
	sessions := authflow.NewSessionsRepository(db)
	clock := &testClock{now: time.Now()}

	ts := authflow.NewTokenService(
		[]byte("test-signing-key"),
		"authd-test",
		nil,
		sessions,
		authflow.WithTokenClock(clock.Now),
	)

	return ts, sessions, clock
}

func testUser() *authflow.User {
	return &authflow.User{
		ID:       uuid.New(),
		Email:    "alice@example.com",
		Verified: true,
	}
}

func TestTokenIssueAndValidate(t *testing.T) {
	ctx := context.Background()
	ts, _, _ := newTokenFixture(t)
	user := testUser()

	token, record, err := ts.Issue(ctx, user, time.Hour, authflow.SessionMetadata{
		IPAddress: "127.0.0.1",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, user.ID, record.UserID)
	assert.True(t, record.IsActive)
	assert.Equal(t, "127.0.0.1", record.IPAddress)

	found, claims, err := ts.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, record.ID, found.ID)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, user.Email, claims.Email)
}

func TestTokenValidateRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	ts, _, _ := newTokenFixture(t)
	user := testUser()

	token, _, err := ts.Issue(ctx, user, time.Hour, authflow.SessionMetadata{})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not a jwt", "definitely-not-a-token"},
		{"tampered signature", token + "x"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ts.Validate(ctx, tc.token)
			require.ErrorIs(t, err, authflow.ErrSessionInvalid)
		})
	}
}

func TestTokenSessionExpiry(t *testing.T) {
	ctx := context.Background()
	ts, _, clock := newTokenFixture(t)

	token, _, err := ts.Issue(ctx, testUser(), time.Hour, authflow.SessionMetadata{})
	require.NoError(t, err)

	_, _, err = ts.Validate(ctx, token)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	_, _, err = ts.Validate(ctx, token)
	require.ErrorIs(t, err, authflow.ErrSessionInvalid)
}

func TestTokenRevoke(t *testing.T) {
	ctx := context.Background()
	ts, _, _ := newTokenFixture(t)

	token, _, err := ts.Issue(ctx, testUser(), time.Hour, authflow.SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, ts.Revoke(ctx, token))

	_, _, err = ts.Validate(ctx, token)
	require.ErrorIs(t, err, authflow.ErrSessionInvalid)

	t.Run("garbage token", func(t *testing.T) {
		err := ts.Revoke(ctx, "garbage")
		require.ErrorIs(t, err, authflow.ErrSessionInvalid)
	})
}

func TestTokenRevokeAll(t *testing.T) {
	ctx := context.Background()
	ts, _, _ := newTokenFixture(t)
	user := testUser()
	other := &authflow.User{ID: uuid.New(), Email: "bob@example.com", Verified: true}

	first, _, err := ts.Issue(ctx, user, time.Hour, authflow.SessionMetadata{})
	require.NoError(t, err)
	second, _, err := ts.Issue(ctx, user, time.Hour, authflow.SessionMetadata{})
	require.NoError(t, err)
	bystander, _, err := ts.Issue(ctx, other, time.Hour, authflow.SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, ts.RevokeAll(ctx, user.ID))

	_, _, err = ts.Validate(ctx, first)
	require.ErrorIs(t, err, authflow.ErrSessionInvalid)
	_, _, err = ts.Validate(ctx, second)
	require.ErrorIs(t, err, authflow.ErrSessionInvalid)

	// Other accounts keep their sessions.
	_, _, err = ts.Validate(ctx, bystander)
	require.NoError(t, err)
}
