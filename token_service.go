package authflow

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SessionClaims are the JWT claims carried by a bearer token. The token ID
// is the primary key of the backing SessionRecord, which is what makes
// revocation possible.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// SessionMetadata is recorded alongside each issued session.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// TokenService issues and validates bearer tokens backed by session rows.
// A token is only valid while its row is active and unexpired, so logout
// and password resets can revoke tokens that are still within their JWT
// lifetime.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	sessions   Sessions
	now        func() time.Time
	logger     Logger
}

type TokenServiceOption func(*TokenService)

func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

func WithTokenClock(clock func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if clock != nil {
			ts.now = clock
		}
	}
}

func NewTokenService(signingKey []byte, issuer string, audience jwt.ClaimStrings, sessions Sessions, opts ...TokenServiceOption) *TokenService {
	ts := &TokenService{
		signingKey: signingKey,
		issuer:     issuer,
		audience:   audience,
		sessions:   sessions,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		opt(ts)
	}

	return ts
}

// Issue creates a session row for the user and returns a signed token whose
// ID points at it.
func (ts *TokenService) Issue(ctx context.Context, user *User, ttl time.Duration, meta SessionMetadata) (string, *SessionRecord, error) {
	now := ts.now()

	record := &SessionRecord{
		ID:        uuid.New(),
		UserID:    user.ID,
		IsActive:  true,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	record, err := ts.sessions.Create(ctx, record)
	if err != nil {
		return "", nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist session")
	}

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        record.ID.String(),
			Issuer:    ts.issuer,
			Subject:   user.ID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(record.ExpiresAt),
		},
		Email: user.Email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return signed, record, nil
}

// Validate parses the token and checks that its session row is still active
// and unexpired. Every failure collapses into ErrSessionInvalid so callers
// cannot tell a revoked session from a forged token.
func (ts *TokenService) Validate(ctx context.Context, tokenString string) (*SessionRecord, *SessionClaims, error) {
	claims, err := ts.parseClaims(tokenString)
	if err != nil {
		ts.logger.Debug("token validate rejected token: %v", err)
		return nil, nil, ErrSessionInvalid
	}

	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, nil, ErrSessionInvalid
	}

	record, err := ts.sessions.FindActive(ctx, sessionID, ts.now())
	if err != nil {
		return nil, nil, ErrSessionInvalid
	}

	return record, claims, nil
}

// Revoke deactivates the session behind the token. Expired tokens still
// revoke their row so a late logout leaves nothing active behind.
func (ts *TokenService) Revoke(ctx context.Context, tokenString string) error {
	claims, err := ts.parseClaims(tokenString, jwt.WithoutClaimsValidation())
	if err != nil {
		return ErrSessionInvalid
	}

	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return ErrSessionInvalid
	}

	return ts.sessions.Deactivate(ctx, sessionID)
}

// RevokeAll deactivates every session of the user. Used after a password
// reset.
func (ts *TokenService) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	return ts.sessions.DeactivateForUser(ctx, userID)
}

func (ts *TokenService) parseClaims(tokenString string, extra ...jwt.ParserOption) (*SessionClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2+len(extra))
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}
	parserOptions = append(parserOptions, extra...)

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("unable to decode session claims")
	}

	return claims, nil
}
