package authflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// remoteResponse is the server envelope. Fields are sparse, each action
// fills its own subset.
type remoteResponse struct {
	Success          bool        `json:"success"`
	Message          string      `json:"message"`
	Error            string      `json:"error"`
	Email            string      `json:"email"`
	VerificationCode string      `json:"verification_code"`
	RecoveryCode     string      `json:"recovery_code"`
	SessionToken     string      `json:"session_token"`
	ExpiresAt        *time.Time  `json:"expires_at"`
	User             *remoteUser `json:"user"`
}

type remoteUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// RemoteClient is the Backend that talks to the hosted auth endpoint
// instead of local stores. It keeps the bearer token in a TokenStore so a
// session survives process restarts, and maps business rejections onto the
// same sentinels the local Service returns. Session checks never fail hard;
// see CurrentSession.
type RemoteClient struct {
	endpoint string
	http     *http.Client
	tokens   TokenStore
	logger   Logger
}

var _ Backend = (*RemoteClient)(nil)

type RemoteClientOption func(*RemoteClient)

func WithRemoteHTTPClient(client *http.Client) RemoteClientOption {
	return func(rc *RemoteClient) {
		if client != nil {
			rc.http = client
		}
	}
}

func WithRemoteLogger(logger Logger) RemoteClientOption {
	return func(rc *RemoteClient) {
		if logger != nil {
			rc.logger = logger
		}
	}
}

// NewRemoteClient points at the auth endpoint, e.g.
// https://api.example.com/auth.
func NewRemoteClient(endpoint string, tokens TokenStore, opts ...RemoteClientOption) *RemoteClient {
	rc := &RemoteClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		tokens:   tokens,
		logger:   defLogger{},
	}

	for _, opt := range opts {
		opt(rc)
	}

	return rc
}

func (rc *RemoteClient) Signup(ctx context.Context, email, password string) (*SignupReceipt, error) {
	res, status, err := rc.post(ctx, map[string]any{
		"action":   ActionSignup,
		"email":    email,
		"password": password,
	}, "")
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, rc.businessError(status, res, nil)
	}

	return &SignupReceipt{
		Email: res.Email,
		Code:  res.VerificationCode,
	}, nil
}

func (rc *RemoteClient) VerifySignup(ctx context.Context, email, code string) (*User, error) {
	res, status, err := rc.post(ctx, map[string]any{
		"action": ActionVerify,
		"email":  email,
		"code":   code,
	}, "")
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, rc.businessError(status, res, ErrNoPendingSignup)
	}

	if res.SessionToken != "" {
		if err := rc.tokens.Set(ctx, res.SessionToken); err != nil {
			rc.logger.Warn("failed to persist session token: %v", err)
		}
	}

	return remoteUserToUser(res.User), nil
}

func (rc *RemoteClient) ResendSignupCode(ctx context.Context, email string) (string, error) {
	res, status, err := rc.post(ctx, map[string]any{
		"action": ActionResendCode,
		"email":  email,
	}, "")
	if err != nil {
		return "", err
	}

	if status != http.StatusOK {
		return "", rc.businessError(status, res, ErrNoPendingSignup)
	}

	return res.VerificationCode, nil
}

func (rc *RemoteClient) Login(ctx context.Context, email, password string, remember bool) (*User, error) {
	res, status, err := rc.post(ctx, map[string]any{
		"action":   ActionLogin,
		"email":    email,
		"password": password,
		"remember": remember,
	}, "")
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, rc.businessError(status, res, ErrInvalidCredentials)
	}

	if res.SessionToken != "" {
		if err := rc.tokens.Set(ctx, res.SessionToken); err != nil {
			rc.logger.Warn("failed to persist session token: %v", err)
		}
	}

	return remoteUserToUser(res.User), nil
}

func (rc *RemoteClient) RequestRecovery(ctx context.Context, email string) (string, error) {
	res, status, err := rc.post(ctx, map[string]any{
		"action": ActionRecovery,
		"email":  email,
	}, "")
	if err != nil {
		return "", err
	}

	if status != http.StatusOK {
		return "", rc.businessError(status, res, ErrEmailNotFound)
	}

	return res.RecoveryCode, nil
}

func (rc *RemoteClient) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	res, status, err := rc.post(ctx, map[string]any{
		"action":       ActionResetPassword,
		"email":        email,
		"code":         code,
		"new_password": newPassword,
	}, "")
	if err != nil {
		return err
	}

	if status != http.StatusOK {
		return rc.businessError(status, res, ErrInvalidRecoveryCode)
	}

	// The server revoked every session for the account, the local token is
	// dead weight now.
	if err := rc.tokens.Clear(ctx); err != nil {
		rc.logger.Warn("failed to clear session token: %v", err)
	}

	return nil
}

// CurrentSession validates the stored token against the server. Any failure,
// whether a rejected token or an unreachable server, reads as no session and
// clears the stored token, which is what lets a client boot cleanly after a
// remote revocation.
func (rc *RemoteClient) CurrentSession(ctx context.Context) (*Session, error) {
	token, err := rc.tokens.Get(ctx)
	if err != nil {
		if errors.Is(err, ErrNoToken) {
			return nil, nil
		}
		return nil, err
	}

	res, status, err := rc.post(ctx, map[string]any{
		"action": ActionCheckSession,
	}, token)
	if err != nil || status != http.StatusOK {
		if err != nil {
			rc.logger.Debug("session check failed, clearing token: %v", err)
		} else {
			rc.logger.Debug("stored session rejected, clearing token")
		}
		if err := rc.tokens.Clear(ctx); err != nil {
			rc.logger.Warn("failed to clear session token: %v", err)
		}
		return nil, nil
	}

	session := &Session{
		ExpiresAt: res.ExpiresAt,
	}
	if res.User != nil {
		session.UserID = res.User.ID
		session.Email = res.User.Email
	}

	return session, nil
}

// Logout tells the server to drop the session and clears the local token
// either way.
func (rc *RemoteClient) Logout(ctx context.Context) error {
	token, err := rc.tokens.Get(ctx)
	if err != nil {
		if errors.Is(err, ErrNoToken) {
			return nil
		}
		return err
	}

	if _, _, err := rc.post(ctx, map[string]any{
		"action": ActionLogout,
	}, token); err != nil {
		rc.logger.Warn("logout request failed: %v", err)
	}

	return rc.tokens.Clear(ctx)
}

func (rc *RemoteClient) post(ctx context.Context, payload map[string]any, token string) (*remoteResponse, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := rc.http.Do(req)
	if err != nil {
		return nil, 0, goerrors.Wrap(err, goerrors.CategoryExternal, "auth request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to read response")
	}

	out := &remoteResponse{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, 0, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to decode response").
				WithMetadata(map[string]any{
					"status": resp.StatusCode,
				})
		}
	}

	return out, resp.StatusCode, nil
}

// businessError maps a non-200 envelope onto the sentinel the local
// Service would return for the same failure, keyed by status code.
func (rc *RemoteClient) businessError(status int, res *remoteResponse, fallback *goerrors.Error) error {
	switch status {
	case http.StatusConflict:
		return ErrUserExists
	case http.StatusUnauthorized:
		if fallback == ErrInvalidCredentials {
			return ErrInvalidCredentials
		}
		return ErrSessionInvalid
	case http.StatusNotFound:
		return ErrEmailNotFound
	case http.StatusBadRequest:
		if fallback != nil {
			return fallback
		}
	}

	message := res.Error
	if message == "" {
		message = fmt.Sprintf("auth request failed with status %d", status)
	}

	return goerrors.New(message, goerrors.CategoryExternal).WithCode(status)
}

func remoteUserToUser(ru *remoteUser) *User {
	if ru == nil {
		return nil
	}

	user := &User{
		Email:    ru.Email,
		Verified: true,
	}

	if id, err := uuid.Parse(ru.ID); err == nil {
		user.ID = id
	}

	return user
}
