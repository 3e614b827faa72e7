package authflow

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const (
	ActionLogin         = "login"
	ActionSignup        = "signup"
	ActionVerify        = "verify"
	ActionResendCode    = "resend_code"
	ActionRecovery      = "recovery"
	ActionResetPassword = "reset_password"
	ActionLogout        = "logout"
	ActionCheckSession  = "check_session"
)

// DefaultSessionTTL is the server session lifetime without remember me.
const DefaultSessionTTL = 24 * time.Hour

// authRequest is the single request envelope. Every operation posts to the
// same endpoint and selects itself through the action field.
type authRequest struct {
	Action      string `json:"action"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Remember    bool   `json:"remember"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

func (r authRequest) validateCredentials() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (r authRequest) validateSignup() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
	)
}

func (r authRequest) validateEmail() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (r authRequest) validateVerify() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required, is.Digit),
	)
}

func (r authRequest) validateReset() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required, is.Digit),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(6, 100)),
	)
}

// APIController serves the JSON surface consumed by the remote client. One
// POST endpoint, action-dispatched payloads, bearer tokens in the
// Authorization header.
type APIController struct {
	Path            string
	Logger          Logger
	repo            RepositoryManager
	pending         PendingSignupStore
	recovery        RecoveryStore
	tokens          *TokenService
	hasher          PasswordHasher
	codes           CodeGenerator
	now             func() time.Time
	rememberTTL     time.Duration
	sessionTTL      time.Duration
	verificationTTL time.Duration
	recoveryTTL     time.Duration
}

type APIControllerOption func(*APIController)

func WithAPIPath(path string) APIControllerOption {
	return func(a *APIController) {
		if path != "" {
			a.Path = path
		}
	}
}

func WithAPILogger(logger Logger) APIControllerOption {
	return func(a *APIController) {
		if logger != nil {
			a.Logger = logger
		}
	}
}

func WithAPIClock(clock func() time.Time) APIControllerOption {
	return func(a *APIController) {
		if clock != nil {
			a.now = clock
		}
	}
}

func WithAPIHasher(hasher PasswordHasher) APIControllerOption {
	return func(a *APIController) {
		if hasher != nil {
			a.hasher = hasher
		}
	}
}

func WithAPICodeGenerator(codes CodeGenerator) APIControllerOption {
	return func(a *APIController) {
		if codes != nil {
			a.codes = codes
		}
	}
}

func WithAPISessionTTLs(remember, session time.Duration) APIControllerOption {
	return func(a *APIController) {
		if remember > 0 {
			a.rememberTTL = remember
		}
		if session > 0 {
			a.sessionTTL = session
		}
	}
}

func WithAPICodeTTLs(verification, recovery time.Duration) APIControllerOption {
	return func(a *APIController) {
		if verification > 0 {
			a.verificationTTL = verification
		}
		if recovery > 0 {
			a.recoveryTTL = recovery
		}
	}
}

func NewAPIController(db *bun.DB, signingKey []byte, issuer string, audience jwt.ClaimStrings, opts ...APIControllerOption) *APIController {
	repo := NewRepositoryManager(db)
	repo.MustValidate()

	a := &APIController{
		Path:            "/auth",
		Logger:          defLogger{},
		repo:            repo,
		pending:         NewBunPendingSignupStore(db),
		recovery:        NewBunRecoveryStore(db),
		hasher:          BcryptHasher{},
		codes:           randomCodes{},
		now:             time.Now,
		rememberTTL:     DefaultRememberTTL,
		sessionTTL:      DefaultSessionTTL,
		verificationTTL: 15 * time.Minute,
		recoveryTTL:     15 * time.Minute,
	}

	for _, opt := range opts {
		opt(a)
	}

	a.tokens = NewTokenService(signingKey, issuer, audience, repo.Sessions(),
		WithTokenLogger(a.Logger),
		WithTokenClock(a.now),
	)

	return a
}

// Tokens exposes the controller token service so hosts can validate bearer
// tokens on their own routes.
func (a *APIController) Tokens() *TokenService {
	return a.tokens
}

func (a *APIController) RegisterRoutes(app *fiber.App) {
	app.Post(a.Path, a.Dispatch)
	app.Use(a.Path, func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{
			"error": "method not allowed",
		})
	})
}

// Dispatch routes the request to its action handler.
func (a *APIController) Dispatch(c *fiber.Ctx) error {
	req := authRequest{}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request payload",
		})
	}

	req.Email = strings.TrimSpace(req.Email)

	switch req.Action {
	case ActionLogin:
		return a.handleLogin(c, req)
	case ActionSignup:
		return a.handleSignup(c, req)
	case ActionVerify:
		return a.handleVerify(c, req)
	case ActionResendCode:
		return a.handleResendCode(c, req)
	case ActionRecovery:
		return a.handleRecovery(c, req)
	case ActionResetPassword:
		return a.handleResetPassword(c, req)
	case ActionLogout:
		return a.handleLogout(c)
	case ActionCheckSession:
		return a.handleCheckSession(c)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown action",
		})
	}
}

func (a *APIController) handleLogin(c *fiber.Ctx, req authRequest) error {
	if err := req.validateCredentials(); err != nil {
		return a.respondValidation(c, err)
	}

	user, err := a.repo.Users().GetByEmail(c.Context(), req.Email)
	if err != nil {
		a.Logger.Debug("login lookup failed for %s", req.Email)
		return a.respondError(c, ErrInvalidCredentials)
	}

	if !user.Verified {
		return a.respondError(c, ErrAccountNotVerified)
	}

	if err := a.hasher.Compare(req.Password, user.PasswordHash); err != nil {
		return a.respondError(c, ErrInvalidCredentials)
	}

	ttl := a.sessionTTL
	if req.Remember {
		ttl = a.rememberTTL
	}

	token, record, err := a.tokens.Issue(c.Context(), user, ttl, SessionMetadata{
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return a.respondError(c, err)
	}

	if err := a.repo.Users().TrackSuccessfulLogin(c.Context(), user); err != nil {
		a.Logger.Warn("failed to track login for %s: %v", user.Email, err)
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"user":          userPayload(user.ID.String(), user.Email),
		"session_token": token,
		"expires_at":    record.ExpiresAt,
	})
}

func (a *APIController) handleSignup(c *fiber.Ctx, req authRequest) error {
	if err := req.validateSignup(); err != nil {
		return a.respondValidation(c, err)
	}

	if _, err := a.repo.Users().GetByEmail(c.Context(), req.Email); err == nil {
		return a.respondError(c, ErrUserExists)
	}

	hash, err := a.hasher.Hash(req.Password)
	if err != nil {
		return a.respondError(c, err)
	}

	now := a.now()
	expiresAt := now.Add(a.verificationTTL)

	pending := &PendingSignup{
		Email:        req.Email,
		Code:         a.codes.SignupCode(),
		PasswordHash: hash,
		CreatedAt:    now,
		ExpiresAt:    &expiresAt,
	}

	if err := a.pending.Put(c.Context(), pending); err != nil {
		return a.respondError(c, err)
	}

	// The code travels in the response instead of an email. Demo behavior,
	// matched by the client which renders it to the user.
	return c.JSON(fiber.Map{
		"success":           true,
		"message":           "verification code sent",
		"email":             pending.Email,
		"verification_code": pending.Code,
		"expires_at":        expiresAt,
	})
}

func (a *APIController) handleVerify(c *fiber.Ctx, req authRequest) error {
	if err := req.validateVerify(); err != nil {
		return a.respondValidation(c, err)
	}

	pending, err := a.pending.Get(c.Context(), req.Email)
	if err != nil {
		return a.respondError(c, ErrNoPendingSignup)
	}

	if pending.Code != req.Code || a.codeExpired(pending.ExpiresAt) {
		return a.respondError(c, ErrNoPendingSignup)
	}

	user, err := a.repo.Users().Create(c.Context(), &User{
		ID:           newUserID(pending.Email),
		Email:        pending.Email,
		PasswordHash: pending.PasswordHash,
		Verified:     true,
	})
	if err != nil {
		return a.respondError(c, err)
	}

	if err := a.pending.Delete(c.Context(), pending.Email); err != nil {
		a.Logger.Warn("failed to clear pending signup for %s: %v", pending.Email, err)
	}

	token, record, err := a.tokens.Issue(c.Context(), user, a.rememberTTL, SessionMetadata{
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return a.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"message":       "registration complete",
		"user":          userPayload(user.ID.String(), user.Email),
		"session_token": token,
		"expires_at":    record.ExpiresAt,
	})
}

func (a *APIController) handleResendCode(c *fiber.Ctx, req authRequest) error {
	if err := req.validateEmail(); err != nil {
		return a.respondValidation(c, err)
	}

	pending, err := a.pending.Get(c.Context(), req.Email)
	if err != nil {
		return a.respondError(c, ErrNoPendingSignup)
	}

	if a.codeExpired(pending.ExpiresAt) {
		return a.respondError(c, ErrNoPendingSignup)
	}

	now := a.now()
	expiresAt := now.Add(a.verificationTTL)

	pending.Code = a.codes.SignupCode()
	pending.CreatedAt = now
	pending.ExpiresAt = &expiresAt

	if err := a.pending.Put(c.Context(), pending); err != nil {
		return a.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":           true,
		"message":           "verification code sent",
		"verification_code": pending.Code,
		"expires_at":        expiresAt,
	})
}

func (a *APIController) handleRecovery(c *fiber.Ctx, req authRequest) error {
	if err := req.validateEmail(); err != nil {
		return a.respondValidation(c, err)
	}

	user, err := a.repo.Users().GetByEmail(c.Context(), req.Email)
	if err != nil || !user.Verified {
		return a.respondError(c, ErrEmailNotFound)
	}

	now := a.now()
	expiresAt := now.Add(a.recoveryTTL)

	request := &RecoveryRequest{
		Email:     user.Email,
		Code:      a.codes.RecoveryCode(),
		CreatedAt: now,
		ExpiresAt: &expiresAt,
	}

	if err := a.recovery.Put(c.Context(), request); err != nil {
		return a.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"message":       "recovery code sent",
		"recovery_code": request.Code,
		"expires_at":    expiresAt,
	})
}

func (a *APIController) handleResetPassword(c *fiber.Ctx, req authRequest) error {
	if err := req.validateReset(); err != nil {
		return a.respondValidation(c, err)
	}

	request, err := a.recovery.Get(c.Context(), req.Email)
	if err != nil {
		return a.respondError(c, ErrInvalidRecoveryCode)
	}

	if request.Code != req.Code || a.codeExpired(request.ExpiresAt) {
		return a.respondError(c, ErrInvalidRecoveryCode)
	}

	user, err := a.repo.Users().GetByEmail(c.Context(), req.Email)
	if err != nil {
		return a.respondError(c, ErrEmailNotFound)
	}

	hash, err := a.hasher.Hash(req.NewPassword)
	if err != nil {
		return a.respondError(c, err)
	}

	if err := a.repo.Users().ResetPassword(c.Context(), user.Email, hash); err != nil {
		return a.respondError(c, err)
	}

	if err := a.recovery.Delete(c.Context(), user.Email); err != nil {
		a.Logger.Warn("failed to clear recovery code for %s: %v", user.Email, err)
	}

	// Old sessions die with the old password.
	if err := a.tokens.RevokeAll(c.Context(), user.ID); err != nil {
		a.Logger.Warn("failed to revoke sessions for %s: %v", user.Email, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "password changed",
	})
}

func (a *APIController) handleLogout(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing session token",
		})
	}

	// Logout never fails from the caller's point of view. An unknown or
	// mangled token has nothing left to deactivate.
	if err := a.tokens.Revoke(c.Context(), token); err != nil {
		a.Logger.Debug("logout revoke skipped: %v", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "logged out",
	})
}

func (a *APIController) handleCheckSession(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return a.respondError(c, ErrSessionInvalid)
	}

	record, claims, err := a.tokens.Validate(c.Context(), token)
	if err != nil {
		return a.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"user":       userPayload(record.UserID.String(), claims.Email),
		"expires_at": record.ExpiresAt,
	})
}

func (a *APIController) codeExpired(expiresAt *time.Time) bool {
	return expiresAt == nil || a.now().After(*expiresAt)
}

func (a *APIController) respondValidation(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func (a *APIController) respondError(c *fiber.Ctx, err error) error {
	var gerr *goerrors.Error
	if goerrors.As(err, &gerr) {
		status := gerr.Code
		if status < fiber.StatusBadRequest {
			status = fiber.StatusInternalServerError
		}
		return c.Status(status).JSON(fiber.Map{
			"error": gerr.Message,
		})
	}

	a.Logger.Error("auth handler failed: %v", err)

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal server error",
	})
}

func userPayload(id, email string) fiber.Map {
	return fiber.Map{
		"id":    id,
		"email": email,
	}
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
