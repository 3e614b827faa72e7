package authflow

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeUserExists marks conflicts with an already registered email.
	TextCodeUserExists = "USER_EXISTS"
	// TextCodeInvalidCredentials covers both unknown email and wrong password.
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	// TextCodeInvalidSignupCode covers missing, mismatched, and expired
	// verification codes.
	TextCodeInvalidSignupCode = "INVALID_OR_EXPIRED_CODE"
	// TextCodeEmailNotFound marks recovery requests for unregistered emails.
	TextCodeEmailNotFound = "EMAIL_NOT_FOUND"
	// TextCodeInvalidRecoveryCode covers missing, mismatched, and expired
	// recovery codes.
	TextCodeInvalidRecoveryCode = "INVALID_RECOVERY_CODE"
	// TextCodeSessionInvalid marks bearer tokens that no longer map to an
	// active session.
	TextCodeSessionInvalid = "SESSION_INVALID"
	// TextCodeNotVerified marks logins against accounts that never finished
	// email verification.
	TextCodeNotVerified = "ACCOUNT_NOT_VERIFIED"
)

// ErrUserExists is returned when a signup targets an email that already has
// a verified account.
var ErrUserExists = goerrors.New("user already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeUserExists).
	WithCode(goerrors.CodeConflict)

// ErrInvalidCredentials is the single login failure. Unknown email and wrong
// password are deliberately indistinguishable.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoPendingSignup is returned when verification or code resend finds no
// pending signup for the email, or the code does not match.
var ErrNoPendingSignup = goerrors.New("invalid or expired verification code", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidSignupCode).
	WithCode(goerrors.CodeBadRequest)

// ErrEmailNotFound is returned when password recovery targets an email with
// no verified account.
var ErrEmailNotFound = goerrors.New("email not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeEmailNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidRecoveryCode is returned when a password reset presents a code
// that is missing, mismatched, or past its lifetime.
var ErrInvalidRecoveryCode = goerrors.New("invalid or expired recovery code", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidRecoveryCode).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountNotVerified is returned by the server when a login hits an
// account that still has a pending signup.
var ErrAccountNotVerified = goerrors.New("account is not verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotVerified).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionInvalid is returned by the server when a bearer token fails
// signature, lookup, expiry, or active checks.
var ErrSessionInvalid = goerrors.New("session is not valid", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyPassword rejects empty cleartext before hashing.
var ErrNoEmptyPassword = errors.New("password must not be empty")

// ErrMismatchedHashAndPassword is the hasher-level comparison failure.
var ErrMismatchedHashAndPassword = errors.New("hash and password mismatch")

// ErrKeyNotFound is returned by Storage implementations for absent keys.
var ErrKeyNotFound = errors.New("storage key not found")

// ErrNoToken is returned by TokenStore implementations when no bearer token
// has been persisted.
var ErrNoToken = errors.New("no session token stored")

// IsAuthFailure reports whether err is one of the business-logic failures of
// the lifecycle, as opposed to a storage or transport fault.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrUserExists) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrNoPendingSignup) ||
		errors.Is(err, ErrEmailNotFound) ||
		errors.Is(err, ErrInvalidRecoveryCode) ||
		errors.Is(err, ErrSessionInvalid)
}
