package authflow

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// SignupState is where an email sits in the registration lifecycle.
type SignupState string

const (
	// StateNoAccount means the email has neither an account nor a pending
	// signup.
	StateNoAccount SignupState = "no_account"
	// StatePendingVerification means a signup is awaiting its email code.
	StatePendingVerification SignupState = "pending_verification"
	// StateVerified means a durable account exists. Terminal for the signup
	// flow; login/logout runs on top of it.
	StateVerified SignupState = "verified"
)

// ErrInvalidSignupTransition is returned when a requested lifecycle move is
// not in the transition graph.
var ErrInvalidSignupTransition = goerrors.New("invalid signup state transition", goerrors.CategoryValidation).
	WithTextCode("INVALID_SIGNUP_TRANSITION").
	WithCode(goerrors.CodeBadRequest)

// SignupStateMachine derives an email's lifecycle state from the credential
// and pending-signup stores and validates moves between states.
type SignupStateMachine struct {
	credentials CredentialStore
	pending     PendingSignupStore
	transitions map[SignupState]map[SignupState]struct{}
	logger      Logger
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*SignupStateMachine)

// WithStateMachineLogger overrides the logger used for store read failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *SignupStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// NewSignupStateMachine returns the machine backed by the given stores.
func NewSignupStateMachine(credentials CredentialStore, pending PendingSignupStore, opts ...StateMachineOption) *SignupStateMachine {
	sm := &SignupStateMachine{
		credentials: credentials,
		pending:     pending,
		transitions: map[SignupState]map[SignupState]struct{}{
			StateNoAccount: {
				StatePendingVerification: {},
			},
			StatePendingVerification: {
				// Self loop: resend code, or a repeated signup that
				// overwrites the pending entry.
				StatePendingVerification: {},
				StateVerified:            {},
			},
		},
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

// Current reports the lifecycle state for the email. A verified account wins
// over a stale pending entry.
func (sm *SignupStateMachine) Current(ctx context.Context, email string) (SignupState, error) {
	if _, err := sm.credentials.FindByEmail(ctx, email); err == nil {
		return StateVerified, nil
	} else if !errors.Is(err, ErrEmailNotFound) {
		sm.logger.Error("state machine credential lookup failed for %s: %v", email, err)
		return "", err
	}

	if _, err := sm.pending.Get(ctx, email); err == nil {
		return StatePendingVerification, nil
	} else if !errors.Is(err, ErrNoPendingSignup) {
		sm.logger.Error("state machine pending lookup failed for %s: %v", email, err)
		return "", err
	}

	return StateNoAccount, nil
}

// CanTransition reports whether the move is in the transition graph.
func (sm *SignupStateMachine) CanTransition(from, to SignupState) bool {
	allowed, ok := sm.transitions[from]
	if !ok {
		return false
	}
	_, exists := allowed[to]
	return exists
}

// Guard validates that the email can move to target, translating illegal
// moves into the lifecycle error the caller should surface.
func (sm *SignupStateMachine) Guard(ctx context.Context, email string, target SignupState) (SignupState, error) {
	from, err := sm.Current(ctx, email)
	if err != nil {
		return "", err
	}

	if sm.CanTransition(from, target) {
		return from, nil
	}

	switch {
	case from == StateVerified:
		return from, ErrUserExists
	case from == StateNoAccount && target == StateVerified:
		return from, ErrNoPendingSignup
	default:
		return from, ErrInvalidSignupTransition.WithMetadata(map[string]any{
			"from": string(from),
			"to":   string(target),
		})
	}
}
