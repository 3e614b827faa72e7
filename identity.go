package authflow

import (
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// newUserID derives the account UUID from the email so the same address
// always maps to the same identity, with a random UUID fallback if the
// derivation fails.
func newUserID(email string) uuid.UUID {
	if id, err := hashid.NewUUID(email); err == nil {
		return id
	}
	return uuid.New()
}
