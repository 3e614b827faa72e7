package authflow

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequireSession guards host routes with the same bearer tokens the auth
// endpoint issues. Requests with a valid session get the session claims and
// record stored in fiber locals; everything else is rejected with the
// standard session error.
func RequireSession(tokens *TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return rejectSession(c)
		}

		record, claims, err := tokens.Validate(c.Context(), token)
		if err != nil {
			return rejectSession(c)
		}

		c.Locals(localsSessionKey, record)
		c.Locals(localsClaimsKey, claims)
		c.SetUserContext(WithClaimsContext(c.UserContext(), claims))

		return c.Next()
	}
}

const (
	localsSessionKey = "authflow.session"
	localsClaimsKey  = "authflow.claims"
)

// SessionFromLocals returns the session record stored by RequireSession.
func SessionFromLocals(c *fiber.Ctx) (*SessionRecord, bool) {
	record, ok := c.Locals(localsSessionKey).(*SessionRecord)
	return record, ok
}

// ClaimsFromLocals returns the session claims stored by RequireSession.
func ClaimsFromLocals(c *fiber.Ctx) (*SessionClaims, bool) {
	claims, ok := c.Locals(localsClaimsKey).(*SessionClaims)
	return claims, ok
}

// SessionUserID is a convenience for handlers that only need the caller's
// account ID.
func SessionUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	record, ok := SessionFromLocals(c)
	if !ok {
		return uuid.Nil, false
	}
	return record.UserID, true
}

func rejectSession(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": ErrSessionInvalid.Message,
	})
}
