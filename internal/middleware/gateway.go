package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/policydesk/api/internal/identity"
	"github.com/policydesk/api/pkg/response"
)

// LocalUserID is the identity used when the gateway is disabled
const LocalUserID = "local"

// GatewayIdentity reads the caller identity from the X-User-* headers set by
// the gateway's forward auth. With required=false a missing identity falls
// back to LocalUserID, for running the console without a gateway.
func GatewayIdentity(required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := identity.Identity{
			UserID: c.Get(identity.HeaderUserID),
			Email:  c.Get(identity.HeaderUserEmail),
			Name:   c.Get(identity.HeaderUserName),
		}
		if id.UserID == "" {
			if required {
				return response.Unauthorized(c, "Missing user identity headers")
			}
			id.UserID = LocalUserID
		}

		c.Locals("userId", id.UserID)
		c.Locals("email", id.Email)
		c.Locals("name", id.Name)
		c.SetUserContext(identity.WithIdentity(c.UserContext(), id))

		return c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// Identity returns the caller identity stored by GatewayIdentity
func Identity(c *fiber.Ctx) identity.Identity {
	id, _ := identity.FromContext(c.UserContext())
	return id
}
