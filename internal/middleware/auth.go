package middleware

import (
	"strings"

	"shard-exchange/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HolderIDHeader carries the authenticated holder id, set by the gateway in front of the API.
const HolderIDHeader = "X-Holder-Id"

const holderLocal = "holder_id"

// RequireHolder rejects requests without a valid holder id header with 401.
func RequireHolder() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(c.Get(HolderIDHeader))
		if raw == "" {
			return response.Unauthorized(c, "Unauthorized")
		}
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		c.Locals(holderLocal, id)
		return c.Next()
	}
}

// GetHolderID returns the holder set by RequireHolder, or uuid.Nil.
func GetHolderID(c *fiber.Ctx) uuid.UUID {
	if id, ok := c.Locals(holderLocal).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// AdminKeyHeader guards issuer administration routes.
const AdminKeyHeader = "X-Admin-Key"

// RequireAdmin accepts only requests whose admin key matches keyHash (bcrypt).
// An empty hash locks the routes.
func RequireAdmin(keyHash string) fiber.Handler {
	hash := []byte(keyHash)
	return func(c *fiber.Ctx) error {
		key := c.Get(AdminKeyHeader)
		if len(hash) == 0 || key == "" || bcrypt.CompareHashAndPassword(hash, []byte(key)) != nil {
			return response.Error(c, "Forbidden", fiber.StatusForbidden, nil)
		}
		return c.Next()
	}
}
