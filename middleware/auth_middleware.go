package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/tutorhub/api/models"
)

const userKey = "user"

// Protected validates the bearer token. The websocket handshake may pass it
// as the token query parameter instead.
func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   []byte(secret),
		ContextKey:   userKey,
		TokenLookup:  "header:Authorization,query:token",
		ErrorHandler: jwtError,
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	if err.Error() == "Missing or malformed JWT" {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "Missing or malformed JWT", "code": "unauthenticated"})
	}
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"error": "Invalid or expired JWT", "code": "unauthenticated"})
}

type Identity struct {
	UserID uuid.UUID
	Role   string
}

var errNoIdentity = errors.New("no identity in request")

// CurrentUser reads the identity set by Protected.
func CurrentUser(c *fiber.Ctx) (Identity, error) {
	token, ok := c.Locals(userKey).(*jwt.Token)
	if !ok {
		return Identity{}, errNoIdentity
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errNoIdentity
	}
	raw, _ := claims["user_id"].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return Identity{}, errNoIdentity
	}
	role, _ := claims["role"].(string)
	return Identity{UserID: id, Role: role}, nil
}

func AdminRequired() fiber.Handler {
	return requireRole(models.RoleAdmin, "Forbidden: Admin access required")
}

func TutorRequired() fiber.Handler {
	return requireRole(models.RoleTutor, "Forbidden: Tutor access required")
}

func requireRole(role, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := CurrentUser(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired JWT", "code": "unauthenticated"})
		}
		if id.Role != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": message, "code": "forbidden"})
		}
		return c.Next()
	}
}
