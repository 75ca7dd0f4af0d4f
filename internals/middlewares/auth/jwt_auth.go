package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	helper "kvtogether_backend/internals/helpers"
	"kvtogether_backend/internals/logging"
)

type AuthJWTOpts struct {
	Secret string
	// AllowCookieFallback reads the access_token cookie when there is no Bearer header.
	AllowCookieFallback bool
}

// AuthJWT verifies an HS256 access token and hydrates the locals the
// helpers read: user_id and userRole.
func AuthJWT(o AuthJWTOpts) fiber.Handler {
	secret := strings.TrimSpace(o.Secret)
	if secret == "" {
		panic("AuthJWT: secret is required")
	}

	return func(c *fiber.Ctx) error {
		raw, err := extractBearerToken(c, o.AllowCookieFallback)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized: "+err.Error())
		}

		tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !tok.Valid {
			logging.Ctx(c.UserContext()).Debug().Err(err).Msg("rejected access token")
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
		}
		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
		}

		userID := userIDFromClaims(claims)
		if _, err := uuid.Parse(userID); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid user_id in token")
		}

		c.Locals("jwt_claims", claims)
		c.Locals(helper.LocUserID, userID)
		c.Locals(helper.LocUserRole, roleFromClaims(claims))
		return c.Next()
	}
}
