package auth

import (
	"github.com/gofiber/fiber/v2"

	helper "kvtogether_backend/internals/helpers"
	"kvtogether_backend/internals/logging"
)

// RoleMiddlewareWithCustomError lets the request through when the role set
// by AuthJWT is one of allowedRoles.
func RoleMiddlewareWithCustomError(allowedRoles []string, customForbiddenMessage string) fiber.Handler {
	if customForbiddenMessage == "" {
		customForbiddenMessage = "Forbidden: you are not authorized to access this resource"
	}
	return func(c *fiber.Ctx) error {
		role := helper.GetUserRole(c)
		if role == "" {
			return helper.JsonError(c, fiber.StatusUnauthorized, "Unauthorized: missing role information")
		}
		for _, allowed := range allowedRoles {
			if role == allowed {
				return c.Next()
			}
		}
		logging.Ctx(c.UserContext()).Debug().Str("role", role).Str("path", c.Path()).Msg("role refused")
		return helper.JsonError(c, fiber.StatusForbidden, customForbiddenMessage)
	}
}

func OnlyRoles(customMessage string, roles ...string) fiber.Handler {
	return RoleMiddlewareWithCustomError(roles, customMessage)
}
