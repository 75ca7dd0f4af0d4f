package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"

	"kvtogether_backend/internals/constants"
)

func extractBearerToken(c *fiber.Ctx, allowCookie bool) (string, error) {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if auth == "" && allowCookie {
		if tok := strings.TrimSpace(c.Cookies("access_token")); tok != "" {
			return strings.Trim(tok, "\"'"), nil
		}
	}
	if auth == "" {
		return "", errors.New("no token provided")
	}

	fields := strings.Fields(auth)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", errors.New("invalid token format")
	}
	tok := strings.Trim(strings.TrimSpace(fields[1]), "\"'")
	if tok == "" {
		return "", errors.New("empty token")
	}
	return tok, nil
}

func strClaim(m jwt.MapClaims, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func readStringSlice(v any) []string {
	switch arr := v.(type) {
	case []string:
		return arr
	case []any:
		out := make([]string, 0, len(arr))
		for _, it := range arr {
			if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

// userIDFromClaims prefers id, then sub, then user_id.
func userIDFromClaims(claims jwt.MapClaims) string {
	for _, key := range []string{"id", "sub", "user_id"} {
		if v := strClaim(claims, key); v != "" {
			return v
		}
	}
	return ""
}

// roleFromClaims reads "role", falling back to the strongest entry of
// roles_global.
func roleFromClaims(claims jwt.MapClaims) string {
	if r := strings.ToLower(strClaim(claims, "role")); r != "" {
		return r
	}
	best := ""
	for _, r := range readStringSlice(claims["roles_global"]) {
		switch r = strings.ToLower(r); r {
		case constants.RoleAdmin:
			return r
		case constants.RoleOrganizer:
			best = r
		case constants.RoleUser:
			if best == "" {
				best = r
			}
		}
	}
	if best == "" {
		best = constants.RoleUser
	}
	return best
}
