package middleware

import (
	"fmt"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-judge/internal/utils"
)

// Roles recognised by the judge.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// RequireUser rejects requests that reached the route without an
// authenticated user.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id, ok := c.Locals(LocalUserID).(uint); !ok || id == 0 {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		return c.Next()
	}
}

// RequireRole ensures that the authenticated user possesses one of the allowed roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := mapset.NewThreadUnsafeSet[string]()
	for _, role := range roles {
		if normalized := normalizeRole(role); normalized != "" {
			allowed.Add(normalized)
		}
	}
	required := allowed.ToSlice()
	sort.Strings(required)

	return func(c *fiber.Ctx) error {
		role := normalizeRole(c.Locals(LocalUserRole))
		if role == "" {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		if !allowed.Contains(role) {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", fiber.Map{"required_roles": required})
		}
		return c.Next()
	}
}

// RequireStaff admits teachers and admins.
func RequireStaff() fiber.Handler {
	return RequireRole(RoleTeacher, RoleAdmin)
}

// IsStaff reports whether role may manage problems and inspect other users' work.
func IsStaff(role string) bool {
	switch normalizeRole(role) {
	case RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

func normalizeRole(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", v)))
	}
}
