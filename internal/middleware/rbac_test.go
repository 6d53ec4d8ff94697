package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func appWithCaller(userID uint, role string, guard fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != 0 {
			c.Locals(LocalUserID, userID)
		}
		if role != "" {
			c.Locals(LocalUserRole, role)
		}
		return c.Next()
	})
	app.Get("/", guard, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func perform(t *testing.T, app *fiber.App) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	return resp
}

func TestRequireStaffAllowsTeacherAndAdmin(t *testing.T) {
	for _, role := range []string{"teacher", "Admin"} {
		resp := perform(t, appWithCaller(1, role, RequireStaff()))
		require.Equal(t, fiber.StatusNoContent, resp.StatusCode, role)
	}
}

func TestRequireRoleRejectsOtherRoles(t *testing.T) {
	resp := perform(t, appWithCaller(10, "student", RequireStaff()))
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = perform(t, appWithCaller(10, "teacher", RequireRole(RoleStudent)))
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRequireRoleWithoutRoleIsUnauthenticated(t *testing.T) {
	resp := perform(t, appWithCaller(0, "", RequireRole(RoleAdmin)))
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireUser(t *testing.T) {
	resp := perform(t, appWithCaller(7, "", RequireUser()))
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = perform(t, appWithCaller(0, "student", RequireUser()))
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestIsStaff(t *testing.T) {
	require.True(t, IsStaff(" Teacher "))
	require.True(t, IsStaff("admin"))
	require.False(t, IsStaff("student"))
	require.False(t, IsStaff(""))
}
