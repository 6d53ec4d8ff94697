package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "judge-secret"

func signToken(t *testing.T, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func authApp() *fiber.App {
	app := fiber.New()
	app.Get("/", Authenticate(testSecret), func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c.UserContext())
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.JSON(fiber.Map{
			"local_id":   c.Locals(LocalUserID),
			"local_role": c.Locals(LocalUserRole),
			"user_id":    principal.UserID,
			"role":       principal.Role,
		})
	})
	return app
}

func callWithToken(t *testing.T, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := authApp().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestAuthenticateAcceptsSubjectClaim(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "42",
		"role": "Student",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	resp := callWithToken(t, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	require.EqualValues(t, 42, body["local_id"])
	require.Equal(t, "student", body["local_role"])
	require.EqualValues(t, 42, body["user_id"])
}

func TestAuthenticateAcceptsNumericUserIDClaim(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 7,
		"role":    "teacher",
	})

	resp := callWithToken(t, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	expired := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	noSubject := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"role": "admin"})
	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1"}).SignedString([]byte("other"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"missing":    "",
		"expired":    expired,
		"no subject": noSubject,
		"wrong key":  wrongKey,
		"garbage":    "not-a-token",
	} {
		resp := callWithToken(t, token)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, name)
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := bearerToken("bearer abc")
	require.True(t, ok)
	require.Equal(t, "abc", token)

	_, ok = bearerToken("Basic abc")
	require.False(t, ok)

	_, ok = bearerToken("Bearer ")
	require.False(t, ok)
}
