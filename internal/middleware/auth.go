package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/gema-judge/internal/utils"
)

// Fiber locals populated by Authenticate.
const (
	LocalUserID   = "user_id"
	LocalUserRole = "user_role"
)

var errMissingSubject = errors.New("token carries no user identifier")

// Claims is the token payload issued by the platform's identity service.
// Older tokens carry the user id in "user_id" instead of "sub".
type Claims struct {
	UserID json.Number `json:"user_id,omitempty"`
	Role   string      `json:"role"`
	jwt.RegisteredClaims
}

// Principal identifies the caller of a request.
type Principal struct {
	UserID uint
	Role   string
}

type principalKey struct{}

func (c Claims) principal() (Principal, error) {
	raw := strings.TrimSpace(c.UserID.String())
	if raw == "" {
		raw = strings.TrimSpace(c.Subject)
	}
	if raw == "" {
		return Principal{}, errMissingSubject
	}

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return Principal{}, errMissingSubject
	}
	return Principal{UserID: uint(id), Role: normalizeRole(c.Role)}, nil
}

// Authenticate validates HMAC-signed bearer tokens and exposes the caller via
// Fiber locals and the request's user context.
func Authenticate(secret string) fiber.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(30*time.Second),
	)
	key := []byte(secret)

	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		var claims Claims
		token, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			reason := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				reason = "token expired"
			}
			return utils.Fail(c, fiber.StatusUnauthorized, reason, nil)
		}

		principal, err := claims.principal()
		if err != nil {
			return utils.Fail(c, fiber.StatusUnauthorized, "invalid token claims", nil)
		}

		c.Locals(LocalUserID, principal.UserID)
		if principal.Role != "" {
			c.Locals(LocalUserRole, principal.Role)
		}
		c.SetUserContext(context.WithValue(c.UserContext(), principalKey{}, principal))

		return c.Next()
	}
}

// PrincipalFromContext returns the authenticated caller bound to ctx.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	principal, ok := ctx.Value(principalKey{}).(Principal)
	return principal, ok
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
