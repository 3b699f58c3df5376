// Package auth authenticates API callers and guards routes with permissions.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	lms "github.com/bohemiyan/LMS"
)

// LocalUserID is the fiber.Ctx Locals key holding the authenticated user id.
const LocalUserID = "user_id"

// Claims represents the JWT claims structure.
type Claims struct {
	UserID uint   `json:"uid"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// PermissionChecker is satisfied by *lms.LMS.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, userID uint, permName string) error
}

// IssueToken signs an HS256 token for userID valid for ttl.
func IssueToken(secret string, userID uint, email string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// JWT validates the bearer token from the Authorization header or the
// "token" cookie and stores the user id in Locals.
func JWT(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Get(fiber.HeaderAuthorization)
		if tokenStr == "" {
			tokenStr = c.Cookies("token")
		}
		tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))
		if tokenStr == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		claims, ok := token.Claims.(*Claims)
		if !ok || claims.UserID == 0 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid claims")
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals("claims", claims)
		return c.Next()
	}
}

// UserID returns the authenticated user id, or 0.
func UserID(c *fiber.Ctx) uint {
	id, _ := c.Locals(LocalUserID).(uint)
	return id
}

// RequirePermission allows the request through only when the caller holds permission.
func RequirePermission(checker PermissionChecker, permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := UserID(c)
		if userID == 0 {
			return fiber.NewError(fiber.StatusUnauthorized, "user_id not found in context")
		}
		err := checker.CheckPermission(c.UserContext(), userID, permission)
		switch {
		case err == nil:
			return c.Next()
		case errors.Is(err, lms.ErrPermissionDenied):
			return fiber.NewError(fiber.StatusForbidden, "missing permission "+permission)
		default:
			return err
		}
	}
}
