package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lms "github.com/bohemiyan/LMS"
)

const secret = "test-secret"

type fakeChecker map[uint][]string

func (f fakeChecker) CheckPermission(ctx context.Context, userID uint, permName string) error {
	if userID == 99 {
		return errors.New("database unavailable")
	}
	for _, p := range f[userID] {
		if p == permName {
			return nil
		}
	}
	return lms.ErrPermissionDenied
}

func newApp(checker PermissionChecker) *fiber.App {
	app := fiber.New()
	app.Use(JWT(secret))
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.SendString(strconv.Itoa(int(UserID(c))))
	})
	app.Get("/reports", RequirePermission(checker, "reports.view"), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func request(t *testing.T, app *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func token(t *testing.T, userID uint, ttl time.Duration) string {
	t.Helper()
	tok, err := IssueToken(secret, userID, "u@example.com", ttl, time.Now())
	require.NoError(t, err)
	return tok
}

func TestJWT(t *testing.T) {
	app := newApp(fakeChecker{})

	assert.Equal(t, fiber.StatusUnauthorized, request(t, app, "/me", ""))
	assert.Equal(t, fiber.StatusUnauthorized, request(t, app, "/me", "garbage"))
	assert.Equal(t, fiber.StatusUnauthorized, request(t, app, "/me", token(t, 5, -time.Minute)), "expired")
	assert.Equal(t, fiber.StatusOK, request(t, app, "/me", token(t, 5, time.Hour)))

	other, err := IssueToken("other-secret", 5, "", time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, request(t, app, "/me", other))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 5})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, request(t, app, "/me", unsigned))
}

func TestJWTFromCookie(t *testing.T) {
	app := newApp(fakeChecker{})
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Cookie", "token="+token(t, 8, time.Hour))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequirePermission(t *testing.T) {
	app := newApp(fakeChecker{1: {"reports.view"}, 2: {"quiz.grade"}})

	assert.Equal(t, fiber.StatusOK, request(t, app, "/reports", token(t, 1, time.Hour)))
	assert.Equal(t, fiber.StatusForbidden, request(t, app, "/reports", token(t, 2, time.Hour)))
	assert.Equal(t, fiber.StatusInternalServerError, request(t, app, "/reports", token(t, 99, time.Hour)))
}
