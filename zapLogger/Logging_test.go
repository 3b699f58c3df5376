package zapLogger

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	f, err := Init(path, "info")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	Log.Infow("enrollment created", "enrollment_id", 7)
	Log.Debug("hidden")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "enrollment created")
	assert.Contains(t, string(data), `"enrollment_id": 7`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(zapcore.AddSync(&buf), zapcore.WarnLevel)

	log.Info("quiet")
	log.Warnw("loud", "level", 3)

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestFiberLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(FiberLoggingMiddleware(&buf))
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, buf.String(), "| 200 | GET | /healthz |")
}
