package middleware_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SinaHo/phone-referral-auth/internal/middleware"
	"github.com/SinaHo/phone-referral-auth/internal/model"
	"github.com/SinaHo/phone-referral-auth/internal/token"
)

func newApp(tokens middleware.TokenParser, guards ...fiber.Handler) *fiber.App {
	app := fiber.New()
	logger := zap.NewNop().Sugar()
	app.Use(middleware.RequestLogger(logger), middleware.Metrics(), middleware.Authenticate(logger, tokens))
	handlers := append(guards, func(c *fiber.Ctx) error {
		p := middleware.GetPrincipal(c)
		if p == nil {
			return c.JSON(fiber.Map{"anonymous": true})
		}
		return c.JSON(fiber.Map{"profile_id": p.ProfileID.String(), "admin": p.IsAdmin})
	})
	app.Get("/who", handlers...)
	return app
}

func do(t *testing.T, app *fiber.App, authHeader string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	return resp.StatusCode, out
}

func TestAuthenticate(t *testing.T) {
	tokens := token.NewManager([]byte("secret"), time.Hour)
	profile := &model.Profile{ID: uuid.New(), PhoneNumber: "+16502530000", IsAdmin: true}
	raw, err := tokens.Issue(profile)
	require.NoError(t, err)

	app := newApp(tokens)

	code, body := do(t, app, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["anonymous"])

	code, body = do(t, app, "Bearer "+raw)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, profile.ID.String(), body["profile_id"])
	assert.Equal(t, true, body["admin"])

	code, body = do(t, app, "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid or expired token", body["error"])

	code, _ = do(t, app, "Basic dXNlcjpwYXNz")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, app, "Bearer ")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRequireAuth(t *testing.T) {
	tokens := token.NewManager([]byte("secret"), time.Hour)
	raw, err := tokens.Issue(&model.Profile{ID: uuid.New(), PhoneNumber: "+16502530000"})
	require.NoError(t, err)

	app := newApp(tokens, middleware.RequireAuth())

	code, body := do(t, app, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "authentication credentials were not provided", body["error"])

	code, _ = do(t, app, "Bearer "+raw)
	assert.Equal(t, http.StatusOK, code)
}
