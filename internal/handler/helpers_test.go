package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SinaHo/phone-referral-auth/internal/handler"
	"github.com/SinaHo/phone-referral-auth/internal/model"
	"github.com/SinaHo/phone-referral-auth/internal/service"
)

// stubAuth attaches a fixed principal, standing in for middleware.Authenticate.
func stubAuth(p *model.Principal) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if p != nil {
			c.Locals("principal", p)
		}
		return c.Next()
	}
}

func newTestApp(auth service.AuthService, profiles service.ProfileService, actor *model.Principal) *fiber.App {
	logger := zap.NewNop().Sugar()
	app := fiber.New(fiber.Config{ErrorHandler: handler.ErrorHandler(logger)})
	handler.RegisterRoutes(app,
		handler.NewAuthHandler(auth, logger),
		handler.NewProfileHandler(profiles, logger),
		stubAuth(actor),
	)
	return app
}

type response struct {
	status int
	body   map[string]interface{}
	raw    []byte
}

func call(t *testing.T, app *fiber.App, method, path string, body interface{}) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := response{status: resp.StatusCode, raw: raw}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out.body))
	}
	return out
}
