package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SinaHo/phone-referral-auth/internal/model"
	"github.com/SinaHo/phone-referral-auth/internal/server"
	"github.com/SinaHo/phone-referral-auth/internal/service"
	"github.com/SinaHo/phone-referral-auth/internal/token"
)

type stubAuth struct{}

func (stubAuth) Login(ctx context.Context, phoneNumber string) (*service.LoginResult, error) {
	return &service.LoginResult{Message: service.LoginMessage}, nil
}

func (stubAuth) VerifyCode(ctx context.Context, phoneNumber, enteredCode string) (*service.VerifyResult, error) {
	return nil, service.ErrWrongCode
}

// stubProfiles answers Get with the caller's identity and everything else with an empty result.
type stubProfiles struct{}

func (stubProfiles) List(ctx context.Context, page, pageSize int) (*service.ProfileList, error) {
	return &service.ProfileList{Page: page, PageSize: pageSize}, nil
}

func (stubProfiles) Get(ctx context.Context, actor *model.Principal, id uuid.UUID) (*model.ProfileView, error) {
	if actor == nil {
		return nil, service.ErrUnauthenticated
	}
	return &model.ProfileView{ID: actor.ProfileID, PhoneNumber: actor.Phone}, nil
}

func (stubProfiles) Update(ctx context.Context, actor *model.Principal, id uuid.UUID, in service.UpdateProfileInput) (*model.ProfileView, error) {
	return nil, service.ErrNothingToUpdate
}

func (stubProfiles) Patch(ctx context.Context, actor *model.Principal, id uuid.UUID, in service.UpdateProfileInput) (*model.ProfileView, error) {
	return nil, service.ErrAdminOnly
}

func (stubProfiles) ActivateReferral(ctx context.Context, actor *model.Principal, id uuid.UUID, code string) error {
	return nil
}

func (stubProfiles) Create(ctx context.Context, actor *model.Principal, phoneNumber string) (*model.ProfileView, error) {
	return nil, service.ErrAdminOnly
}

func (stubProfiles) Delete(ctx context.Context, actor *model.Principal, id uuid.UUID) error {
	return service.ErrAdminOnly
}

func newApp(t *testing.T, ping func(context.Context) error) (*token.Manager, *fiber.App) {
	t.Helper()
	tokens := token.NewManager([]byte("test-secret"), time.Hour)
	app := server.NewHTTPApp(server.HTTPDeps{
		Auth:     stubAuth{},
		Profiles: stubProfiles{},
		Tokens:   tokens,
		Ping:     ping,
		Logger:   zap.NewNop().Sugar(),
	})
	return tokens, app
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealth(t *testing.T) {
	_, app := newApp(t, func(context.Context) error { return nil })
	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	_, app = newApp(t, func(context.Context) error { return errors.New("db down") })
	resp, _ = do(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, app := newApp(t, nil)
	do(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))

	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "http_requests_total")
}

func TestRequestIDAndCORS(t *testing.T) {
	_, app := newApp(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	resp, _ := do(t, app, req)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestLoginRoute(t *testing.T) {
	_, app := newApp(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/user-login/", strings.NewReader(`{"phone_number":"+16502530000"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, body := do(t, app, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, service.LoginMessage, out["message"])
}

func TestProfileRoute_BearerToken(t *testing.T) {
	tokens, app := newApp(t, nil)
	profile := &model.Profile{ID: uuid.New(), PhoneNumber: "+16502530000"}
	raw, err := tokens.Issue(profile)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/userprofiles/"+profile.ID.String()+"/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	resp, body := do(t, app, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, profile.ID.String(), out["id"])
	assert.Equal(t, "+16502530000", out["phone_number"])
}

func TestProfileRoute_InvalidToken(t *testing.T) {
	_, app := newApp(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/userprofiles/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	resp, _ := do(t, app, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProfileRoute_Anonymous(t *testing.T) {
	_, app := newApp(t, nil)

	resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/userprofiles/", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, app, httptest.NewRequest(http.MethodGet, "/userprofiles/"+uuid.NewString()+"/", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
