package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata-waitlist/services"
	"strata-waitlist/store"
)

func newAuthTestApp(t *testing.T) *fiber.App {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")

	st, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc := services.NewWaitlistService(st)
	auth := services.NewAuthService(st)
	app := fiber.New()
	SetupWaitlistRoutes(app, svc)
	SetupAuthRoutes(app, auth, svc)
	return app
}

func TestLoginUnknownEmail(t *testing.T) {
	app := newAuthTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/auth/login", fiber.Map{
		"email": "stranger@example.com",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLoginMissingEmail(t *testing.T) {
	app := newAuthTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/auth/login", fiber.Map{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginAndDashboard(t *testing.T) {
	app := newAuthTestApp(t)
	signup(t, app, "member@example.com")

	resp, body := doJSON(t, app, http.MethodPost, "/api/auth/login", fiber.Map{
		"email": "member@example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := body["token"].(string)
	require.NotEmpty(t, token)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	dashResp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, dashResp.StatusCode)
}

func TestDashboardRequiresToken(t *testing.T) {
	app := newAuthTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set("Authorization", "Bearer bogus.token.here")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
