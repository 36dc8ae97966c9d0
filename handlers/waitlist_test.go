package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata-waitlist/services"
	"strata-waitlist/store"
)

func newTestApp(t *testing.T) (*fiber.App, *services.WaitlistService) {
	t.Helper()
	st, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc := services.NewWaitlistService(st)
	app := fiber.New()
	SetupWaitlistRoutes(app, svc)
	return app, svc
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func signup(t *testing.T, app *fiber.App, email string) map[string]interface{} {
	t.Helper()
	resp, body := doJSON(t, app, http.MethodPost, "/api/waitlist", fiber.Map{
		"first_name": "Anna",
		"last_name":  "Smith",
		"email":      email,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["user"].(map[string]interface{})
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body["status"])
}

func TestPostWaitlistCreates(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/api/waitlist", fiber.Map{
		"first_name": "Anna",
		"last_name":  "Smith",
		"email":      "anna@example.com",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Successfully joined waitlist", body["message"])

	user := body["user"].(map[string]interface{})
	assert.Equal(t, "anna@example.com", user["email"])
	assert.Contains(t, user["referral_link"], "ref_")
}

func TestPostWaitlistDuplicateReturnsExisting(t *testing.T) {
	app, _ := newTestApp(t)
	first := signup(t, app, "dup@example.com")

	resp, body := doJSON(t, app, http.MethodPost, "/api/waitlist", fiber.Map{
		"first_name": "Someone",
		"last_name":  "Else",
		"email":      "dup@example.com",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Email already registered", body["error"])

	user := body["user"].(map[string]interface{})
	assert.Equal(t, first["id"], user["id"])
}

func TestPostWaitlistMissingFields(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/api/waitlist", fiber.Map{
		"first_name": "Anna",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "Missing required fields")
}

func TestPostWaitlistWithReferralCode(t *testing.T) {
	app, _ := newTestApp(t)
	referrer := signup(t, app, "referrer@example.com")

	resp, body := doJSON(t, app, http.MethodPost, "/api/waitlist", fiber.Map{
		"first_name":    "Friend",
		"last_name":     "Person",
		"email":         "friend@example.com",
		"referral_code": referrer["referral_link"],
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, referrer["id"], user["referred_by"])

	resp, body = doJSON(t, app, http.MethodGet, "/api/waitlist/"+referrer["id"].(string), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	credited := body["user"].(map[string]interface{})
	assert.EqualValues(t, 1, credited["referral_count"])
	assert.EqualValues(t, 10, credited["points"])
}

func TestGetWaitlistListsEntries(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/api/waitlist", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["count"])

	signup(t, app, "a@example.com")
	signup(t, app, "b@example.com")

	resp, body = doJSON(t, app, http.MethodGet, "/api/waitlist", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	users := body["users"].([]interface{})
	assert.Len(t, users, 2)
	assert.EqualValues(t, 2, body["count"])
}

func TestGetWaitlistByEmail(t *testing.T) {
	app, _ := newTestApp(t)
	signup(t, app, "anna@example.com")

	resp, body := doJSON(t, app, http.MethodGet, "/api/waitlist/email/anna%40example.com", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "anna@example.com", user["email"])

	resp, _ = doJSON(t, app, http.MethodGet, "/api/waitlist/email/nobody%40example.com", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetWaitlistByReferralLink(t *testing.T) {
	app, _ := newTestApp(t)
	user := signup(t, app, "anna@example.com")

	resp, body := doJSON(t, app, http.MethodGet, "/api/waitlist/referral/"+user["referral_link"].(string), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	found := body["user"].(map[string]interface{})
	assert.Equal(t, user["id"], found["id"])

	resp, _ = doJSON(t, app, http.MethodGet, "/api/waitlist/referral/ref_missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetWaitlistByIDNotFound(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/api/waitlist/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User not found", body["error"])
}

func TestPatchWaitlist(t *testing.T) {
	app, _ := newTestApp(t)
	user := signup(t, app, "patch@example.com")
	id := user["id"].(string)

	resp, body := doJSON(t, app, http.MethodPatch, "/api/waitlist/"+id, fiber.Map{
		"first_name": "Renamed",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	updated := body["user"].(map[string]interface{})
	assert.Equal(t, "Renamed", updated["first_name"])

	resp, _ = doJSON(t, app, http.MethodPatch, "/api/waitlist/"+id, fiber.Map{
		"email": "hijack@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPatch, "/api/waitlist/missing", fiber.Map{
		"first_name": "X",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLeaderboardEndpoint(t *testing.T) {
	app, svc := newTestApp(t)
	a := signup(t, app, "a@example.com")
	signup(t, app, "b@example.com")
	signup(t, app, "c@example.com")

	_, err := svc.UpdateEntry(context.Background(), a["id"].(string), map[string]interface{}{"points": 30, "referral_count": 2})
	require.NoError(t, err)

	resp, body := doJSON(t, app, http.MethodGet, "/api/leaderboard?limit=2", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	board := body["leaderboard"].([]interface{})
	require.Len(t, board, 2)
	top := board[0].(map[string]interface{})
	assert.Equal(t, a["id"], top["id"])
}

func TestRewardsEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/api/rewards", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	rewards := body["rewards"].([]interface{})
	assert.Len(t, rewards, 3)
}

func TestAchievementEndpoints(t *testing.T) {
	app, _ := newTestApp(t)
	user := signup(t, app, "achiever@example.com")
	id := user["id"].(string)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/users/"+id+"/achievements", fiber.Map{
		"achievement_type": "social_share",
		"points_earned":    15,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/api/users/"+id+"/achievements", fiber.Map{
		"achievement_type": "",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodGet, "/api/users/"+id+"/achievements", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	achievements := body["achievements"].([]interface{})
	require.Len(t, achievements, 1)

	resp, body = doJSON(t, app, http.MethodGet, "/api/waitlist/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stored := body["user"].(map[string]interface{})
	assert.EqualValues(t, 15, stored["points"])
}
