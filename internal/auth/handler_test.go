package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dualcast/backend/pkg/response"
	"github.com/dualcast/backend/pkg/utils"
)

func newTestRouter(t *testing.T) (*gin.Engine, *memStore, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemStore()
	svc, _ := newTestService(store, 10)
	handler := NewHandler(store, svc, 7*24*time.Hour, false, nil)

	router := gin.New()
	router.POST("/auth/register", handler.Register)
	router.POST("/auth/login", handler.Login)
	router.POST("/auth/refresh-token", handler.Refresh)
	router.POST("/auth/logout", handler.Logout)
	router.POST("/auth/logout-all", func(c *gin.Context) {
		claims, err := svc.VerifyAccess(bearerToken(c))
		if err != nil {
			response.Unauthorized(c, response.CodeTokenInvalid, "unauthorized")
			return
		}
		c.Set(ContextUserID, claims.UserID)
		handler.LogoutAll(c)
	})
	return router, store, svc
}

func bearerToken(c *gin.Context) string {
	const prefix = "Bearer "
	h := c.GetHeader("Authorization")
	if len(h) > len(prefix) {
		return h[len(prefix):]
	}
	return ""
}

func postJSON(router *gin.Engine, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) (response.Body, map[string]interface{}) {
	t.Helper()
	var body response.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data, _ := body.Data.(map[string]interface{})
	return body, data
}

func refreshCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == RefreshCookie {
			return c
		}
	}
	t.Fatal("refresh cookie not set")
	return nil
}

func registerUser(t *testing.T, router *gin.Engine) (*httptest.ResponseRecorder, *http.Cookie) {
	t.Helper()
	w := postJSON(router, "/auth/register", gin.H{
		"email":     "alice@example.com",
		"password":  "hunter22",
		"full_name": "Alice",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	return w, refreshCookie(t, w)
}

func TestRegisterIssuesSession(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w, cookie := registerUser(t, router)

	body, data := decodeBody(t, w)
	assert.True(t, body.Success)
	assert.NotEmpty(t, data["access_token"])
	assert.EqualValues(t, 900, data["expires_in"])

	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/auth", cookie.Path)
	assert.NotEmpty(t, cookie.Value)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	router, _, _ := newTestRouter(t)
	registerUser(t, router)

	w := postJSON(router, "/auth/register", gin.H{
		"email":     "alice@example.com",
		"password":  "other-pass",
		"full_name": "Mallory",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	body, _ := decodeBody(t, w)
	assert.Equal(t, response.CodeConflict, body.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	router, store, _ := newTestRouter(t)
	hash, err := utils.HashPassword("correct-pass")
	require.NoError(t, err)
	_, err = store.CreateUser(context.Background(), "bob@example.com", hash, "Bob")
	require.NoError(t, err)

	w := postJSON(router, "/auth/login", gin.H{"email": "bob@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Unknown account reads identically to a wrong password.
	w2 := postJSON(router, "/auth/login", gin.H{"email": "nobody@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
	body1, _ := decodeBody(t, w)
	body2, _ := decodeBody(t, w2)
	assert.Equal(t, body1.Error, body2.Error)
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	router, _, _ := newTestRouter(t)
	_, cookie := registerUser(t, router)

	w := postJSON(router, "/auth/refresh-token", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	_, data := decodeBody(t, w)
	assert.NotEmpty(t, data["access_token"])

	next := refreshCookie(t, w)
	assert.NotEqual(t, cookie.Value, next.Value)

	// The consumed cookie value is dead.
	replay := postJSON(router, "/auth/refresh-token", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, replay.Code)
	body, _ := decodeBody(t, replay)
	assert.Equal(t, response.CodeTokenInvalid, body.Code)

	// The rotated value still works.
	w2 := postJSON(router, "/auth/refresh-token", nil, next)
	assert.Equal(t, http.StatusOK, w2.Code)
}

func TestRefreshWithoutCookie(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := postJSON(router, "/auth/refresh-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body, _ := decodeBody(t, w)
	assert.Equal(t, response.CodeTokenInvalid, body.Code)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	router, _, _ := newTestRouter(t)
	_, cookie := registerUser(t, router)

	w := postJSON(router, "/auth/logout", nil, cookie)
	assert.Equal(t, http.StatusOK, w.Code)
	cleared := refreshCookie(t, w)
	assert.Empty(t, cleared.Value)

	refresh := postJSON(router, "/auth/refresh-token", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, refresh.Code)

	// Logging out twice is fine.
	again := postJSON(router, "/auth/logout", nil, cookie)
	assert.Equal(t, http.StatusOK, again.Code)
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	router, _, _ := newTestRouter(t)
	reg, firstCookie := registerUser(t, router)
	_, data := decodeBody(t, reg)
	access := data["access_token"].(string)

	login := postJSON(router, "/auth/login", gin.H{"email": "alice@example.com", "password": "hunter22"})
	require.Equal(t, http.StatusOK, login.Code)
	secondCookie := refreshCookie(t, login)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout-all", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	for _, cookie := range []*http.Cookie{firstCookie, secondCookie} {
		refresh := postJSON(router, "/auth/refresh-token", nil, cookie)
		assert.Equal(t, http.StatusUnauthorized, refresh.Code)
	}
}
