package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI simulates the server's auth lifecycle: login hands out an access
// token and a refresh cookie, refresh rotates both, the protected endpoint
// only accepts the current access token.
type fakeAPI struct {
	currentAccess  string
	currentRefresh string
	refreshCalls   int32
	refreshFails   bool
	rejectAll      bool
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, status int, body map[string]interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
	ok := func(w http.ResponseWriter, data map[string]interface{}) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": data})
	}
	reject := func(w http.ResponseWriter, code string) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "error": "nope", "code": code})
	}

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["password"] != "hunter22" {
			reject(w, "token_invalid")
			return
		}
		f.currentAccess = "access-1"
		f.currentRefresh = "refresh-1"
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: f.currentRefresh, Path: "/auth"})
		ok(w, map[string]interface{}{"access_token": f.currentAccess, "expires_in": 900})
	})

	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.refreshCalls, 1)
		cookie, err := r.Cookie("refresh_token")
		if f.refreshFails || err != nil || cookie.Value != f.currentRefresh {
			reject(w, "token_invalid")
			return
		}
		f.currentAccess = "access-2"
		f.currentRefresh = "refresh-2"
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: f.currentRefresh, Path: "/auth"})
		ok(w, map[string]interface{}{"access_token": f.currentAccess, "expires_in": 900})
	})

	mux.HandleFunc("/recordings", func(w http.ResponseWriter, r *http.Request) {
		if f.rejectAll || r.Header.Get("Authorization") != "Bearer "+f.currentAccess {
			reject(w, "token_expired")
			return
		}
		ok(w, map[string]interface{}{"listed": true})
	})

	return mux
}

func loginClient(t *testing.T, api *fakeAPI) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(t, err)
	require.NoError(t, c.Login(context.Background(), "alice@example.com", "hunter22"))
	return c, srv
}

func TestLoginStoresAccessToken(t *testing.T) {
	api := &fakeAPI{}
	c, _ := loginClient(t, api)
	assert.Equal(t, "access-1", c.AccessToken())
}

func TestLoginFailure(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(t, err)

	err = c.Login(context.Background(), "alice@example.com", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Empty(t, c.AccessToken())
}

func TestAuthenticatedRequest(t *testing.T) {
	api := &fakeAPI{}
	c, _ := loginClient(t, api)

	var out map[string]interface{}
	require.NoError(t, c.GetJSON(context.Background(), "/recordings", &out))
	assert.Equal(t, true, out["listed"])
	assert.EqualValues(t, 0, atomic.LoadInt32(&api.refreshCalls))
}

func TestSilentRefreshExactlyOnce(t *testing.T) {
	api := &fakeAPI{}
	c, _ := loginClient(t, api)

	// Server-side rotation invalidates the held access token.
	api.currentAccess = "access-1b"

	var out map[string]interface{}
	require.NoError(t, c.GetJSON(context.Background(), "/recordings", &out))
	assert.Equal(t, true, out["listed"])
	assert.EqualValues(t, 1, atomic.LoadInt32(&api.refreshCalls))
	assert.Equal(t, "access-2", c.AccessToken())
}

func TestFailedRefreshClearsSession(t *testing.T) {
	api := &fakeAPI{}
	c, _ := loginClient(t, api)

	api.currentAccess = "rotated-away"
	api.refreshFails = true

	err := c.GetJSON(context.Background(), "/recordings", nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Empty(t, c.AccessToken())
	assert.EqualValues(t, 1, atomic.LoadInt32(&api.refreshCalls))
}

func TestRejectionAfterRefreshClearsSession(t *testing.T) {
	api := &fakeAPI{}
	c, _ := loginClient(t, api)

	// Even a fresh token is rejected: the retry is not repeated.
	api.rejectAll = true

	err := c.GetJSON(context.Background(), "/recordings", nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Empty(t, c.AccessToken())
	assert.EqualValues(t, 1, atomic.LoadInt32(&api.refreshCalls))
}

func TestLogoutClearsSession(t *testing.T) {
	api := &fakeAPI{}
	c, _ := loginClient(t, api)

	// The fake has no logout endpoint; the local session is cleared regardless
	// of the server's answer.
	_ = c.Logout(context.Background())
	assert.Empty(t, c.AccessToken())
}
