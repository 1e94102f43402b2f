// Package client provides a Go client for the recording API. It holds the
// access token in memory, carries the refresh token in an http-only cookie via
// the jar, and transparently refreshes an expired access token once per request.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrSessionExpired is returned when the access token was rejected and the
// silent refresh could not produce a new one. The caller must log in again.
var ErrSessionExpired = errors.New("client: session expired, login required")

// APIError carries a non-auth error response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Client is a session-holding API client. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client

	mu          sync.Mutex
	accessToken string
}

// New creates a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Client{
		baseURL: u,
		http: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
	}, nil
}

// AccessToken returns the current access token, empty when logged out.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// Register creates an account and starts a session.
func (c *Client) Register(ctx context.Context, email, password, fullName string) error {
	body := map[string]string{"email": email, "password": password, "full_name": fullName}
	var tok tokenResponse
	if err := c.postJSON(ctx, "/auth/register", body, &tok); err != nil {
		return err
	}
	c.setToken(tok.AccessToken)
	return nil
}

// Login authenticates and starts a session. The refresh token lands in the
// cookie jar, the access token is held in memory.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	var tok tokenResponse
	if err := c.postJSON(ctx, "/auth/login", body, &tok); err != nil {
		return err
	}
	c.setToken(tok.AccessToken)
	return nil
}

// Logout revokes the current refresh token and clears the session.
func (c *Client) Logout(ctx context.Context) error {
	err := c.postJSON(ctx, "/auth/logout", nil, nil)
	c.clearSession()
	return err
}

// Do sends an authenticated request. The path is resolved against the base
// URL. If the server rejects the access token as expired, the client performs
// exactly one silent refresh and retries the request once. A rejection of the
// retried request clears the session and returns ErrSessionExpired.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	token := c.AccessToken()
	status, code, err := c.roundTrip(ctx, method, path, body, token, out)
	if err != nil {
		return err
	}
	if !rejectedAuth(status, code) {
		return nil
	}

	if err := c.refresh(ctx, token); err != nil {
		c.clearSession()
		return ErrSessionExpired
	}

	status, code, err = c.roundTrip(ctx, method, path, body, c.AccessToken(), out)
	if err != nil {
		return err
	}
	if rejectedAuth(status, code) {
		c.clearSession()
		return ErrSessionExpired
	}
	return nil
}

// GetJSON issues an authenticated GET and decodes the data payload into out.
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON issues an authenticated POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	return c.Do(ctx, http.MethodPost, path, raw, out)
}

func rejectedAuth(status int, code string) bool {
	return (status == http.StatusUnauthorized || status == http.StatusForbidden) &&
		(code == "token_expired" || code == "token_invalid")
}

// refresh performs one silent token rotation. The stale token guards against
// concurrent callers refreshing more than once for the same expiry.
func (c *Client) refresh(ctx context.Context, staleToken string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != staleToken {
		// Another request already refreshed.
		return nil
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/refresh-token", nil, "")
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK || !env.Success {
		return fmt.Errorf("refresh rejected: %s", env.Code)
	}
	var tok tokenResponse
	if err := json.Unmarshal(env.Data, &tok); err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	c.accessToken = tok.AccessToken
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, token string, out interface{}) (int, string, error) {
	req, err := c.newRequest(ctx, method, path, body, token)
	if err != nil {
		return 0, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	if rejectedAuth(resp.StatusCode, env.Code) {
		return resp.StatusCode, env.Code, nil
	}
	if resp.StatusCode >= 400 || !env.Success {
		return resp.StatusCode, env.Code, &APIError{
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			Message:    env.Error,
		}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return resp.StatusCode, env.Code, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, env.Code, nil
}

// postJSON sends an unauthenticated JSON POST, used by the auth endpoints.
func (c *Client) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, raw, "")
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 || !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Error}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte, token string) (*http.Request, error) {
	full := strings.TrimRight(c.baseURL.String(), "/") + "/" + strings.TrimPrefix(path, "/")

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, full, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

func (c *Client) clearSession() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

func decodeEnvelope(r io.Reader) (*envelope, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}
