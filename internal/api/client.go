package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jnetto23/OmniStack-08/internal/models"
)

// UserHeader carries the caller identity on every request.
const UserHeader = "user"

const requestIDHeader = "X-Request-ID"

// Client talks to the TinDev REST surface. Identity is passed per request;
// the client keeps no session of its own.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout on a copy of the current
// http.Client, so a shared client passed to WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginRequest struct {
	Username string `json:"username"`
}

type loginResponse struct {
	MongoID string `json:"_id"`
	ID      string `json:"id"`
	Token   string `json:"token"`
}

// Login registers or logs in by username and returns the server's identity.
func (c *Client) Login(ctx context.Context, username string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.User{}, &AuthError{Username: username, Status: http.StatusBadRequest}
	}

	body, err := json.Marshal(loginRequest{Username: username})
	if err != nil {
		return models.User{}, &NetworkError{Op: "login", Err: err}
	}

	resp, err := c.do(ctx, http.MethodPost, "/devs", models.User{}, bytes.NewReader(body))
	if err != nil {
		return models.User{}, &NetworkError{Op: "login", Err: err}
	}
	defer drain(resp)

	switch {
	case isAuthStatus(resp.StatusCode) || resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		return models.User{}, &AuthError{Username: username, Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return models.User{}, &NetworkError{Op: "login", Status: resp.StatusCode}
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return models.User{}, &NetworkError{Op: "login", Status: resp.StatusCode, Err: err}
	}
	id := lr.ID
	if id == "" {
		id = lr.MongoID
	}
	if id == "" {
		return models.User{}, &AuthError{Username: username, Status: resp.StatusCode}
	}

	user := models.User{ID: id, Username: username, Token: lr.Token}
	if lr.Token != "" {
		user.ExpiresAt = tokenExpiry(lr.Token)
	}
	return user, nil
}

// FetchQueue returns the candidates the user has not decided on yet, in server order.
func (c *Client) FetchQueue(ctx context.Context, user models.User) ([]models.Profile, error) {
	resp, err := c.do(ctx, http.MethodGet, "/devs", user, nil)
	if err != nil {
		return nil, &NetworkError{Op: "fetch queue", Err: err}
	}
	defer drain(resp)

	if isAuthStatus(resp.StatusCode) {
		return nil, &AuthError{Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{Op: "fetch queue", Status: resp.StatusCode}
	}

	var profiles []models.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profiles); err != nil {
		return nil, &NetworkError{Op: "fetch queue", Status: resp.StatusCode, Err: err}
	}
	if profiles == nil {
		profiles = []models.Profile{}
	}
	return profiles, nil
}

// SubmitLike registers a like. Repeating a like is not an error.
func (c *Client) SubmitLike(ctx context.Context, user models.User, targetID string) error {
	return c.submit(ctx, user, targetID, "likes")
}

// SubmitDislike registers a dislike.
func (c *Client) SubmitDislike(ctx context.Context, user models.User, targetID string) error {
	return c.submit(ctx, user, targetID, "dislikes")
}

// Submit dispatches a decision to the matching endpoint.
func (c *Client) Submit(ctx context.Context, user models.User, d models.Decision) error {
	switch d.Verdict {
	case models.Like:
		return c.SubmitLike(ctx, user, d.Target)
	case models.Dislike:
		return c.SubmitDislike(ctx, user, d.Target)
	default:
		return fmt.Errorf("unknown verdict %q", d.Verdict)
	}
}

func (c *Client) submit(ctx context.Context, user models.User, targetID, action string) error {
	op := "submit " + strings.TrimSuffix(action, "s")
	path := "/devs/" + url.PathEscape(targetID) + "/" + action

	resp, err := c.do(ctx, http.MethodPost, path, user, nil)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer drain(resp)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode == http.StatusConflict:
		// already decided on the server
		return nil
	case resp.StatusCode == http.StatusNotFound:
		// the target dev is gone; the session itself is still valid
		return &NetworkError{Op: op, Status: resp.StatusCode}
	case isAuthStatus(resp.StatusCode):
		return &AuthError{Status: resp.StatusCode}
	default:
		return &NetworkError{Op: op, Status: resp.StatusCode}
	}
}

func (c *Client) do(ctx context.Context, method, path string, user models.User, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if user.ID != "" {
		req.Header.Set(UserHeader, user.ID)
	}
	if user.Token != "" {
		req.Header.Set("Authorization", "Bearer "+user.Token)
	}
	reqID := uuid.NewString()
	req.Header.Set(requestIDHeader, reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("api request failed", "method", method, "path", path, "request_id", reqID, "error", err)
		return nil, err
	}
	c.log.Debug("api request", "method", method, "path", path, "status", resp.StatusCode,
		"request_id", reqID, "elapsed", time.Since(start))
	return resp, nil
}

func isAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// tokenExpiry reads the expiry of a bearer token without verifying it. The
// client cannot verify the signature; the expiry only decides whether a stored
// session is still worth resuming.
func tokenExpiry(tokenStr string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return time.Time{}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		return exp.Time
	}
	// tokens minted with an "expires" unix claim
	if fv, ok := claims["expires"].(float64); ok {
		return time.Unix(int64(fv), 0)
	}
	return time.Time{}
}
