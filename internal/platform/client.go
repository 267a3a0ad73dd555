// Package platform is the authenticated client for the channel platform
// (Dispatcharr). It owns the token lifecycle and exposes idempotent
// get-or-create primitives for groups, streams and channels.
package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jjenkins/scorestream/internal/apperr"
	"github.com/jjenkins/scorestream/internal/config"
	"github.com/jjenkins/scorestream/internal/metrics"
)

const (
	tokenPath        = "/api/accounts/token/"
	tokenRefreshPath = "/api/accounts/token/refresh/"

	defaultRetryInterval = time.Second
	maxErrorBody         = 512
)

// Client talks to the platform REST API. It is safe for concurrent use.
type Client struct {
	baseURL       string
	username      string
	password      string
	httpClient    *http.Client
	quickTimeout  time.Duration
	listTimeout   time.Duration
	authRetries   int
	tokenTTL      time.Duration
	safetyMargin  time.Duration
	retryInterval time.Duration
	logger        *zap.Logger
	now           func() time.Time

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	authFlight   singleflight.Group
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryInterval sets the first backoff interval between login attempts
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) {
		c.retryInterval = d
	}
}

// New creates a platform client from configuration
func New(cfg config.PlatformConfig, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimSuffix(cfg.URL, "/"),
		username:      cfg.Username,
		password:      cfg.Password,
		httpClient:    &http.Client{},
		quickTimeout:  cfg.QuickTimeout,
		listTimeout:   cfg.ListTimeout,
		authRetries:   cfg.AuthRetries,
		tokenTTL:      cfg.TokenTTL,
		safetyMargin:  cfg.TokenSafetyMargin,
		retryInterval: defaultRetryInterval,
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.authRetries < 1 {
		c.authRetries = 1
	}
	return c
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Authenticate logs in with the configured credentials, retrying transient
// failures up to the configured attempt count. Rejected credentials are not
// retried.
func (c *Client) Authenticate(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval

	tok, err := backoff.Retry(ctx, func() (tokenResponse, error) {
		var tok tokenResponse
		status, err := c.send(ctx, http.MethodPost, tokenPath, map[string]string{
			"username": c.username,
			"password": c.password,
		}, &tok, c.quickTimeout, false)
		if status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden {
			return tok, backoff.Permanent(apperr.Auth("platform.Authenticate", errors.New("credentials rejected")))
		}
		if err != nil {
			return tok, err
		}
		if tok.Access == "" {
			return tok, backoff.Permanent(apperr.Auth("platform.Authenticate", errors.New("token response has no access token")))
		}
		return tok, nil
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.authRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("platform login failed, retrying", zap.Error(err), zap.Duration("next", next))
		}),
	)
	if err != nil {
		metrics.PlatformAuth.WithLabelValues("login", "failure").Inc()
		if errors.Is(err, apperr.ErrAuthFailure) {
			return err
		}
		return apperr.Auth("platform.Authenticate", err)
	}

	c.setTokens(tok.Access, tok.Refresh)
	metrics.PlatformAuth.WithLabelValues("login", "success").Inc()
	c.logger.Info("authenticated with platform")
	return nil
}

// Refresh exchanges the held refresh token for a new access token
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()

	if refresh == "" {
		return apperr.Auth("platform.Refresh", errors.New("no refresh token held"))
	}

	var tok tokenResponse
	if _, err := c.send(ctx, http.MethodPost, tokenRefreshPath, map[string]string{"refresh": refresh},
		&tok, c.quickTimeout, false); err != nil {
		metrics.PlatformAuth.WithLabelValues("refresh", "failure").Inc()
		return apperr.Auth("platform.Refresh", err)
	}
	if tok.Access == "" {
		metrics.PlatformAuth.WithLabelValues("refresh", "failure").Inc()
		return apperr.Auth("platform.Refresh", errors.New("refresh response has no access token"))
	}

	if tok.Refresh == "" {
		tok.Refresh = refresh
	}
	c.setTokens(tok.Access, tok.Refresh)
	metrics.PlatformAuth.WithLabelValues("refresh", "success").Inc()
	return nil
}

// EnsureAuth makes sure a valid access token is held: it refreshes when a
// refresh token is available and falls back to a full login otherwise.
// Concurrent callers share one token acquisition, which runs detached from
// any single caller's context; a caller whose ctx ends stops waiting
// without aborting it for the others.
func (c *Client) EnsureAuth(ctx context.Context) error {
	if c.tokenValid() {
		return nil
	}

	ch := c.authFlight.DoChan("auth", func() (any, error) {
		if c.tokenValid() {
			return nil, nil
		}

		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.authBudget())
		defer cancel()

		c.mu.Lock()
		hasRefresh := c.refreshToken != ""
		c.mu.Unlock()

		if hasRefresh {
			err := c.Refresh(flightCtx)
			if err == nil {
				return nil, nil
			}
			c.logger.Info("token refresh failed, logging in again", zap.Error(err))
		}
		return nil, c.Authenticate(flightCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// authBudget bounds one shared token acquisition: a refresh plus every
// login attempt and the waits between them
func (c *Client) authBudget() time.Duration {
	return time.Duration(c.authRetries+1)*(c.quickTimeout+2*c.retryInterval) + c.quickTimeout
}

// KeepAlive calls EnsureAuth every interval until ctx is cancelled so the
// token is renewed before a sync needs it. Failures are logged and retried
// on the next tick.
func (c *Client) KeepAlive(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.EnsureAuth(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("platform token renewal failed", zap.Error(err))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// invalidate drops the access token so the next EnsureAuth renews it
func (c *Client) invalidate() {
	c.mu.Lock()
	c.accessToken = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *Client) tokenValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken != "" && c.now().Before(c.expiresAt)
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// setTokens stores a token pair. Expiry comes from the access token's exp
// claim when it carries one, else the configured TTL, less the safety margin.
func (c *Client) setTokens(access, refresh string) {
	expiry := c.now().Add(c.tokenTTL)
	if token, _, err := jwt.NewParser().ParseUnverified(access, jwt.MapClaims{}); err == nil {
		if exp, err := token.Claims.GetExpirationTime(); err == nil && exp != nil {
			expiry = exp.Time
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = access
	c.refreshToken = refresh
	c.expiresAt = expiry.Add(-c.safetyMargin)
}

// do sends an authenticated request. A 401 drops the token, renews it and
// retries the request once.
func (c *Client) do(ctx context.Context, method, path string, body, out any, timeout time.Duration) error {
	if err := c.EnsureAuth(ctx); err != nil {
		return err
	}

	status, err := c.send(ctx, method, path, body, out, timeout, true)
	if status != http.StatusUnauthorized {
		return err
	}

	c.logger.Debug("platform rejected token, re-authenticating", zap.String("path", path))
	c.invalidate()
	if err := c.EnsureAuth(ctx); err != nil {
		return err
	}
	_, err = c.send(ctx, method, path, body, out, timeout, true)
	return err
}

// send performs one request with its own timeout. It returns the HTTP
// status (0 when no response arrived) and an apperr.ErrUpstreamUnavailable
// error for transport failures and non-2xx responses.
func (c *Client) send(ctx context.Context, method, path string, body, out any, timeout time.Duration, authed bool) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	op := "platform " + method + " " + path
	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		url = c.baseURL + path
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.token())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, apperr.Unavailable(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, apperr.Unavailable(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return resp.StatusCode, apperr.Unavailable(op, fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet))
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}
