// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

// Package auth obtains and caches the Xray Cloud bearer token.
//
// The token is fetched from the authenticate endpoint with the configured
// client id/secret pair, cached until shortly before its JWT expiry, and
// refreshed on demand. Concurrent callers holding a cold or expired cache
// share exactly one refresh RPC.
package auth

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/singleflight"

	"github.com/xraymcp/core/pkg/config"
	"github.com/xraymcp/core/pkg/errdefs"
	"github.com/xraymcp/core/pkg/logging"
)

var fastJSON = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// expirySkew is how long before the JWT exp a token is already treated
	// as expired, covering clock drift and in-flight request time.
	expirySkew = 5 * time.Minute

	// defaultTokenTTL schedules the next refresh when the token carries no
	// readable exp claim.
	defaultTokenTTL = time.Hour

	// refreshTimeout bounds the detached refresh RPC.
	refreshTimeout = 30 * time.Second

	maxAuthResponseBytes = 1 << 20
)

type authRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Manager holds the cached bearer token for one set of credentials.
//
// Token returns the cached value while it is fresh and otherwise refreshes
// it, collapsing concurrent refreshes into a single upstream call. The
// refresh itself never retries; callers that need the 401-invalidate-retry
// cycle implement it on top of Invalidate.
type Manager struct {
	creds      *config.Credentials
	endpoint   string
	httpClient *http.Client

	flight singleflight.Group

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

// Option adjusts a Manager at construction time.
type Option func(*Manager)

// WithHTTPClient replaces the transport used for the authenticate RPC.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// New builds a Manager for the given credentials.
func New(creds *config.Credentials, opts ...Option) *Manager {
	m := &Manager{
		creds:      creds,
		endpoint:   creds.BaseURL() + "/api/v2/authenticate",
		httpClient: &http.Client{Timeout: refreshTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns a bearer token that is valid for at least the expiry skew.
// A cold or stale cache triggers a refresh; concurrent callers join the same
// in-flight refresh and share its outcome. A caller whose context ends while
// waiting gets its context error without disturbing the shared refresh.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if tok, ok := m.current(); ok {
		return tok, nil
	}

	v, err, _ := m.flight.Do("token", func() (any, error) {
		// A previous flight may have refreshed while this caller queued.
		if tok, ok := m.current(); ok {
			return tok, nil
		}
		return m.refresh(ctx)
	})
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate discards the cached token so the next Token call refreshes.
// The client calls this after an upstream 401 before its single retry.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.token = ""
	m.expiresAt = time.Time{}
	m.mu.Unlock()
}

func (m *Manager) current() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return "", false
	}
	if !m.now().Before(m.expiresAt.Add(-expirySkew)) {
		return "", false
	}
	return m.token, true
}

// refresh performs the authenticate RPC and installs the result. It runs on
// a context detached from the triggering caller so that cancelling one
// waiter does not fail the flight every other waiter shares.
func (m *Manager) refresh(ctx context.Context) (string, error) {
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
	defer cancel()

	payload, err := fastJSON.Marshal(authRequest{
		ClientID:     m.creds.ClientID(),
		ClientSecret: m.creds.ClientSecret(),
	})
	if err != nil {
		return "", errdefs.Authenticationf("encoding authentication request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", errdefs.Authenticationf("building authentication request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", errdefs.Authenticationf("Network error during authentication: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthResponseBytes))
	if err != nil {
		return "", errdefs.Authenticationf("Network error during authentication: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, body)
	}

	tok, err := decodeToken(body)
	if err != nil {
		return "", err
	}

	exp := tokenExpiry(tok, m.now())
	m.mu.Lock()
	m.token = tok
	m.expiresAt = exp
	m.mu.Unlock()

	logging.GetLogger().Debug("authentication token refreshed", "expiresAt", exp)
	return tok, nil
}

func statusError(status int, body []byte) error {
	switch status {
	case http.StatusBadRequest:
		return errdefs.Authenticationf("Bad request: Wrong request syntax")
	case http.StatusUnauthorized:
		return errdefs.Authenticationf("Unauthorized: Invalid Xray license or credentials")
	case http.StatusInternalServerError:
		return errdefs.Authenticationf("Internal server error during authentication")
	default:
		return errdefs.Authenticationf("Authentication failed with status %d: %s", status, bodySnippet(body))
	}
}

// decodeToken accepts both response shapes the authenticate endpoint has
// produced over time: a bare JSON string and a {"token": ...} object.
func decodeToken(body []byte) (string, error) {
	var bare string
	if err := fastJSON.Unmarshal(body, &bare); err == nil && bare != "" {
		return bare, nil
	}
	var wrapped struct {
		Token string `json:"token"`
	}
	if err := fastJSON.Unmarshal(body, &wrapped); err == nil && wrapped.Token != "" {
		return wrapped.Token, nil
	}
	return "", errdefs.Authenticationf("authentication response carried no token")
}

// tokenExpiry reads the unverified exp claim. The value only schedules the
// next refresh; the upstream rejects bad tokens regardless, so skipping
// signature verification here is safe.
func tokenExpiry(token string, now time.Time) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return now.Add(defaultTokenTTL)
}

func bodySnippet(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
