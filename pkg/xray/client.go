// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

// Package xray executes GraphQL operations against the Xray Cloud API.
//
// The client owns a single pooled HTTP client for its lifetime, attaches the
// bearer token from its token source to every request, and maps every failure
// mode onto the errdefs taxonomy: transport problems become NetworkError,
// upstream rejections and malformed payloads become GraphQLError, and an
// Unauthorized response triggers exactly one token refresh and retry before
// surfacing AuthenticationError.
package xray

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"

	"github.com/xraymcp/core/pkg/errdefs"
	"github.com/xraymcp/core/pkg/logging"
)

var fastJSON = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	graphqlPath = "/api/v2/graphql"

	defaultRequestTimeout = 30 * time.Second

	// defaultMaxResponseBytes bounds how much of an upstream response is
	// read into memory. Oversized bodies are rejected, not truncated.
	defaultMaxResponseBytes = 10 << 20
)

// TokenSource supplies bearer tokens for upstream requests and accepts
// invalidation when the upstream rejects one. *auth.Manager satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Client is a thin GraphQL transport for the Xray Cloud API. All tool
// handlers funnel through Execute; the client itself knows nothing about
// individual operations.
type Client struct {
	endpoint   string
	tokens     TokenSource
	httpClient *http.Client
	maxBody    int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default pooled HTTP client. The caller owns
// timeout configuration on the replacement.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithMaxResponseBytes overrides the response size cap.
func WithMaxResponseBytes(n int64) Option {
	return func(cl *Client) { cl.maxBody = n }
}

// New builds a Client for the given base URL (scheme://host, no trailing
// slash) and token source.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + graphqlPath,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		maxBody:    defaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []ErrorEntry    `json:"errors"`
}

// ErrorEntry is one element of a GraphQL errors array.
type ErrorEntry struct {
	Message    string          `json:"message"`
	Path       []any           `json:"path,omitempty"`
	Extensions json.RawMessage `json:"extensions,omitempty"`
}

// UpstreamError preserves the complete errors array of a GraphQL response.
// Its message concatenates the individual upstream messages.
type UpstreamError struct {
	Errors []ErrorEntry
}

func (e *UpstreamError) Error() string {
	msgs := lo.Map(e.Errors, func(entry ErrorEntry, _ int) string { return entry.Message })
	return "GraphQL errors: " + strings.Join(msgs, "; ")
}

// Execute posts one GraphQL operation and returns the raw data subtree.
//
// A 401 invalidates the cached token, fetches a fresh one, and retries the
// request exactly once; a second 401 is surfaced as AuthenticationError.
// Responses outside 2xx, responses carrying an errors array, and bodies over
// the size cap all return GraphQLError. Transport failures, including caller
// cancellation, return NetworkError.
func (c *Client) Execute(ctx context.Context, operation string, variables map[string]any) (json.RawMessage, error) {
	payload, err := fastJSON.Marshal(graphqlRequest{Query: operation, Variables: variables})
	if err != nil {
		return nil, errdefs.Validation(fmt.Errorf("marshal GraphQL request: %w", err))
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	status, body, err := c.post(ctx, token, payload)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		logging.GetLogger().Debug("graphql request unauthorized, refreshing token")
		c.tokens.Invalidate()
		token, err = c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		status, body, err = c.post(ctx, token, payload)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, errdefs.Authenticationf("Authentication failed after token refresh")
		}
	}

	return decodeResponse(status, body, c.maxBody)
}

// post sends one request and reads the body through the size cap. It never
// retries; Execute owns the single 401 retry.
func (c *Client) post(ctx context.Context, token string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, errdefs.Network(fmt.Errorf("build GraphQL request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, errdefs.Network(fmt.Errorf("GraphQL request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return 0, nil, errdefs.Network(fmt.Errorf("read GraphQL response: %w", err))
	}
	return resp.StatusCode, body, nil
}

func decodeResponse(status int, body []byte, maxBody int64) (json.RawMessage, error) {
	if int64(len(body)) > maxBody {
		return nil, errdefs.GraphQLf("GraphQL response exceeds the %d byte limit", maxBody)
	}
	if status < 200 || status >= 300 {
		return nil, errdefs.GraphQLf("GraphQL request failed with status %d: %s", status, bodySnippet(body))
	}

	var out graphqlResponse
	if err := fastJSON.Unmarshal(body, &out); err != nil {
		return nil, errdefs.GraphQL(fmt.Errorf("decode GraphQL response: %w", err))
	}
	if len(out.Errors) > 0 {
		return nil, errdefs.GraphQL(&UpstreamError{Errors: out.Errors})
	}
	return out.Data, nil
}

func bodySnippet(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
