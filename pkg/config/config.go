// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

// Package config parses the Xray API credentials and base URL from the
// environment and carries them as an immutable value. The secret never
// leaves the package unmasked through String, Format, or slog output.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/xraymcp/core/pkg/errdefs"
)

// DefaultBaseURL is the Xray Cloud endpoint used when XRAY_BASE_URL is unset.
const DefaultBaseURL = "https://xray.cloud.getxray.app"

// Environment keys read by FromEnv.
const (
	EnvClientID     = "XRAY_CLIENT_ID"
	EnvClientSecret = "XRAY_CLIENT_SECRET"
	EnvBaseURL      = "XRAY_BASE_URL"
)

// Credentials holds the client id/secret pair and the upstream base URL.
// Values are fixed at construction; there are no setters.
type Credentials struct {
	clientID     string
	clientSecret string
	baseURL      string
}

// New validates the given values and returns an immutable Credentials.
// An empty baseURL selects DefaultBaseURL. The base URL must be an absolute
// https URL; a trailing slash is trimmed.
func New(clientID, clientSecret, baseURL string) (*Credentials, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, errdefs.Configf("%s is required and must not be empty", EnvClientID)
	}
	if strings.TrimSpace(clientSecret) == "" {
		return nil, errdefs.Configf("%s is required and must not be empty", EnvClientSecret)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errdefs.Configf("%s %q is not a valid URL: %v", EnvBaseURL, baseURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, errdefs.Configf("%s %q must be an absolute URL", EnvBaseURL, baseURL)
	}
	if u.Scheme != "https" {
		return nil, errdefs.Configf("%s %q must use https", EnvBaseURL, baseURL)
	}
	return &Credentials{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      strings.TrimRight(baseURL, "/"),
	}, nil
}

// FromEnv builds Credentials from the process environment.
func FromEnv() (*Credentials, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds Credentials from an environment-like key/value source.
func FromLookup(lookup func(string) (string, bool)) (*Credentials, error) {
	clientID, _ := lookup(EnvClientID)
	clientSecret, _ := lookup(EnvClientSecret)
	baseURL, _ := lookup(EnvBaseURL)
	return New(clientID, clientSecret, baseURL)
}

// ClientID returns the Xray API client id.
func (c *Credentials) ClientID() string { return c.clientID }

// ClientSecret returns the Xray API client secret.
func (c *Credentials) ClientSecret() string { return c.clientSecret }

// BaseURL returns the upstream base URL without a trailing slash.
func (c *Credentials) BaseURL() string { return c.baseURL }

// String renders the credentials with the secret masked.
func (c *Credentials) String() string {
	return fmt.Sprintf("Credentials(client_id=%s, client_secret=%s, base_url=%s)",
		truncateID(c.clientID), MaskSecret(c.clientSecret), c.baseURL)
}

// LogValue makes slog render the masked form even when the value is logged
// directly as an attribute.
func (c *Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("client_id", truncateID(c.clientID)),
		slog.String("client_secret", MaskSecret(c.clientSecret)),
		slog.String("base_url", c.baseURL),
	)
}

// MaskSecret renders a secret as its first and last four runes with the
// middle elided, or "***" when it is too short for that to hide anything.
func MaskSecret(secret string) string {
	r := []rune(secret)
	if len(r) <= 8 {
		return "***"
	}
	return string(r[:4]) + "..." + string(r[len(r)-4:])
}

func truncateID(id string) string {
	r := []rune(id)
	if len(r) <= 8 {
		return id
	}
	return string(r[:8]) + "..."
}
