// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraymcp/core/pkg/errdefs"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromLookup(t *testing.T) {
	creds, err := FromLookup(lookupFrom(map[string]string{
		EnvClientID:     "client-id-1234",
		EnvClientSecret: "topsecretvalue99",
	}))
	require.NoError(t, err)

	assert.Equal(t, "client-id-1234", creds.ClientID())
	assert.Equal(t, "topsecretvalue99", creds.ClientSecret())
	assert.Equal(t, DefaultBaseURL, creds.BaseURL())
}

func TestFromLookupCustomBaseURL(t *testing.T) {
	creds, err := FromLookup(lookupFrom(map[string]string{
		EnvClientID:     "id",
		EnvClientSecret: "secret",
		EnvBaseURL:      "https://jira.example.com/",
	}))
	require.NoError(t, err)
	assert.Equal(t, "https://jira.example.com", creds.BaseURL())
}

func TestValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing client id", map[string]string{EnvClientSecret: "s"}},
		{"empty client id", map[string]string{EnvClientID: "  ", EnvClientSecret: "s"}},
		{"missing secret", map[string]string{EnvClientID: "id"}},
		{"relative base url", map[string]string{EnvClientID: "id", EnvClientSecret: "s", EnvBaseURL: "xray.cloud.getxray.app"}},
		{"http base url", map[string]string{EnvClientID: "id", EnvClientSecret: "s", EnvBaseURL: "http://insecure.example.com"}},
		{"unparseable base url", map[string]string{EnvClientID: "id", EnvClientSecret: "s", EnvBaseURL: "https://bad url\x7f"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromLookup(lookupFrom(tc.env))
			require.Error(t, err)
			assert.True(t, errdefs.IsConfig(err), "expected ConfigError, got %v", err)
		})
	}
}

func TestSecretNeverRenderedPlain(t *testing.T) {
	creds, err := New("client-id-1234", "hunter2hunter2hunter2", "")
	require.NoError(t, err)

	rendered := fmt.Sprintf("%v %s", creds, creds.String())
	assert.NotContains(t, rendered, "hunter2hunter2hunter2")
	assert.Contains(t, rendered, "hunt...ter2")

	logRendered := creds.LogValue().String()
	assert.NotContains(t, logRendered, "hunter2hunter2hunter2")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "***", MaskSecret(""))
	assert.Equal(t, "***", MaskSecret("short"))
	assert.Equal(t, "***", MaskSecret("12345678"))
	assert.Equal(t, "abcd...wxyz", MaskSecret("abcdefgh-qrst-wxyz"))
}
