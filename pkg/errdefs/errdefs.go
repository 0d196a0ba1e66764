// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

// Package errdefs defines the closed set of error kinds the server surfaces
// to tool callers, helpers to classify errors into those kinds, and the
// two-field envelope every failed tool call returns.
//
// Errors are classified by wrapping: a kind constructor attaches a Kind to
// an existing error without altering its message or its Unwrap chain. Deep
// layers raise classified errors; nothing between them and the tool facade
// logs, swallows, or re-labels them.
package errdefs

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the wire value of the envelope's "type" field.
type Kind string

const (
	// KindConfig marks missing or invalid credentials or base URL at startup.
	KindConfig Kind = "ConfigError"
	// KindAuthentication marks a failed refresh RPC, rejected credentials,
	// or two 401 responses in a row.
	KindAuthentication Kind = "AuthenticationError"
	// KindNetwork marks transport-level failures: DNS, TCP, TLS, timeout,
	// cancellation.
	KindNetwork Kind = "NetworkError"
	// KindGraphQL marks an upstream non-2xx response or a 2xx response
	// carrying an errors array.
	KindGraphQL Kind = "GraphQLError"
	// KindValidation marks malformed arguments, JQL failing the whitelist,
	// or an unparseable JSON-string argument.
	KindValidation Kind = "ValidationError"
	// KindResolution marks an issue key no resource kind could resolve.
	KindResolution Kind = "ResolutionError"
	// KindNotFound marks a recognizable "no such entity" upstream response,
	// as distinct from an empty search result.
	KindNotFound Kind = "NotFoundError"
)

// Valid reports whether k is one of the kinds the wire envelope may carry.
func (k Kind) Valid() bool {
	switch k {
	case KindConfig, KindAuthentication, KindNetwork, KindGraphQL,
		KindValidation, KindResolution, KindNotFound:
		return true
	}
	return false
}

type classified struct {
	kind Kind
	err  error
}

func (c *classified) Error() string { return c.err.Error() }

func (c *classified) Unwrap() error { return c.err }

func withKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: kind, err: err}
}

// Config marks err as a configuration error.
func Config(err error) error { return withKind(KindConfig, err) }

// Configf formats a new configuration error. The format verb %w is honored.
func Configf(format string, args ...any) error {
	return withKind(KindConfig, fmt.Errorf(format, args...))
}

// Authentication marks err as an authentication error.
func Authentication(err error) error { return withKind(KindAuthentication, err) }

// Authenticationf formats a new authentication error.
func Authenticationf(format string, args ...any) error {
	return withKind(KindAuthentication, fmt.Errorf(format, args...))
}

// Network marks err as a transport failure.
func Network(err error) error { return withKind(KindNetwork, err) }

// Networkf formats a new transport failure.
func Networkf(format string, args ...any) error {
	return withKind(KindNetwork, fmt.Errorf(format, args...))
}

// GraphQL marks err as an upstream GraphQL failure.
func GraphQL(err error) error { return withKind(KindGraphQL, err) }

// GraphQLf formats a new upstream GraphQL failure.
func GraphQLf(format string, args ...any) error {
	return withKind(KindGraphQL, fmt.Errorf(format, args...))
}

// Validation marks err as an input validation failure.
func Validation(err error) error { return withKind(KindValidation, err) }

// Validationf formats a new input validation failure.
func Validationf(format string, args ...any) error {
	return withKind(KindValidation, fmt.Errorf(format, args...))
}

// Resolution marks err as an exhausted identifier resolution.
func Resolution(err error) error { return withKind(KindResolution, err) }

// Resolutionf formats a new exhausted identifier resolution.
func Resolutionf(format string, args ...any) error {
	return withKind(KindResolution, fmt.Errorf(format, args...))
}

// NotFound marks err as a missing-entity response.
func NotFound(err error) error { return withKind(KindNotFound, err) }

// NotFoundf formats a new missing-entity response.
func NotFoundf(format string, args ...any) error {
	return withKind(KindNotFound, fmt.Errorf(format, args...))
}

// IsConfig reports whether err is classified as a configuration error.
func IsConfig(err error) bool { return is(err, KindConfig) }

// IsAuthentication reports whether err is classified as an authentication error.
func IsAuthentication(err error) bool { return is(err, KindAuthentication) }

// IsNetwork reports whether err is classified as a transport failure.
func IsNetwork(err error) bool { return is(err, KindNetwork) }

// IsGraphQL reports whether err is classified as an upstream GraphQL failure.
func IsGraphQL(err error) bool { return is(err, KindGraphQL) }

// IsValidation reports whether err is classified as an input validation failure.
func IsValidation(err error) bool { return is(err, KindValidation) }

// IsResolution reports whether err is classified as an exhausted resolution.
func IsResolution(err error) bool { return is(err, KindResolution) }

// IsNotFound reports whether err is classified as a missing-entity response.
func IsNotFound(err error) bool { return is(err, KindNotFound) }

func is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// KindOf walks err's Unwrap chain and returns the outermost attached Kind.
func KindOf(err error) (Kind, bool) {
	var c *classified
	if errors.As(err, &c) {
		return c.kind, true
	}
	return "", false
}

// Classify is the total version of KindOf used at the facade boundary.
// Context cancellation and deadline expiry count as transport failures;
// anything else unclassified is treated as an upstream fault.
func Classify(err error) Kind {
	if k, ok := KindOf(err); ok {
		return k
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindGraphQL
}

// Envelope is the only shape a failed tool call returns.
type Envelope struct {
	Error string `json:"error"`
	Type  Kind   `json:"type"`
}

// ToEnvelope converts any error into the wire envelope.
func ToEnvelope(err error) Envelope {
	return Envelope{Error: err.Error(), Type: Classify(err)}
}
