// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"context"
	"log/slog"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// sensitiveMarkers are substrings that mark an attribute key as carrying
// credential material. Matching is case-insensitive.
var sensitiveMarkers = []string{
	"secret",
	"token",
	"password",
	"authorization",
	"api_key",
	"apikey",
	"credential",
}

// RedactingHandler is a slog.Handler that replaces the values of
// credential-bearing attributes with a placeholder before delegating to the
// wrapped handler. Keys are matched by substring, so "client_secret",
// "XRAY_CLIENT_SECRET" and "bearer_token" are all caught. Groups are
// redacted recursively.
type RedactingHandler struct {
	inner slog.Handler
}

// NewRedactingHandler wraps inner with credential redaction.
func NewRedactingHandler(inner slog.Handler) *RedactingHandler {
	return &RedactingHandler{inner: inner}
}

// Enabled reports whether the wrapped handler handles records at the given level.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle redacts the record's attributes and forwards it to the wrapped handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	redacted := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, redacted)
}

// WithAttrs returns a new handler whose wrapped handler carries the redacted attrs.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(out)}
}

// WithGroup returns a new handler with the given group opened on the wrapped handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	val := a.Value.Resolve()
	if val.Kind() == slog.KindGroup {
		members := val.Group()
		out := make([]slog.Attr, len(members))
		for i, m := range members {
			out[i] = redactAttr(m)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, redactedPlaceholder)
	}
	return slog.Attr{Key: a.Key, Value: val}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
