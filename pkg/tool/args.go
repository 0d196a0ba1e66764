// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"encoding/json"
	"math"

	"github.com/samber/lo"

	"github.com/xraymcp/core/pkg/errdefs"
)

// defaultLimit is the page size used when a tool caller does not ask for one.
const defaultLimit = 100

// Args holds a tool call's decoded arguments. Values carry the shapes
// encoding/json produces: string, float64, bool, nil, map[string]any and
// []any.
type Args map[string]any

func decodeArgs(raw json.RawMessage) (Args, error) {
	if len(raw) == 0 {
		return Args{}, nil
	}
	var args Args
	if err := fastJSON.Unmarshal(raw, &args); err != nil {
		return nil, errdefs.Validationf("Tool arguments must be a JSON object: %v", err)
	}
	if args == nil {
		args = Args{}
	}
	return args, nil
}

// Has reports whether key is present with a non-null value.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// String returns a required string argument.
func (a Args) String(key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", errdefs.Validationf("Missing required argument: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", errdefs.Validationf("Argument %s must be a string", key)
	}
	return s, nil
}

// OptionalString returns a string argument, or "" when it is absent or null.
func (a Args) OptionalString(key string) (string, error) {
	if !a.Has(key) {
		return "", nil
	}
	return a.String(key)
}

// Int returns an integer argument, or def when it is absent or null.
func (a Args) Int(key string, def int) (int, error) {
	if !a.Has(key) {
		return def, nil
	}
	n, _, err := a.OptionalInt(key)
	return n, err
}

// OptionalInt returns an integer argument and whether it was present.
func (a Args) OptionalInt(key string) (int, bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, false, errdefs.Validationf("Argument %s must be an integer", key)
	}
	return int(f), true, nil
}

// Limit returns the "limit" argument clamped to [1,100], defaulting to 100.
func (a Args) Limit() (int, error) {
	n, err := a.Int("limit", defaultLimit)
	if err != nil {
		return 0, err
	}
	return lo.Clamp(n, 1, defaultLimit), nil
}

// StringSlice returns a list-of-strings argument, or nil when it is absent
// or null.
func (a Args) StringSlice(key string) ([]string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, errdefs.Validationf("Argument %s must be a list of strings", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, errdefs.Validationf("Argument %s must be a list of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

// structured returns a structured-JSON argument. Callers may pass the value
// either as a JSON document or as a string containing one; the string form
// is decoded here. Absent and null both yield nil.
func (a Args) structured(key string) (any, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	var out any
	if err := fastJSON.UnmarshalFromString(s, &out); err != nil {
		return nil, errdefs.Validationf("Invalid JSON in %s: %v", key, err)
	}
	return out, nil
}

// StructuredMap returns a structured-JSON argument as an object, or nil
// when it is absent.
func (a Args) StructuredMap(key string) (map[string]any, error) {
	v, err := a.structured(key)
	if err != nil || v == nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errdefs.Validationf("Argument %s must be a JSON object", key)
	}
	return m, nil
}

// StructuredObjects returns a structured-JSON argument as a list of
// objects, or nil when it is absent.
func (a Args) StructuredObjects(key string) ([]map[string]any, error) {
	v, err := a.structured(key)
	if err != nil || v == nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, errdefs.Validationf("Argument %s must be a list of JSON objects", key)
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, errdefs.Validationf("Each element of %s must be a JSON object", key)
		}
		out = append(out, m)
	}
	return out, nil
}
