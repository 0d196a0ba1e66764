// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/xraymcp/core/pkg/errdefs"
	"github.com/xraymcp/core/pkg/resolver"
)

// Executor runs GraphQL operations against Xray.
type Executor interface {
	Execute(ctx context.Context, operation string, variables map[string]any) (json.RawMessage, error)
}

// KeyResolver maps Jira issue keys to the numeric ids Xray expects.
type KeyResolver interface {
	Resolve(ctx context.Context, key string, hint resolver.Kind) (string, error)
}

// Deps carries the collaborators shared by every tool family.
type Deps struct {
	Client   Executor
	Resolver KeyResolver
}

func (d Deps) resolve(ctx context.Context, key string, hint resolver.Kind) (string, error) {
	return d.Resolver.Resolve(ctx, key, hint)
}

// resolveAll resolves a batch of issue keys, failing on the first bad key.
// A nil or empty batch stays nil so optional GraphQL variables remain null.
func (d Deps) resolveAll(ctx context.Context, keys []string, hint resolver.Kind) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		id, err := d.Resolver.Resolve(ctx, key, hint)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// entity extracts a subtree that addresses exactly one resource. The API
// answers null for an id that does not exist, which surfaces here as
// NotFoundError rather than an empty result.
func entity(data json.RawMessage, path, what, id string) (json.RawMessage, error) {
	node := gjson.GetBytes(data, path)
	if !node.Exists() || node.Type == gjson.Null {
		return nil, errdefs.NotFoundf("%s %s not found", what, id)
	}
	return json.RawMessage(node.Raw), nil
}

// subtree extracts a subtree from a search or mutation payload. Absence
// means the upstream answered 200 with a shape we cannot use.
func subtree(data json.RawMessage, path, failure string) (json.RawMessage, error) {
	node := gjson.GetBytes(data, path)
	if !node.Exists() || node.Type == gjson.Null {
		return nil, errdefs.GraphQLf("%s", failure)
	}
	return json.RawMessage(node.Raw), nil
}

// asMap decodes a raw subtree so callers can graft extra keys onto it.
func asMap(raw json.RawMessage) (map[string]any, error) {
	var out map[string]any
	if err := fastJSON.Unmarshal(raw, &out); err != nil {
		return nil, errdefs.GraphQLf("Unexpected response shape: %v", err)
	}
	return out, nil
}

// nullable turns "" into a JSON null for optional GraphQL variables.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableSlice turns an empty list into a JSON null.
func nullableSlice(items []string) any {
	if items == nil {
		return nil
	}
	return items
}
