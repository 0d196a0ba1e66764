// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

// Package resolver maps user-facing Jira issue keys to the numeric ids the
// Xray GraphQL API expects.
//
// A key like "PROJ-123" can denote a test, a test set, a test execution, a
// test plan, or a plain coverable issue, and each kind answers a different
// lookup query. The resolver tries the hinted kind first, falls back through
// the remaining kinds in a fixed order, and caches every successful
// resolution for the lifetime of the process. Already-numeric ids pass
// through untouched without an upstream call or a cache write.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jellydator/ttlcache/v3"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/xraymcp/core/pkg/errdefs"
	"github.com/xraymcp/core/pkg/logging"
)

// Kind names the resource kinds a key can resolve against. The zero value
// means no hint.
type Kind string

const (
	KindNone           Kind = ""
	KindTest           Kind = "Test"
	KindTestSet        Kind = "TestSet"
	KindTestExecution  Kind = "TestExecution"
	KindTestPlan       Kind = "TestPlan"
	KindCoverableIssue Kind = "CoverableIssue"
)

// fallbackOrder is the fixed probe order on a cache miss. A hint moves its
// kind to the front; the rest keep this order.
var fallbackOrder = []Kind{KindTest, KindTestSet, KindTestExecution, KindTestPlan, KindCoverableIssue}

// queryField returns the GraphQL root field answering lookups for the kind.
func (k Kind) queryField() string {
	switch k {
	case KindTest:
		return "getTests"
	case KindTestSet:
		return "getTestSets"
	case KindTestExecution:
		return "getTestExecutions"
	case KindTestPlan:
		return "getTestPlans"
	case KindCoverableIssue:
		return "getCoverableIssues"
	}
	return ""
}

var (
	numericID = regexp.MustCompile(`^\d+$`)
	issueKey  = regexp.MustCompile(`^[A-Z][A-Z0-9_]*-\d+$`)
)

// Executor dispatches one GraphQL operation. *xray.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, operation string, variables map[string]any) (json.RawMessage, error)
}

// Resolver resolves issue keys to numeric ids with a process-lifetime cache.
// Safe for concurrent use.
type Resolver struct {
	client Executor
	cache  *ttlcache.Cache[string, string]
}

// New builds a Resolver on top of the given GraphQL executor.
func New(client Executor) *Resolver {
	return &Resolver{
		client: client,
		// Entries never expire; resolved ids are immutable upstream.
		cache: ttlcache.New[string, string](),
	}
}

// Resolve returns the numeric id for key. A numeric key is returned as-is.
// A malformed key is rejected with ValidationError before any upstream
// traffic. When every lookup kind comes back empty the key is reported as
// unresolvable with ResolutionError; upstream failures propagate unchanged.
func (r *Resolver) Resolve(ctx context.Context, key string, hint Kind) (string, error) {
	if numericID.MatchString(key) {
		return key, nil
	}
	if !issueKey.MatchString(key) {
		return "", errdefs.Validationf("Invalid issue key: %s", key)
	}

	if hint != KindNone {
		if id, ok := r.cached(key, hint); ok {
			return id, nil
		}
	}
	if id, ok := r.cached(key, KindNone); ok {
		return id, nil
	}

	for _, kind := range lookupOrder(hint) {
		id, found, err := r.lookup(ctx, key, kind)
		if err != nil {
			return "", err
		}
		if found {
			r.store(key, hint, kind, id)
			logging.GetLogger().Debug("resolved issue key", "key", key, "kind", kind, "issueId", id)
			return id, nil
		}
	}
	return "", errdefs.Resolutionf("Could not resolve %s to an issue id", key)
}

func lookupOrder(hint Kind) []Kind {
	if hint == KindNone {
		return fallbackOrder
	}
	return append([]Kind{hint}, lo.Without(fallbackOrder, hint)...)
}

// lookup probes one kind. The jql is assembled only from the already
// regex-validated key, so no other user input reaches the query string.
func (r *Resolver) lookup(ctx context.Context, key string, kind Kind) (string, bool, error) {
	field := kind.queryField()
	operation := fmt.Sprintf(`query ResolveIssueId($jql: String!) {
		%s(jql: $jql, limit: 1) {
			results {
				issueId
			}
		}
	}`, field)

	data, err := r.client.Execute(ctx, operation, map[string]any{
		"jql": fmt.Sprintf("key = %q", key),
	})
	if err != nil {
		return "", false, err
	}

	id := gjson.GetBytes(data, field+".results.0.issueId")
	if !id.Exists() || id.String() == "" {
		return "", false, nil
	}
	return id.String(), true, nil
}

func (r *Resolver) cached(key string, kind Kind) (string, bool) {
	item := r.cache.Get(cacheKey(key, kind))
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// store records a hit under the hint it was asked with, the kind it resolved
// as, and the wildcard slot, so later calls hit regardless of their hint.
func (r *Resolver) store(key string, hint, resolved Kind, id string) {
	r.cache.Set(cacheKey(key, resolved), id, ttlcache.NoTTL)
	r.cache.Set(cacheKey(key, KindNone), id, ttlcache.NoTTL)
	if hint != KindNone {
		r.cache.Set(cacheKey(key, hint), id, ttlcache.NoTTL)
	}
}

func cacheKey(key string, kind Kind) string {
	if kind == KindNone {
		return key + "\x00*"
	}
	return key + "\x00" + string(kind)
}
