// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xraymcp/core/pkg/errdefs"
)

type recordedCall struct {
	operation string
	variables map[string]any
}

// fakeExecutor answers lookup queries from a per-field fixture map and
// records every call it sees.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []recordedCall
	results map[string]string // query field -> issueId ("" = empty page)
	err     error
}

func (f *fakeExecutor) Execute(_ context.Context, operation string, variables map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{operation: operation, variables: variables})
	if f.err != nil {
		return nil, f.err
	}
	for field, id := range f.results {
		if strings.Contains(operation, field) {
			if id == "" {
				return json.RawMessage(fmt.Sprintf(`{"%s":{"results":[]}}`, field)), nil
			}
			return json.RawMessage(fmt.Sprintf(`{"%s":{"results":[{"issueId":"%s"}]}}`, field, id)), nil
		}
	}
	return nil, fmt.Errorf("no fixture for operation %q", operation)
}

func (f *fakeExecutor) calledFields() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		for _, candidate := range []string{"getTestSets", "getTestExecutions", "getTestPlans", "getCoverableIssues", "getTests"} {
			if strings.Contains(c.operation, candidate) {
				fields = append(fields, candidate)
				break
			}
		}
	}
	return fields
}

func emptyAll() map[string]string {
	return map[string]string{
		"getTests": "", "getTestSets": "", "getTestExecutions": "",
		"getTestPlans": "", "getCoverableIssues": "",
	}
}

func TestResolve_NumericKeyPassesThrough(t *testing.T) {
	exec := &fakeExecutor{} // any call would fail on the missing fixture
	r := New(exec)

	id, err := r.Resolve(context.Background(), "1162822", KindTest)
	require.NoError(t, err)
	assert.Equal(t, "1162822", id)
	assert.Empty(t, exec.calls, "numeric keys must not reach the upstream")
	assert.Equal(t, 0, r.cache.Len(), "numeric keys must not be cached")
}

func TestResolve_MalformedKeyRejected(t *testing.T) {
	exec := &fakeExecutor{}
	r := New(exec)

	for _, key := range []string{"proj-123", "PROJ 123", "123-ABC", "PROJ-", "-1", ""} {
		_, err := r.Resolve(context.Background(), key, KindNone)
		require.Error(t, err, key)
		assert.True(t, errdefs.IsValidation(err), key)
	}
	assert.Empty(t, exec.calls)
}

func TestResolve_LooksUpTestKindFirstWithoutHint(t *testing.T) {
	exec := &fakeExecutor{results: map[string]string{"getTests": "1162822"}}
	r := New(exec)

	id, err := r.Resolve(context.Background(), "PROJ-123", KindNone)
	require.NoError(t, err)
	assert.Equal(t, "1162822", id)

	require.Len(t, exec.calls, 1)
	assert.Contains(t, exec.calls[0].operation, "getTests(jql: $jql, limit: 1)")
	assert.Equal(t, `key = "PROJ-123"`, exec.calls[0].variables["jql"])
}

func TestResolve_FallsBackThroughKindsInOrder(t *testing.T) {
	results := emptyAll()
	results["getTestExecutions"] = "2001"
	exec := &fakeExecutor{results: results}
	r := New(exec)

	id, err := r.Resolve(context.Background(), "PROJ-7", KindNone)
	require.NoError(t, err)
	assert.Equal(t, "2001", id)
	assert.Equal(t, []string{"getTests", "getTestSets", "getTestExecutions"}, exec.calledFields(),
		"probing must stop at the first hit")
}

func TestResolve_HintedKindIsProbedFirst(t *testing.T) {
	exec := &fakeExecutor{results: map[string]string{"getTestExecutions": "777001"}}
	r := New(exec)

	id, err := r.Resolve(context.Background(), "PROJ-9", KindTestExecution)
	require.NoError(t, err)
	assert.Equal(t, "777001", id)
	assert.Equal(t, []string{"getTestExecutions"}, exec.calledFields(),
		"the hinted kind must be the first and only probe on a hit")
}

func TestResolve_HintMissSkipsHintInFallback(t *testing.T) {
	results := emptyAll()
	results["getTests"] = "3003"
	exec := &fakeExecutor{results: results}
	r := New(exec)

	id, err := r.Resolve(context.Background(), "PROJ-11", KindTestPlan)
	require.NoError(t, err)
	assert.Equal(t, "3003", id)
	assert.Equal(t, []string{"getTestPlans", "getTests"}, exec.calledFields(),
		"hint first, then the fixed order with the hint skipped")
}

func TestResolve_CachesForProcessLifetime(t *testing.T) {
	exec := &fakeExecutor{results: map[string]string{"getTests": "1162822"}}
	r := New(exec)

	id, err := r.Resolve(context.Background(), "PROJ-123", KindTest)
	require.NoError(t, err)
	require.Equal(t, "1162822", id)
	require.Len(t, exec.calls, 1)

	// Same hint, no hint, and a different hint all hit the cache.
	for _, hint := range []Kind{KindTest, KindNone, KindTestSet} {
		id, err := r.Resolve(context.Background(), "PROJ-123", hint)
		require.NoError(t, err)
		assert.Equal(t, "1162822", id)
	}
	assert.Len(t, exec.calls, 1, "cached keys must not be re-resolved")
}

func TestResolve_AllKindsEmptyIsResolutionError(t *testing.T) {
	exec := &fakeExecutor{results: emptyAll()}
	r := New(exec)

	_, err := r.Resolve(context.Background(), "PROJ-404", KindNone)
	require.Error(t, err)
	assert.True(t, errdefs.IsResolution(err))
	assert.Contains(t, err.Error(), "PROJ-404")
	assert.Len(t, exec.calls, 5, "every kind gets exactly one probe")
}

func TestResolve_UpstreamFailurePropagates(t *testing.T) {
	exec := &fakeExecutor{err: errdefs.Networkf("connection reset")}
	r := New(exec)

	_, err := r.Resolve(context.Background(), "PROJ-123", KindNone)
	require.Error(t, err)
	assert.True(t, errdefs.IsNetwork(err), "upstream errors must keep their kind")
	assert.Len(t, exec.calls, 1, "the chain must stop at the first failure")
}

func TestResolve_ConcurrentCallersAgree(t *testing.T) {
	defer goleak.VerifyNone(t)

	exec := &fakeExecutor{results: map[string]string{"getTests": "555"}}
	r := New(exec)

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.Resolve(context.Background(), "PROJ-55", KindTest)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, "555", id)
	}
}
