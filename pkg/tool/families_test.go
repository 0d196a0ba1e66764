// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraymcp/core/pkg/errdefs"
	"github.com/xraymcp/core/pkg/resolver"
)

type upstreamCall struct {
	operation string
	variables map[string]any
}

// scriptedExecutor records every GraphQL call and answers from a reply
// queue; an empty queue answers {}.
type scriptedExecutor struct {
	mu      sync.Mutex
	calls   []upstreamCall
	replies []string
	err     error
}

func (s *scriptedExecutor) Execute(_ context.Context, operation string, variables map[string]any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, upstreamCall{operation: operation, variables: variables})
	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return json.RawMessage(`{}`), nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return json.RawMessage(reply), nil
}

type resolveCall struct {
	key  string
	hint resolver.Kind
}

// mapResolver resolves keys from a fixture map and passes unknown keys
// through unchanged.
type mapResolver struct {
	mu    sync.Mutex
	calls []resolveCall
	ids   map[string]string
	err   error
}

func (m *mapResolver) Resolve(_ context.Context, key string, hint resolver.Kind) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, resolveCall{key: key, hint: hint})
	if m.err != nil {
		return "", m.err
	}
	if id, ok := m.ids[key]; ok {
		return id, nil
	}
	return key, nil
}

func newFacade(t *testing.T, exec *scriptedExecutor, res *mapResolver) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, RegisterAll(reg, Deps{Client: exec, Resolver: res}))
	return reg
}

func callTool(t *testing.T, reg *Registry, name, args string) json.RawMessage {
	t.Helper()
	var raw json.RawMessage
	if args != "" {
		raw = json.RawMessage(args)
	}
	return reg.Call(context.Background(), name, raw)
}

func TestRegisterAll_ExposesTheFullSurface(t *testing.T) {
	reg := newFacade(t, &scriptedExecutor{}, &mapResolver{})
	require.Equal(t, 47, reg.Len())

	want := []string{
		"get_test", "get_tests", "get_expanded_test", "create_test",
		"delete_test", "update_test", "update_test_type",
		"update_gherkin_definition",
		"get_test_execution", "get_test_executions", "create_test_execution",
		"delete_test_execution", "add_tests_to_execution", "remove_tests_from_execution",
		"get_test_plan", "get_test_plans", "create_test_plan",
		"update_test_plan", "add_tests_to_plan", "remove_tests_from_plan",
		"get_test_set", "get_test_sets", "create_test_set",
		"update_test_set", "add_tests_to_set", "remove_tests_from_set",
		"get_preconditions", "create_precondition", "update_precondition", "delete_precondition",
		"get_test_run", "get_test_runs",
		"get_test_status", "get_coverable_issues",
		"get_xray_history", "upload_attachment", "delete_attachment",
		"get_folder_contents", "move_test_to_folder", "get_dataset", "get_datasets",
		"get_test_versions", "archive_test_version", "restore_test_version", "create_test_version_from",
		"execute_jql_query", "validate_connection",
	}
	var got []string
	for _, tl := range reg.Tools() {
		got = append(got, tl.Name)
		assert.NotEmpty(t, tl.Description, tl.Name)
		assert.NotNil(t, tl.InputSchema, tl.Name)
	}
	assert.Equal(t, want, got)
}

func TestGetTest_ResolvesThenFetches(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{`{"getTest":{"issueId":"10001","testType":{"name":"Manual"}}}`}}
	res := &mapResolver{ids: map[string]string{"PROJ-123": "10001"}}
	reg := newFacade(t, exec, res)

	payload := callTool(t, reg, "get_test", `{"issue_id":"PROJ-123"}`)
	assert.JSONEq(t, `{"issueId":"10001","testType":{"name":"Manual"}}`, string(payload))

	require.Len(t, res.calls, 1)
	assert.Equal(t, resolveCall{key: "PROJ-123", hint: resolver.KindTest}, res.calls[0])
	require.Len(t, exec.calls, 1)
	assert.Equal(t, map[string]any{"issueId": "10001"}, exec.calls[0].variables)
}

func TestGetTest_NullEntityIsNotFound(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{`{"getTest":null}`}}
	reg := newFacade(t, exec, &mapResolver{})

	msg, typ := decodeEnvelope(t, callTool(t, reg, "get_test", `{"issue_id":"PROJ-404"}`))
	assert.Equal(t, "Test PROJ-404 not found", msg)
	assert.Equal(t, "NotFoundError", typ)
}

func TestGetTests_BlocksDisallowedJQLBeforeUpstream(t *testing.T) {
	exec := &scriptedExecutor{}
	res := &mapResolver{}
	reg := newFacade(t, exec, res)

	payload := callTool(t, reg, "get_tests", `{"jql":"project = FRAMED; DROP TABLE"}`)
	assert.JSONEq(t, `{"error":"Unknown or disallowed field: DROP","type":"ValidationError"}`, string(payload))
	assert.Empty(t, exec.calls, "rejected JQL must never reach the upstream")
	assert.Empty(t, res.calls)
}

func TestGetTests_NormalizesJQLAndClampsLimit(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{`{"getTests":{"total":0,"start":0,"limit":100,"results":[]}}`}}
	reg := newFacade(t, exec, &mapResolver{})

	payload := callTool(t, reg, "get_tests", `{"jql":"PROJECT = FRAMED AND ISSUETYPE = Test","limit":999}`)
	assert.JSONEq(t, `{"total":0,"start":0,"limit":100,"results":[]}`, string(payload))

	require.Len(t, exec.calls, 1)
	assert.Equal(t, "project = FRAMED and issueType = Test", exec.calls[0].variables["jql"],
		"the normalized query goes upstream, not the raw input")
	assert.Equal(t, 100, exec.calls[0].variables["limit"])
}

func TestGetTests_MissingSubtreeIsGraphQLError(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{`{}`}}
	reg := newFacade(t, exec, &mapResolver{})

	msg, typ := decodeEnvelope(t, callTool(t, reg, "get_tests", `{}`))
	assert.Equal(t, "Failed to retrieve tests", msg)
	assert.Equal(t, "GraphQLError", typ)
}

func TestCreateTest_GenericByDefault(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{`{"createTest":{"test":{"issueId":"9000"},"warnings":[]}}`}}
	reg := newFacade(t, exec, &mapResolver{})

	payload := callTool(t, reg, "create_test", `{"project_key":"PROJ","summary":"Checks login","description":"covers SSO"}`)
	assert.JSONEq(t, `{"test":{"issueId":"9000"},"warnings":[]}`, string(payload))

	require.Len(t, exec.calls, 1)
	vars := exec.calls[0].variables
	assert.Equal(t, map[string]any{"name": "Generic"}, vars["testType"])
	assert.Equal(t, "", vars["unstructured"])
	assert.Equal(t, map[string]any{
		"summary":     "Checks login",
		"project":     map[string]any{"key": "PROJ"},
		"description": "covers SSO",
	}, vars["fields"])
}

func TestCreateTest_RejectsBadInputBeforeUpstream(t *testing.T) {
	cases := []struct {
		name    string
		args    string
		wantMsg string
	}{
		{
			name:    "lowercase project key",
			args:    `{"project_key":"proj","summary":"s"}`,
			wantMsg: "Invalid project key: proj (expected an uppercase alphanumeric key like PROJ)",
		},
		{
			name:    "unknown test type",
			args:    `{"project_key":"PROJ","summary":"s","test_type":"Robot"}`,
			wantMsg: "Invalid test type: Robot (must be one of: Manual, Cucumber, Generic)",
		},
		{
			name:    "step without result",
			args:    `{"project_key":"PROJ","summary":"s","test_type":"Manual","steps":[{"action":"open app"}]}`,
			wantMsg: "Each step must have 'action' and 'result' fields",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := &scriptedExecutor{}
			reg := newFacade(t, exec, &mapResolver{})

			msg, typ := decodeEnvelope(t, callTool(t, reg, "create_test", tc.args))
			assert.Equal(t, tc.wantMsg, msg)
			assert.Equal(t, "ValidationError", typ)
			assert.Empty(t, exec.calls)
		})
	}
}

func TestCreateTest_StepsAcceptObjectAndStringForms(t *testing.T) {
	run := func(args string) ([]upstreamCall, json.RawMessage) {
		exec := &scriptedExecutor{replies: []string{`{"createTest":{"test":{"issueId":"9001"}}}`}}
		reg := newFacade(t, exec, &mapResolver{})
		payload := callTool(t, reg, "create_test", args)
		return exec.calls, payload
	}

	asList, listPayload := run(`{"project_key":"PROJ","summary":"s","test_type":"Manual",` +
		`"steps":[{"action":"open","result":"opens","data":"url"}]}`)
	asString, stringPayload := run(`{"project_key":"PROJ","summary":"s","test_type":"Manual",` +
		`"steps":"[{\"action\":\"open\",\"result\":\"opens\",\"data\":\"url\"}]"}`)

	require.Len(t, asList, 1)
	assert.Equal(t, asList, asString, "both argument encodings must produce the same upstream call")
	assert.Equal(t, string(listPayload), string(stringPayload))
	assert.Equal(t, []map[string]any{{"action": "open", "result": "opens", "data": "url"}},
		asList[0].variables["steps"])
}

func TestUpdateTest_RequiresAnUpdateField(t *testing.T) {
	exec := &scriptedExecutor{}
	reg := newFacade(t, exec, &mapResolver{})

	msg, typ := decodeEnvelope(t, callTool(t, reg, "update_test", `{"issue_id":"PROJ-1"}`))
	assert.Equal(t, "At least one update parameter must be provided: test_type, gherkin, unstructured, steps, or jira_fields", msg)
	assert.Equal(t, "ValidationError", typ)
	assert.Empty(t, exec.calls)
}

func TestUpdateTest_JiraFieldsOnlyWarns(t *testing.T) {
	run := func(args string) map[string]any {
		exec := &scriptedExecutor{replies: []string{`{"getTest":{"issueId":"10001"}}`}}
		reg := newFacade(t, exec, &mapResolver{ids: map[string]string{"PROJ-1": "10001"}})
		payload := callTool(t, reg, "update_test", args)

		var got map[string]any
		require.NoError(t, json.Unmarshal(payload, &got))
		require.Len(t, exec.calls, 1, "only the final state fetch may reach the upstream")
		return got
	}

	object := run(`{"issue_id":"PROJ-1","jira_fields":{"summary":"Renamed"}}`)
	stringified := run(`{"issue_id":"PROJ-1","jira_fields":"{\"summary\":\"Renamed\"}"}`)
	assert.Equal(t, object, stringified, "both argument encodings must behave identically")

	assert.Equal(t, true, object["success"])
	assert.Empty(t, object["updated_fields"])
	assert.Empty(t, object["errors"])
	warnings, _ := object["warnings"].([]any)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Jira field updates are not supported via the Xray GraphQL API")
}

func TestUpdateTestType_ProjectsTypeResult(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{
		`{"updateTestType":{"issueId":"10001"}}`,
		`{"getTest":{"issueId":"10001","testType":{"name":"Manual","kind":"Steps"}}}`,
	}}
	res := &mapResolver{ids: map[string]string{"PROJ-1": "10001"}}
	reg := newFacade(t, exec, res)

	payload := callTool(t, reg, "update_test_type", `{"issue_id":"PROJ-1","test_type":"Manual"}`)
	assert.JSONEq(t, `{"issueId":"10001","testType":{"name":"Manual","kind":"Steps"}}`, string(payload))

	require.Len(t, exec.calls, 2)
	assert.Equal(t, map[string]any{"name": "Manual"}, exec.calls[0].variables["testType"])
	assert.Equal(t, "10001", exec.calls[1].variables["issueId"])
}

func TestDeleteTest_ReportsResolvedId(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{`{"deleteTest":true}`}}
	res := &mapResolver{ids: map[string]string{"PROJ-2": "10002"}}
	reg := newFacade(t, exec, res)

	payload := callTool(t, reg, "delete_test", `{"issue_id":"PROJ-2"}`)
	assert.JSONEq(t, `{"success":true,"issueId":"10002"}`, string(payload))
}

func TestCreateTestExecution_SendsEmptyListsWhenAbsent(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{`{"createTestExecution":{"testExecution":{"issueId":"7000"}}}`}}
	reg := newFacade(t, exec, &mapResolver{})

	callTool(t, reg, "create_test_execution", `{"project_key":"PROJ","summary":"Nightly"}`)

	require.Len(t, exec.calls, 1)
	vars := exec.calls[0].variables
	assert.Equal(t, []string{}, vars["testIssueIds"], "creates send empty lists, not null")
	assert.Equal(t, []string{}, vars["testEnvironments"])
}

func TestMembershipTools_RejectEmptyTestLists(t *testing.T) {
	cases := []struct {
		tool string
		args string
	}{
		{"add_tests_to_execution", `{"execution_issue_id":"PROJ-70","test_issue_ids":[]}`},
		{"remove_tests_from_execution", `{"execution_issue_id":"PROJ-70","test_issue_ids":[]}`},
		{"add_tests_to_plan", `{"plan_issue_id":"PROJ-80","test_issue_ids":[]}`},
		{"remove_tests_from_plan", `{"plan_issue_id":"PROJ-80","test_issue_ids":[]}`},
		{"add_tests_to_set", `{"set_issue_id":"PROJ-90","test_issue_ids":[]}`},
		{"remove_tests_from_set", `{"set_issue_id":"PROJ-90","test_issue_ids":[]}`},
		{"get_datasets", `{"test_issue_ids":[]}`},
	}
	for _, tc := range cases {
		t.Run(tc.tool, func(t *testing.T) {
			exec := &scriptedExecutor{}
			reg := newFacade(t, exec, &mapResolver{})

			msg, typ := decodeEnvelope(t, callTool(t, reg, tc.tool, tc.args))
			assert.Equal(t, "test_issue_ids cannot be empty", msg)
			assert.Equal(t, "ValidationError", typ)
			assert.Empty(t, exec.calls)
		})
	}
}

func TestRemoveTestsFromExecution_SynthesizesSuccess(t *testing.T) {
	// The upstream mutation answers null on success.
	exec := &scriptedExecutor{replies: []string{`{"removeTestsFromTestExecution":null}`}}
	res := &mapResolver{ids: map[string]string{"PROJ-70": "7000", "PROJ-1": "10001"}}
	reg := newFacade(t, exec, res)

	payload := callTool(t, reg, "remove_tests_from_execution",
		`{"execution_issue_id":"PROJ-70","test_issue_ids":["PROJ-1"]}`)
	assert.JSONEq(t, `{"success":true,"executionId":"PROJ-70"}`, string(payload))

	require.Len(t, exec.calls, 1)
	assert.Equal(t, map[string]any{"issueId": "7000", "testIssueIds": []string{"10001"}},
		exec.calls[0].variables)
	assert.Equal(t, []resolveCall{
		{key: "PROJ-70", hint: resolver.KindTestExecution},
		{key: "PROJ-1", hint: resolver.KindTest},
	}, res.calls)
}

func TestCreateTestPlan_ChainsAddWhenTestsGiven(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{
		`{"createTestPlan":{"testPlan":{"issueId":"2000"},"warnings":[]}}`,
		`{"addTestsToTestPlan":{"addedTests":["10001"],"warning":null}}`,
	}}
	res := &mapResolver{ids: map[string]string{"PROJ-1": "10001"}}
	reg := newFacade(t, exec, res)

	payload := callTool(t, reg, "create_test_plan",
		`{"project_key":"PROJ","summary":"Release 1.4","test_issue_ids":["PROJ-1"]}`)

	var got map[string]any
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, []any{"10001"}, got["addedTests"])

	require.Len(t, exec.calls, 2)
	assert.Equal(t, []string{"10001"}, exec.calls[0].variables["testIssueIds"])
	assert.Equal(t, map[string]any{"issueId": "2000", "testIssueIds": []string{"10001"}},
		exec.calls[1].variables)
}

func TestUpdateTestPlan_IsUnsupported(t *testing.T) {
	exec := &scriptedExecutor{}
	reg := newFacade(t, exec, &mapResolver{})

	msg, typ := decodeEnvelope(t, callTool(t, reg, "update_test_plan",
		`{"issue_id":"PROJ-80","summary":"Renamed"}`))
	assert.Contains(t, msg, "updateTestPlan mutation is not available")
	assert.Equal(t, "ValidationError", typ)
	assert.Empty(t, exec.calls)
}

func TestGetTestRun_TakesRunIdsDirectly(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{`{"getTestRunById":{"id":"run-5"}}`}}
	res := &mapResolver{}
	reg := newFacade(t, exec, res)

	payload := callTool(t, reg, "get_test_run", `{"run_id":"run-5"}`)
	assert.JSONEq(t, `{"id":"run-5"}`, string(payload))
	assert.Empty(t, res.calls, "run ids are not Jira issue keys and must not be resolved")
	require.Len(t, exec.calls, 1)
	assert.Equal(t, map[string]any{"id": "run-5"}, exec.calls[0].variables)
}

func TestGetTestRuns_ResolvesFilterLists(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{`{"getTestRuns":{"total":0,"results":[]}}`}}
	res := &mapResolver{ids: map[string]string{"PROJ-1": "10001"}}
	reg := newFacade(t, exec, res)

	callTool(t, reg, "get_test_runs", `{"test_issue_ids":["PROJ-1"]}`)

	require.Len(t, exec.calls, 1)
	vars := exec.calls[0].variables
	assert.Equal(t, []string{"10001"}, vars["testIssueIds"])
	assert.Nil(t, vars["testExecIssueIds"], "absent filters stay null")
	assert.Equal(t, []resolveCall{{key: "PROJ-1", hint: resolver.KindTest}}, res.calls)
}

func TestGetTestStatus_ScopesOptionalFilters(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{`{"getTest":{"issueId":"10001","status":{"name":"PASSED"}}}`}}
	res := &mapResolver{ids: map[string]string{"PROJ-1": "10001", "PROJ-300": "3000"}}
	reg := newFacade(t, exec, res)

	callTool(t, reg, "get_test_status",
		`{"issue_id":"PROJ-1","environment":"staging","test_plan":"PROJ-300"}`)

	require.Len(t, exec.calls, 1)
	vars := exec.calls[0].variables
	assert.Equal(t, "10001", vars["issueId"])
	assert.Equal(t, "staging", vars["environment"])
	assert.Nil(t, vars["version"])
	assert.Equal(t, "3000", vars["testPlan"])
	assert.Equal(t, []resolveCall{
		{key: "PROJ-1", hint: resolver.KindTest},
		{key: "PROJ-300", hint: resolver.KindTestPlan},
	}, res.calls)
}

func TestMoveTestToFolder_SynthesizesSuccess(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{`{"updateTestFolder":null}`}}
	res := &mapResolver{ids: map[string]string{"PROJ-1": "10001"}}
	reg := newFacade(t, exec, res)

	payload := callTool(t, reg, "move_test_to_folder",
		`{"issue_id":"PROJ-1","folder_path":"/Regression/Auth"}`)
	assert.JSONEq(t, `{"success":true,"movedTestId":"PROJ-1","newFolderPath":"/Regression/Auth"}`,
		string(payload))
	require.Len(t, exec.calls, 1)
	assert.Equal(t, map[string]any{"issueId": "10001", "folderPath": "/Regression/Auth"},
		exec.calls[0].variables)
}

func TestGetFolderContents_DefaultsToRoot(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{`{"getFolder":{"name":"","path":"/","testsCount":12}}`}}
	reg := newFacade(t, exec, &mapResolver{})

	payload := callTool(t, reg, "get_folder_contents", `{"project_id":"10200"}`)
	assert.JSONEq(t, `{"name":"","path":"/","testsCount":12}`, string(payload))
	require.Len(t, exec.calls, 1)
	assert.Equal(t, map[string]any{"projectId": "10200", "path": "/"}, exec.calls[0].variables)
}

func TestGetDataset_NullIsNotFound(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{`{"getDataset":null}`}}
	reg := newFacade(t, exec, &mapResolver{})

	msg, typ := decodeEnvelope(t, callTool(t, reg, "get_dataset", `{"test_issue_id":"PROJ-5"}`))
	assert.Equal(t, "Dataset for test PROJ-5 not found", msg)
	assert.Equal(t, "NotFoundError", typ)
}

func TestDeleteAttachment_ReportsDeletedId(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{`{"deleteAttachment":{"success":true}}`}}
	reg := newFacade(t, exec, &mapResolver{})

	payload := callTool(t, reg, "delete_attachment", `{"attachment_id":"att-9"}`)
	assert.JSONEq(t, `{"success":true,"deletedAttachmentId":"att-9"}`, string(payload))
}

func TestGetTestVersions_AlwaysReturnsAList(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{`{"getTest":{"testVersions":{"results":null}}}`}}
	reg := newFacade(t, exec, &mapResolver{})

	payload := callTool(t, reg, "get_test_versions", `{"issue_id":"PROJ-1"}`)
	assert.JSONEq(t, `{"versions":[]}`, string(payload))

	exec = &scriptedExecutor{replies: []string{`{"getTest":{"testVersions":{"results":[{"id":1,"name":"v1"}]}}}`}}
	reg = newFacade(t, exec, &mapResolver{})

	payload = callTool(t, reg, "get_test_versions", `{"issue_id":"PROJ-1"}`)
	assert.JSONEq(t, `{"versions":[{"id":1,"name":"v1"}]}`, string(payload))
}

func TestArchiveTestVersion_SendsNumericVersionId(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{`{"archiveTestVersion":{"success":true,"archivedVersion":{"id":2}}}`}}
	res := &mapResolver{ids: map[string]string{"PROJ-1": "10001"}}
	reg := newFacade(t, exec, res)

	payload := callTool(t, reg, "archive_test_version", `{"issue_id":"PROJ-1","version_id":2}`)
	assert.JSONEq(t, `{"success":true,"archivedVersion":{"id":2}}`, string(payload))
	require.Len(t, exec.calls, 1)
	assert.Equal(t, map[string]any{"issueId": "10001", "versionId": 2}, exec.calls[0].variables)
}

func TestExecuteJQLQuery_RoutesByEntityType(t *testing.T) {
	t.Run("defaults to tests", func(t *testing.T) {
		exec := &scriptedExecutor{replies: []string{`{"getTests":{"total":1}}`}}
		reg := newFacade(t, exec, &mapResolver{})

		payload := callTool(t, reg, "execute_jql_query", `{"jql":"project = FRAMED"}`)
		assert.JSONEq(t, `{"total":1}`, string(payload))
		require.Len(t, exec.calls, 1)
		assert.Contains(t, exec.calls[0].operation, "getTests")
	})

	t.Run("test executions, case-insensitive", func(t *testing.T) {
		exec := &scriptedExecutor{replies: []string{`{"getTestExecutions":{"total":2}}`}}
		reg := newFacade(t, exec, &mapResolver{})

		payload := callTool(t, reg, "execute_jql_query",
			`{"jql":"project = FRAMED","entity_type":"TestExecution"}`)
		assert.JSONEq(t, `{"total":2}`, string(payload))
		require.Len(t, exec.calls, 1)
		assert.Contains(t, exec.calls[0].operation, "getTestExecutions")
	})

	t.Run("unsupported entity type", func(t *testing.T) {
		exec := &scriptedExecutor{}
		reg := newFacade(t, exec, &mapResolver{})

		msg, typ := decodeEnvelope(t, callTool(t, reg, "execute_jql_query",
			`{"jql":"project = FRAMED","entity_type":"epic"}`))
		assert.Equal(t, "Unsupported entity type: epic", msg)
		assert.Equal(t, "ValidationError", typ)
		assert.Empty(t, exec.calls)
	})
}

func TestValidateConnection_NeverReturnsAnEnvelope(t *testing.T) {
	t.Run("upstream failure", func(t *testing.T) {
		exec := &scriptedExecutor{err: errdefs.Networkf("connection refused")}
		reg := newFacade(t, exec, &mapResolver{})

		payload := callTool(t, reg, "validate_connection", `{}`)
		assert.JSONEq(t, `{"status":"error","message":"Connection validation failed: connection refused","authenticated":false}`,
			string(payload))
	})

	t.Run("malformed response", func(t *testing.T) {
		exec := &scriptedExecutor{replies: []string{`{}`}}
		reg := newFacade(t, exec, &mapResolver{})

		payload := callTool(t, reg, "validate_connection", `{}`)
		assert.JSONEq(t, `{"status":"error","message":"Failed to validate connection","authenticated":false}`,
			string(payload))
	})

	t.Run("connected", func(t *testing.T) {
		exec := &scriptedExecutor{replies: []string{`{"getTests":{"total":42}}`}}
		reg := newFacade(t, exec, &mapResolver{})

		payload := callTool(t, reg, "validate_connection", `{}`)
		assert.JSONEq(t, `{"status":"connected","message":"Successfully connected to Xray API","authenticated":true}`,
			string(payload))
	})
}

func TestUpdateGherkinDefinition_RejectsBlankText(t *testing.T) {
	exec := &scriptedExecutor{}
	reg := newFacade(t, exec, &mapResolver{})

	msg, typ := decodeEnvelope(t, callTool(t, reg, "update_gherkin_definition",
		`{"issue_id":"PROJ-1","gherkin_text":"   "}`))
	assert.Equal(t, "gherkin_text cannot be empty", msg)
	assert.Equal(t, "ValidationError", typ)
	assert.Empty(t, exec.calls)
}

func TestCreatePrecondition_LinksToTheTest(t *testing.T) {
	exec := &scriptedExecutor{replies: []string{
		`{"createPrecondition":{"precondition":{"issueId":"5005"},"warnings":[]}}`,
		`{"addPreconditionsToTest":{"addedPreconditions":["5005"],"warning":null}}`,
	}}
	res := &mapResolver{ids: map[string]string{"PROJ-1": "10001"}}
	reg := newFacade(t, exec, res)

	payload := callTool(t, reg, "create_precondition",
		`{"issue_id":"PROJ-1","precondition_input":{"preconditionType":{"name":"Manual"},"definition":"User is logged in","jira":{"fields":{"summary":"Login state"}}}}`)

	var got map[string]any
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, map[string]any{"addedPreconditions": []any{"5005"}, "warning": nil}, got["addedToTest"])

	require.Len(t, exec.calls, 2)
	assert.Equal(t, map[string]any{
		"issueId":              "10001",
		"preconditionIssueIds": []string{"5005"},
	}, exec.calls[1].variables)
}

func TestCreatePrecondition_RequiresPayloadKeys(t *testing.T) {
	exec := &scriptedExecutor{}
	reg := newFacade(t, exec, &mapResolver{})

	msg, typ := decodeEnvelope(t, callTool(t, reg, "create_precondition",
		`{"issue_id":"PROJ-1","precondition_input":{"definition":"x","jira":{}}}`))
	assert.Equal(t, "preconditionType is required", msg)
	assert.Equal(t, "ValidationError", typ)
	assert.Empty(t, exec.calls)
}
