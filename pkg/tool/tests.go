// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/xraymcp/core/pkg/errdefs"
	"github.com/xraymcp/core/pkg/resolver"
)

const getTestQuery = `query GetTest($issueId: String!) {
	getTest(issueId: $issueId) {
		issueId
		testType {
			name
		}
		steps {
			id
			action
			data
			result
			attachments {
				id
				filename
			}
		}
		gherkin
		unstructured
		jira(fields: ["key", "summary", "assignee", "reporter", "status", "priority"])
	}
}`

const getTestsQuery = `query GetTests($jql: String, $limit: Int!) {
	getTests(jql: $jql, limit: $limit) {
		total
		start
		limit
		results {
			issueId
			testType {
				name
			}
			steps {
				id
				action
				data
				result
				attachments {
					id
					filename
				}
			}
			gherkin
			unstructured
			jira(fields: ["key", "summary", "assignee", "status"])
		}
	}
}`

const getExpandedTestQuery = `query GetExpandedTest($issueId: String!, $versionId: Int) {
	getExpandedTest(issueId: $issueId, versionId: $versionId) {
		issueId
		versionId
		testType {
			name
		}
		steps {
			id
			action
			data
			result
			parentTestIssueId
			calledTestIssueId
			attachments {
				id
				filename
			}
		}
		gherkin
		unstructured
		warnings
		jira(fields: ["key", "summary", "assignee", "reporter", "status", "priority"])
	}
}`

const createManualTestWithStepsMutation = `mutation CreateTest($testType: UpdateTestTypeInput!, $steps: [CreateStepInput!], $fields: JSON!) {
	createTest(testType: $testType, steps: $steps, jira: { fields: $fields }) {
		test {
			issueId
			testType {
				name
			}
			steps {
				action
				data
				result
			}
			jira(fields: ["key", "summary"])
		}
		warnings
	}
}`

const createManualTestMutation = `mutation CreateTest($testType: UpdateTestTypeInput!, $fields: JSON!) {
	createTest(testType: $testType, jira: { fields: $fields }) {
		test {
			issueId
			testType {
				name
			}
			steps {
				id
				action
				data
				result
			}
			jira(fields: ["key", "summary"])
		}
		warnings
	}
}`

const createCucumberTestMutation = `mutation CreateTest($testType: UpdateTestTypeInput!, $gherkin: String!, $fields: JSON!) {
	createTest(testType: $testType, gherkin: $gherkin, jira: { fields: $fields }) {
		test {
			issueId
			testType {
				name
			}
			gherkin
			jira(fields: ["key", "summary"])
		}
		warnings
	}
}`

const createGenericTestMutation = `mutation CreateTest($testType: UpdateTestTypeInput!, $unstructured: String, $fields: JSON!) {
	createTest(testType: $testType, unstructured: $unstructured, jira: { fields: $fields }) {
		test {
			issueId
			testType {
				name
			}
			unstructured
			jira(fields: ["key", "summary"])
		}
		warnings
	}
}`

const deleteTestMutation = `mutation DeleteTest($issueId: String!) {
	deleteTest(issueId: $issueId)
}`

const updateGherkinDefinitionMutation = `mutation UpdateGherkinTestDefinition($issueId: String!, $gherkin: String!, $versionId: Int) {
	updateGherkinTestDefinition(issueId: $issueId, gherkin: $gherkin, versionId: $versionId) {
		issueId
		gherkin
	}
}`

const updateUnstructuredDefinitionMutation = `mutation UpdateUnstructuredTestDefinition($issueId: String!, $unstructured: String!, $versionId: Int) {
	updateUnstructuredTestDefinition(issueId: $issueId, unstructured: $unstructured, versionId: $versionId) {
		issueId
		unstructured
	}
}`

const updateTestTypeMutation = `mutation UpdateTestType($issueId: String!, $testType: UpdateTestTypeInput!, $versionId: Int) {
	updateTestType(issueId: $issueId, testType: $testType, versionId: $versionId) {
		issueId
		testType {
			name
			kind
		}
	}
}`

func registerTests(reg *Registry, deps Deps) error {
	return reg.registerAll([]Tool{
		{
			Name:        "get_test",
			Description: "Retrieve a single test by issue ID.",
			InputSchema: schema([]string{"issue_id"}, map[string]any{
				"issue_id": stringArg("Jira issue id or key of the test, e.g. 12345 or PROJ-123"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, err := args.String("issue_id")
				if err != nil {
					return nil, err
				}
				id, err := deps.resolve(ctx, issueKey, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, getTestQuery, map[string]any{"issueId": id})
				if err != nil {
					return nil, err
				}
				return entity(data, "getTest", "Test", issueKey)
			},
		},
		{
			Name:        "get_tests",
			Description: "Retrieve multiple tests with optional JQL filtering.",
			InputSchema: schema(nil, map[string]any{
				"jql":   stringArg("JQL query to filter tests"),
				"limit": limitArg(),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				jqlVar, err := optionalJQL(args)
				if err != nil {
					return nil, err
				}
				limit, err := args.Limit()
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, getTestsQuery, map[string]any{"jql": jqlVar, "limit": limit})
				if err != nil {
					return nil, err
				}
				return subtree(data, "getTests", "Failed to retrieve tests")
			},
		},
		{
			Name:        "get_expanded_test",
			Description: "Retrieve detailed information for a single test with version support.",
			InputSchema: schema([]string{"issue_id"}, map[string]any{
				"issue_id":        stringArg("Jira issue id or key of the test"),
				"test_version_id": intArg("Specific test version to expand; defaults to the latest"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, err := args.String("issue_id")
				if err != nil {
					return nil, err
				}
				version, hasVersion, err := args.OptionalInt("test_version_id")
				if err != nil {
					return nil, err
				}
				id, err := deps.resolve(ctx, issueKey, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				vars := map[string]any{"issueId": id}
				if hasVersion {
					vars["versionId"] = version
				}
				data, err := deps.Client.Execute(ctx, getExpandedTestQuery, vars)
				if err != nil {
					return nil, err
				}
				return entity(data, "getExpandedTest", "Test", issueKey)
			},
		},
		{
			Name:        "create_test",
			Description: "Create a new test in Xray.",
			InputSchema: schema([]string{"project_key", "summary"}, map[string]any{
				"project_key":  stringArg("Jira project key, e.g. PROJ"),
				"summary":      stringArg("Title of the test issue"),
				"test_type":    stringArg("Test type: Manual, Cucumber or Generic (default Generic)"),
				"description":  stringArg("Optional issue description"),
				"steps":        structuredListArg("Manual test steps: list of objects with action, result and optional data"),
				"gherkin":      stringArg("Gherkin scenario text for Cucumber tests"),
				"unstructured": stringArg("Free-form content for Generic tests"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				return createTest(ctx, deps, args)
			},
		},
		{
			Name:        "delete_test",
			Description: "Delete a test from Xray.",
			InputSchema: schema([]string{"issue_id"}, map[string]any{
				"issue_id": stringArg("Jira issue id or key of the test to delete"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, err := args.String("issue_id")
				if err != nil {
					return nil, err
				}
				id, err := deps.resolve(ctx, issueKey, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, deleteTestMutation, map[string]any{"issueId": id})
				if err != nil {
					return nil, err
				}
				node := gjson.GetBytes(data, "deleteTest")
				if !node.Exists() {
					return nil, errdefs.GraphQLf("Failed to delete test %s", issueKey)
				}
				return map[string]any{"success": node.Bool(), "issueId": id}, nil
			},
		},
		{
			Name:        "update_test",
			Description: "Update various aspects of an existing test.",
			InputSchema: schema([]string{"issue_id"}, map[string]any{
				"issue_id":     stringArg("Jira issue id or key of the test to update"),
				"test_type":    stringArg("New test type: Manual, Cucumber or Generic"),
				"gherkin":      stringArg("New Gherkin definition (Cucumber tests)"),
				"unstructured": stringArg("New unstructured definition (Generic tests)"),
				"steps":        structuredListArg("Replacement manual steps (not yet supported upstream)"),
				"jira_fields":  structuredArg("Jira field updates (not supported via the Xray GraphQL API)"),
				"version_id":   intArg("Test version to update; defaults to the latest"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				upd, err := testUpdateFromArgs(args)
				if err != nil {
					return nil, err
				}
				issueKey, err := args.String("issue_id")
				if err != nil {
					return nil, err
				}
				return applyTestUpdate(ctx, deps, issueKey, upd)
			},
		},
		{
			Name:        "update_test_type",
			Description: "Update the test type of an existing test.",
			InputSchema: schema([]string{"issue_id", "test_type"}, map[string]any{
				"issue_id":  stringArg("Jira issue id or key of the test"),
				"test_type": stringArg("New test type: Manual, Cucumber or Generic"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, err := args.String("issue_id")
				if err != nil {
					return nil, err
				}
				testType, err := args.String("test_type")
				if err != nil {
					return nil, err
				}
				if err := validateTestType(testType); err != nil {
					return nil, err
				}
				result, err := applyTestUpdate(ctx, deps, issueKey, testUpdate{testType: testType})
				if err != nil {
					return nil, err
				}
				return reshapeTypeUpdate(result)
			},
		},
	})
}

func createTest(ctx context.Context, deps Deps, args Args) (any, error) {
	projectKey, err := args.String("project_key")
	if err != nil {
		return nil, err
	}
	if err := validateProjectKey(projectKey); err != nil {
		return nil, err
	}
	summary, err := args.String("summary")
	if err != nil {
		return nil, err
	}
	testType, err := args.OptionalString("test_type")
	if err != nil {
		return nil, err
	}
	if testType == "" {
		testType = "Generic"
	}
	if err := validateTestType(testType); err != nil {
		return nil, err
	}
	description, err := args.OptionalString("description")
	if err != nil {
		return nil, err
	}
	gherkin, err := args.OptionalString("gherkin")
	if err != nil {
		return nil, err
	}
	unstructured, err := args.OptionalString("unstructured")
	if err != nil {
		return nil, err
	}
	steps, err := args.StructuredObjects("steps")
	if err != nil {
		return nil, err
	}

	jiraFields := map[string]any{
		"summary": summary,
		"project": map[string]any{"key": projectKey},
	}
	if description != "" {
		jiraFields["description"] = description
	}

	var (
		op   string
		vars map[string]any
	)
	switch kind := strings.ToLower(testType); {
	case kind == "manual" && len(steps) > 0:
		stepData, err := buildSteps(steps)
		if err != nil {
			return nil, err
		}
		op = createManualTestWithStepsMutation
		vars = map[string]any{
			"testType": map[string]any{"name": testType},
			"steps":    stepData,
			"fields":   jiraFields,
		}
	case kind == "manual":
		op = createManualTestMutation
		vars = map[string]any{
			"testType": map[string]any{"name": testType},
			"fields":   jiraFields,
		}
	case kind == "cucumber" && gherkin != "":
		op = createCucumberTestMutation
		vars = map[string]any{
			"testType": map[string]any{"name": testType},
			"gherkin":  gherkin,
			"fields":   jiraFields,
		}
	default:
		// Generic tests, and Cucumber tests created without a scenario,
		// go through the unstructured variant.
		op = createGenericTestMutation
		vars = map[string]any{
			"testType":     map[string]any{"name": testType},
			"unstructured": unstructured,
			"fields":       jiraFields,
		}
	}

	data, err := deps.Client.Execute(ctx, op, vars)
	if err != nil {
		return nil, err
	}
	return subtree(data, "createTest", "Failed to create test")
}

// buildSteps normalizes manual test steps for the createTest mutation.
func buildSteps(steps []map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(steps))
	for _, step := range steps {
		action, actionOK := step["action"].(string)
		result, resultOK := step["result"].(string)
		if !actionOK || !resultOK {
			return nil, errdefs.Validationf("Each step must have 'action' and 'result' fields")
		}
		entry := map[string]any{"action": action, "result": result}
		if data, ok := step["data"].(string); ok && data != "" {
			entry["data"] = data
		}
		out = append(out, entry)
	}
	return out, nil
}

// testUpdate captures which parts of a test an update call touches.
// Presence matters: an explicit empty string clears a definition, while an
// absent key leaves it alone.
type testUpdate struct {
	testType        string
	gherkin         string
	hasGherkin      bool
	unstructured    string
	hasUnstructured bool
	hasSteps        bool
	hasJiraFields   bool
	versionID       any
}

func testUpdateFromArgs(args Args) (testUpdate, error) {
	var upd testUpdate
	var err error
	if upd.testType, err = args.OptionalString("test_type"); err != nil {
		return upd, err
	}
	if upd.testType != "" {
		if err := validateTestType(upd.testType); err != nil {
			return upd, err
		}
	}
	if upd.hasGherkin = args.Has("gherkin"); upd.hasGherkin {
		if upd.gherkin, err = args.String("gherkin"); err != nil {
			return upd, err
		}
	}
	if upd.hasUnstructured = args.Has("unstructured"); upd.hasUnstructured {
		if upd.unstructured, err = args.String("unstructured"); err != nil {
			return upd, err
		}
	}
	if args.Has("steps") {
		if _, err = args.StructuredObjects("steps"); err != nil {
			return upd, err
		}
		upd.hasSteps = true
	}
	if args.Has("jira_fields") {
		if _, err = args.StructuredMap("jira_fields"); err != nil {
			return upd, err
		}
		upd.hasJiraFields = true
	}
	if version, ok, err := args.OptionalInt("version_id"); err != nil {
		return upd, err
	} else if ok {
		upd.versionID = version
	}
	if upd.testType == "" && !upd.hasGherkin && !upd.hasUnstructured && !upd.hasSteps && !upd.hasJiraFields {
		return upd, errdefs.Validationf("At least one update parameter must be provided: test_type, gherkin, unstructured, steps, or jira_fields")
	}
	return upd, nil
}

// applyTestUpdate runs the requested sub-updates in sequence and aggregates
// their outcomes. Individual failures are collected rather than aborting,
// so a caller learns everything that happened in one round trip.
func applyTestUpdate(ctx context.Context, deps Deps, issueKey string, upd testUpdate) (map[string]any, error) {
	id, err := deps.resolve(ctx, issueKey, resolver.KindTest)
	if err != nil {
		return nil, err
	}

	updated := make([]string, 0, 4)
	warnings := make([]string, 0, 4)
	failures := make([]string, 0, 4)

	if upd.testType != "" {
		_, err := deps.Client.Execute(ctx, updateTestTypeMutation, map[string]any{
			"issueId":   id,
			"testType":  map[string]any{"name": upd.testType},
			"versionId": upd.versionID,
		})
		if err != nil {
			failures = append(failures, fmt.Sprintf("Test type update failed: %v", err))
		} else {
			updated = append(updated, "test_type")
		}
	}

	// Content updates only make sense for the matching test type, so fetch
	// the current one unless this call just set it.
	currentType := strings.ToLower(upd.testType)
	if currentType == "" && (upd.hasGherkin || upd.hasUnstructured || upd.hasSteps) {
		raw, err := fetchTest(ctx, deps.Client, id, issueKey)
		if err != nil {
			failures = append(failures, fmt.Sprintf("Could not determine current test type: %v", err))
		} else {
			currentType = strings.ToLower(gjson.GetBytes(raw, "testType.name").String())
		}
	}

	if upd.hasGherkin {
		if currentType != "" && currentType != "cucumber" {
			warnings = append(warnings, fmt.Sprintf("Gherkin update requested but test type is '%s', not Cucumber", currentType))
		}
		_, err := deps.Client.Execute(ctx, updateGherkinDefinitionMutation, map[string]any{
			"issueId":   id,
			"gherkin":   upd.gherkin,
			"versionId": upd.versionID,
		})
		if err != nil {
			failures = append(failures, fmt.Sprintf("Gherkin update failed: %v", err))
		} else {
			updated = append(updated, "gherkin")
		}
	}

	if upd.hasUnstructured {
		if currentType != "" && currentType != "generic" {
			warnings = append(warnings, fmt.Sprintf("Unstructured update requested but test type is '%s', not Generic", currentType))
		}
		_, err := deps.Client.Execute(ctx, updateUnstructuredDefinitionMutation, map[string]any{
			"issueId":      id,
			"unstructured": upd.unstructured,
			"versionId":    upd.versionID,
		})
		if err != nil {
			failures = append(failures, fmt.Sprintf("Unstructured content update failed: %v", err))
		} else {
			updated = append(updated, "unstructured")
		}
	}

	if upd.hasSteps {
		if currentType != "" && currentType != "manual" {
			warnings = append(warnings, fmt.Sprintf("Steps update requested but test type is '%s', not Manual", currentType))
		} else {
			warnings = append(warnings, "Step updates not yet implemented - requires individual step management")
		}
	}

	if upd.hasJiraFields {
		warnings = append(warnings, "Jira field updates are not supported via the Xray GraphQL API. Use the Jira REST API for field updates like summary and description.")
	}

	var test any
	if len(failures) == 0 || len(updated) > 0 {
		raw, err := fetchTest(ctx, deps.Client, id, issueKey)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Could not retrieve updated test state: %v", err))
		} else {
			test = raw
		}
	}

	return map[string]any{
		"success":        len(failures) == 0,
		"updated_fields": updated,
		"test":           test,
		"warnings":       warnings,
		"errors":         failures,
	}, nil
}

func fetchTest(ctx context.Context, client Executor, id, issueKey string) (json.RawMessage, error) {
	data, err := client.Execute(ctx, getTestQuery, map[string]any{"issueId": id})
	if err != nil {
		return nil, err
	}
	return entity(data, "getTest", "Test", issueKey)
}

// reshapeTypeUpdate projects the aggregate update result down to the shape
// update_test_type promises: just the issue id and its new type.
func reshapeTypeUpdate(result map[string]any) (any, error) {
	test, _ := result["test"].(json.RawMessage)
	if success, _ := result["success"].(bool); success && test != nil {
		out := map[string]any{"issueId": gjson.GetBytes(test, "issueId").String()}
		if node := gjson.GetBytes(test, "testType"); node.Exists() {
			out["testType"] = json.RawMessage(node.Raw)
		}
		return out, nil
	}
	if failures, _ := result["errors"].([]string); len(failures) > 0 {
		return nil, errdefs.GraphQLf("%s", strings.Join(failures, "; "))
	}
	return nil, errdefs.GraphQLf("Test type update failed")
}
