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

const getTestSetQuery = `query GetTestSet($issueId: String!) {
	getTestSet(issueId: $issueId) {
		issueId
		projectId
		jira(fields: ["key", "summary", "description", "status", "priority", "labels", "created", "updated"])
		tests(limit: 100) {
			total
			results {
				issueId
				testType {
					name
				}
				jira(fields: ["key", "summary"])
			}
		}
	}
}`

const getTestSetsQuery = `query GetTestSets($jql: String, $limit: Int!) {
	getTestSets(jql: $jql, limit: $limit) {
		total
		start
		limit
		results {
			issueId
			projectId
			jira(fields: ["key", "summary", "description", "status", "priority", "labels", "created", "updated"])
		}
	}
}`

const createTestSetMutation = `mutation CreateTestSet($jira: JSON!, $testIssueIds: [String]) {
	createTestSet(jira: $jira, testIssueIds: $testIssueIds) {
		testSet {
			issueId
			jira(fields: ["key", "summary"])
		}
		warnings
	}
}`

const updateTestSetMutation = `mutation UpdateTestSet($issueId: String!, $updates: UpdateTestSetInput!) {
	updateTestSet(issueId: $issueId, testSet: $updates) {
		testSet {
			issueId
			summary
			description
			labels
			updated
		}
	}
}`

const addTestsToSetMutation = `mutation AddTestsToTestSet($issueId: String!, $testIssueIds: [String!]!) {
	addTestsToTestSet(issueId: $issueId, testIssueIds: $testIssueIds) {
		addedTests
		warning
	}
}`

const removeTestsFromSetMutation = `mutation RemoveTestsFromTestSet($issueId: String!, $testIssueIds: [String!]!) {
	removeTestsFromTestSet(issueId: $issueId, testIssueIds: $testIssueIds)
}`

func registerSets(reg *Registry, deps Deps) error {
	return reg.registerAll([]Tool{
		{
			Name:        "get_test_set",
			Description: "Retrieve a single test set by issue ID.",
			InputSchema: schema([]string{"issue_id"}, map[string]any{
				"issue_id": stringArg("Jira issue id or key of the test set"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, err := args.String("issue_id")
				if err != nil {
					return nil, err
				}
				id, err := deps.resolve(ctx, issueKey, resolver.KindTestSet)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, getTestSetQuery, map[string]any{"issueId": id})
				if err != nil {
					return nil, err
				}
				return entity(data, "getTestSet", "Test set", issueKey)
			},
		},
		{
			Name:        "get_test_sets",
			Description: "Retrieve multiple test sets with optional JQL filtering.",
			InputSchema: schema(nil, map[string]any{
				"jql":   stringArg("JQL query to filter test sets"),
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
				data, err := deps.Client.Execute(ctx, getTestSetsQuery, map[string]any{"jql": jqlVar, "limit": limit})
				if err != nil {
					return nil, err
				}
				return subtree(data, "getTestSets", "Failed to retrieve test sets")
			},
		},
		{
			Name:        "create_test_set",
			Description: "Create a new test set in Xray.",
			InputSchema: schema([]string{"project_key", "summary"}, map[string]any{
				"project_key":    stringArg("Jira project key, e.g. PROJ"),
				"summary":        stringArg("Title of the test set issue"),
				"test_issue_ids": stringListArg("Tests to include, as issue ids or keys"),
				"description":    stringArg("Optional issue description"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				return createTestSet(ctx, deps, args)
			},
		},
		{
			Name:        "update_test_set",
			Description: "Update the summary and description of an existing test set.",
			InputSchema: schema([]string{"issue_id", "summary"}, map[string]any{
				"issue_id":    stringArg("Jira issue id or key of the test set"),
				"summary":     stringArg("New summary"),
				"description": stringArg("New description"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, err := args.String("issue_id")
				if err != nil {
					return nil, err
				}
				summary, err := args.String("summary")
				if err != nil {
					return nil, err
				}
				description, err := args.OptionalString("description")
				if err != nil {
					return nil, err
				}
				id, err := deps.resolve(ctx, issueKey, resolver.KindTestSet)
				if err != nil {
					return nil, err
				}
				updates := map[string]any{"summary": summary}
				if description != "" {
					updates["description"] = description
				}
				data, err := deps.Client.Execute(ctx, updateTestSetMutation, map[string]any{
					"issueId": id,
					"updates": updates,
				})
				if err != nil {
					return nil, err
				}
				return subtree(data, "updateTestSet", "Failed to update test set "+issueKey)
			},
		},
		{
			Name:        "add_tests_to_set",
			Description: "Add tests to an existing test set.",
			InputSchema: schema([]string{"set_issue_id", "test_issue_ids"}, map[string]any{
				"set_issue_id":   stringArg("Jira issue id or key of the test set"),
				"test_issue_ids": stringListArg("Tests to add, as issue ids or keys"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				setKey, err := args.String("set_issue_id")
				if err != nil {
					return nil, err
				}
				testKeys, err := args.StringSlice("test_issue_ids")
				if err != nil {
					return nil, err
				}
				if len(testKeys) == 0 {
					return nil, errdefs.Validationf("test_issue_ids cannot be empty")
				}
				setID, err := deps.resolve(ctx, setKey, resolver.KindTestSet)
				if err != nil {
					return nil, err
				}
				testIDs, err := deps.resolveAll(ctx, testKeys, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				return addTestsToSet(ctx, deps, setID, testIDs, setKey)
			},
		},
		{
			Name:        "remove_tests_from_set",
			Description: "Remove tests from an existing test set.",
			InputSchema: schema([]string{"set_issue_id", "test_issue_ids"}, map[string]any{
				"set_issue_id":   stringArg("Jira issue id or key of the test set"),
				"test_issue_ids": stringListArg("Tests to remove, as issue ids or keys"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				setKey, err := args.String("set_issue_id")
				if err != nil {
					return nil, err
				}
				testKeys, err := args.StringSlice("test_issue_ids")
				if err != nil {
					return nil, err
				}
				if len(testKeys) == 0 {
					return nil, errdefs.Validationf("test_issue_ids cannot be empty")
				}
				setID, err := deps.resolve(ctx, setKey, resolver.KindTestSet)
				if err != nil {
					return nil, err
				}
				testIDs, err := deps.resolveAll(ctx, testKeys, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				// removeTestsFromTestSet answers null on success.
				if _, err := deps.Client.Execute(ctx, removeTestsFromSetMutation, map[string]any{
					"issueId":      setID,
					"testIssueIds": testIDs,
				}); err != nil {
					return nil, err
				}
				return map[string]any{"success": true, "removedTests": testKeys}, nil
			},
		},
	})
}

func createTestSet(ctx context.Context, deps Deps, args Args) (any, error) {
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
	description, err := args.OptionalString("description")
	if err != nil {
		return nil, err
	}
	testKeys, err := args.StringSlice("test_issue_ids")
	if err != nil {
		return nil, err
	}
	testIDs, err := deps.resolveAll(ctx, testKeys, resolver.KindTest)
	if err != nil {
		return nil, err
	}
	if testIDs == nil {
		testIDs = []string{}
	}

	jiraFields := map[string]any{
		"project":   map[string]any{"key": projectKey},
		"summary":   summary,
		"issuetype": map[string]any{"name": "Test Set"},
	}
	if description != "" {
		jiraFields["description"] = description
	}
	data, err := deps.Client.Execute(ctx, createTestSetMutation, map[string]any{
		"jira":         map[string]any{"fields": jiraFields},
		"testIssueIds": testIDs,
	})
	if err != nil {
		return nil, err
	}
	created, err := subtree(data, "createTestSet", "Failed to create test set")
	if err != nil {
		return nil, err
	}

	setID := gjson.GetBytes(created, "testSet.issueId").String()
	if len(testIDs) == 0 || setID == "" {
		return created, nil
	}
	added, err := addTestsToSet(ctx, deps, setID, testIDs, setID)
	if err != nil {
		return nil, err
	}
	out, err := asMap(created)
	if err != nil {
		return nil, err
	}
	if node := gjson.GetBytes(added, "addedTests"); node.Exists() {
		out["addedTests"] = json.RawMessage(node.Raw)
	} else {
		out["addedTests"] = []any{}
	}
	return out, nil
}

func addTestsToSet(ctx context.Context, deps Deps, setID string, testIDs []string, setKey string) (json.RawMessage, error) {
	data, err := deps.Client.Execute(ctx, addTestsToSetMutation, map[string]any{
		"issueId":      setID,
		"testIssueIds": testIDs,
	})
	if err != nil {
		return nil, err
	}
	return subtree(data, "addTestsToTestSet", "Failed to add tests to test set "+setKey)
}
