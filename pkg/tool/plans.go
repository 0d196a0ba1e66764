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

const getTestPlanQuery = `query GetTestPlan($issueId: String!) {
	getTestPlan(issueId: $issueId) {
		issueId
		projectId
		jira(fields: ["key", "summary", "description", "status", "priority", "labels", "created", "updated"]) {
			key
			fields
		}
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

const getTestPlansQuery = `query GetTestPlans($jql: String, $limit: Int!) {
	getTestPlans(jql: $jql, limit: $limit) {
		total
		start
		limit
		results {
			issueId
			projectId
			jira(fields: ["key", "summary", "description", "status", "priority", "labels", "created", "updated"]) {
				key
				fields
			}
		}
	}
}`

const createTestPlanMutation = `mutation CreateTestPlan($jira: JSON!, $testIssueIds: [String]) {
	createTestPlan(jira: $jira, testIssueIds: $testIssueIds) {
		testPlan {
			issueId
			jira(fields: ["key", "summary"])
		}
		warnings
	}
}`

const addTestsToPlanMutation = `mutation AddTestsToTestPlan($issueId: String!, $testIssueIds: [String!]!) {
	addTestsToTestPlan(issueId: $issueId, testIssueIds: $testIssueIds) {
		addedTests
		warning
	}
}`

const removeTestsFromPlanMutation = `mutation RemoveTestsFromTestPlan($issueId: String!, $testIssueIds: [String!]!) {
	removeTestsFromTestPlan(issueId: $issueId, testIssueIds: $testIssueIds)
}`

func registerPlans(reg *Registry, deps Deps) error {
	return reg.registerAll([]Tool{
		{
			Name:        "get_test_plan",
			Description: "Retrieve a single test plan by issue ID.",
			InputSchema: schema([]string{"issue_id"}, map[string]any{
				"issue_id": stringArg("Jira issue id or key of the test plan"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, err := args.String("issue_id")
				if err != nil {
					return nil, err
				}
				id, err := deps.resolve(ctx, issueKey, resolver.KindTestPlan)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, getTestPlanQuery, map[string]any{"issueId": id})
				if err != nil {
					return nil, err
				}
				return entity(data, "getTestPlan", "Test plan", issueKey)
			},
		},
		{
			Name:        "get_test_plans",
			Description: "Retrieve multiple test plans with optional JQL filtering.",
			InputSchema: schema(nil, map[string]any{
				"jql":   stringArg("JQL query to filter test plans"),
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
				data, err := deps.Client.Execute(ctx, getTestPlansQuery, map[string]any{"jql": jqlVar, "limit": limit})
				if err != nil {
					return nil, err
				}
				return subtree(data, "getTestPlans", "Failed to retrieve test plans")
			},
		},
		{
			Name:        "create_test_plan",
			Description: "Create a new test plan in Xray.",
			InputSchema: schema([]string{"project_key", "summary"}, map[string]any{
				"project_key":    stringArg("Jira project key, e.g. PROJ"),
				"summary":        stringArg("Title of the test plan issue"),
				"test_issue_ids": stringListArg("Tests to include, as issue ids or keys"),
				"description":    stringArg("Optional issue description"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				return createTestPlan(ctx, deps, args)
			},
		},
		{
			Name:        "update_test_plan",
			Description: "Update an existing test plan.",
			InputSchema: schema([]string{"issue_id", "summary"}, map[string]any{
				"issue_id":    stringArg("Jira issue id or key of the test plan"),
				"summary":     stringArg("New summary"),
				"description": stringArg("New description"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				// The Xray GraphQL schema has no updateTestPlan mutation;
				// plan fields live in Jira and must be edited there.
				return nil, errdefs.Validationf("updateTestPlan mutation is not available in the Xray GraphQL schema; update plan fields through Jira")
			},
		},
		{
			Name:        "add_tests_to_plan",
			Description: "Add tests to an existing test plan.",
			InputSchema: schema([]string{"plan_issue_id", "test_issue_ids"}, map[string]any{
				"plan_issue_id":  stringArg("Jira issue id or key of the test plan"),
				"test_issue_ids": stringListArg("Tests to add, as issue ids or keys"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				planKey, err := args.String("plan_issue_id")
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
				planID, err := deps.resolve(ctx, planKey, resolver.KindTestPlan)
				if err != nil {
					return nil, err
				}
				testIDs, err := deps.resolveAll(ctx, testKeys, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				return addTestsToPlan(ctx, deps, planID, testIDs, planKey)
			},
		},
		{
			Name:        "remove_tests_from_plan",
			Description: "Remove tests from an existing test plan.",
			InputSchema: schema([]string{"plan_issue_id", "test_issue_ids"}, map[string]any{
				"plan_issue_id":  stringArg("Jira issue id or key of the test plan"),
				"test_issue_ids": stringListArg("Tests to remove, as issue ids or keys"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				planKey, err := args.String("plan_issue_id")
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
				planID, err := deps.resolve(ctx, planKey, resolver.KindTestPlan)
				if err != nil {
					return nil, err
				}
				testIDs, err := deps.resolveAll(ctx, testKeys, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				// removeTestsFromTestPlan answers null on success.
				if _, err := deps.Client.Execute(ctx, removeTestsFromPlanMutation, map[string]any{
					"issueId":      planID,
					"testIssueIds": testIDs,
				}); err != nil {
					return nil, err
				}
				return map[string]any{"success": true, "removedTestIds": testKeys}, nil
			},
		},
	})
}

func createTestPlan(ctx context.Context, deps Deps, args Args) (any, error) {
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
		"issuetype": map[string]any{"name": "Test Plan"},
	}
	if description != "" {
		jiraFields["description"] = description
	}
	data, err := deps.Client.Execute(ctx, createTestPlanMutation, map[string]any{
		"jira":         map[string]any{"fields": jiraFields},
		"testIssueIds": testIDs,
	})
	if err != nil {
		return nil, err
	}
	created, err := subtree(data, "createTestPlan", "Failed to create test plan")
	if err != nil {
		return nil, err
	}

	// The create mutation accepts test ids but older Xray versions ignore
	// them, so the add mutation runs as a follow-up when tests were given.
	planID := gjson.GetBytes(created, "testPlan.issueId").String()
	if len(testIDs) == 0 || planID == "" {
		return created, nil
	}
	added, err := addTestsToPlan(ctx, deps, planID, testIDs, planID)
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

func addTestsToPlan(ctx context.Context, deps Deps, planID string, testIDs []string, planKey string) (json.RawMessage, error) {
	data, err := deps.Client.Execute(ctx, addTestsToPlanMutation, map[string]any{
		"issueId":      planID,
		"testIssueIds": testIDs,
	})
	if err != nil {
		return nil, err
	}
	return subtree(data, "addTestsToTestPlan", "Failed to add tests to test plan "+planKey)
}
