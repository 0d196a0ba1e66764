// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/xraymcp/core/pkg/errdefs"
	"github.com/xraymcp/core/pkg/resolver"
)

const getTestExecutionQuery = `query GetTestExecution($issueId: String!) {
	getTestExecution(issueId: $issueId) {
		issueId
		tests(limit: 100) {
			total
			start
			limit
			results {
				issueId
				testType {
					name
				}
			}
		}
		jira(fields: ["key", "summary", "assignee", "reporter", "status", "priority"])
	}
}`

const getTestExecutionsQuery = `query GetTestExecutions($jql: String, $limit: Int!) {
	getTestExecutions(jql: $jql, limit: $limit) {
		total
		start
		limit
		results {
			issueId
			tests(limit: 10) {
				total
				start
				limit
				results {
					issueId
					testType {
						name
					}
				}
			}
			jira(fields: ["key", "summary", "assignee", "status"])
		}
	}
}`

const createTestExecutionMutation = `mutation CreateTestExecution($testIssueIds: [String!], $testEnvironments: [String!], $jira: JSON!) {
	createTestExecution(testIssueIds: $testIssueIds, testEnvironments: $testEnvironments, jira: $jira) {
		testExecution {
			issueId
			jira(fields: ["key", "summary"])
		}
		warnings
		createdTestEnvironments
	}
}`

const deleteTestExecutionMutation = `mutation DeleteTestExecution($issueId: String!) {
	deleteTestExecution(issueId: $issueId)
}`

const addTestsToExecutionMutation = `mutation AddTestsToTestExecution($issueId: String!, $testIssueIds: [String!]!) {
	addTestsToTestExecution(issueId: $issueId, testIssueIds: $testIssueIds) {
		addedTests
		warning
	}
}`

const removeTestsFromExecutionMutation = `mutation RemoveTestsFromTestExecution($issueId: String!, $testIssueIds: [String!]!) {
	removeTestsFromTestExecution(issueId: $issueId, testIssueIds: $testIssueIds)
}`

func registerExecutions(reg *Registry, deps Deps) error {
	return reg.registerAll([]Tool{
		{
			Name:        "get_test_execution",
			Description: "Retrieve a single test execution by issue ID.",
			InputSchema: schema([]string{"issue_id"}, map[string]any{
				"issue_id": stringArg("Jira issue id or key of the test execution"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, err := args.String("issue_id")
				if err != nil {
					return nil, err
				}
				id, err := deps.resolve(ctx, issueKey, resolver.KindTestExecution)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, getTestExecutionQuery, map[string]any{"issueId": id})
				if err != nil {
					return nil, err
				}
				return entity(data, "getTestExecution", "Test execution", issueKey)
			},
		},
		{
			Name:        "get_test_executions",
			Description: "Retrieve multiple test executions with optional JQL filtering.",
			InputSchema: schema(nil, map[string]any{
				"jql":   stringArg("JQL query to filter test executions"),
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
				data, err := deps.Client.Execute(ctx, getTestExecutionsQuery, map[string]any{"jql": jqlVar, "limit": limit})
				if err != nil {
					return nil, err
				}
				return subtree(data, "getTestExecutions", "Failed to retrieve test executions")
			},
		},
		{
			Name:        "create_test_execution",
			Description: "Create a new test execution in Xray.",
			InputSchema: schema([]string{"project_key", "summary"}, map[string]any{
				"project_key":       stringArg("Jira project key, e.g. PROJ"),
				"summary":           stringArg("Title of the test execution issue"),
				"test_issue_ids":    stringListArg("Tests to include, as issue ids or keys"),
				"test_environments": stringListArg("Test environments, e.g. staging or chrome"),
				"description":       stringArg("Optional issue description"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
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
				environments, err := args.StringSlice("test_environments")
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
				if environments == nil {
					environments = []string{}
				}

				jiraFields := map[string]any{
					"summary": summary,
					"project": map[string]any{"key": projectKey},
				}
				if description != "" {
					jiraFields["description"] = description
				}
				data, err := deps.Client.Execute(ctx, createTestExecutionMutation, map[string]any{
					"testIssueIds":     testIDs,
					"testEnvironments": environments,
					"jira":             map[string]any{"fields": jiraFields},
				})
				if err != nil {
					return nil, err
				}
				return subtree(data, "createTestExecution", "Failed to create test execution")
			},
		},
		{
			Name:        "delete_test_execution",
			Description: "Delete a test execution from Xray.",
			InputSchema: schema([]string{"issue_id"}, map[string]any{
				"issue_id": stringArg("Jira issue id or key of the test execution to delete"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, err := args.String("issue_id")
				if err != nil {
					return nil, err
				}
				id, err := deps.resolve(ctx, issueKey, resolver.KindTestExecution)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, deleteTestExecutionMutation, map[string]any{"issueId": id})
				if err != nil {
					return nil, err
				}
				node := gjson.GetBytes(data, "deleteTestExecution")
				if !node.Exists() {
					return nil, errdefs.GraphQLf("Failed to delete test execution %s", issueKey)
				}
				return map[string]any{"success": node.Bool(), "issueId": issueKey}, nil
			},
		},
		{
			Name:        "add_tests_to_execution",
			Description: "Add tests to an existing test execution.",
			InputSchema: schema([]string{"execution_issue_id", "test_issue_ids"}, map[string]any{
				"execution_issue_id": stringArg("Jira issue id or key of the test execution"),
				"test_issue_ids":     stringListArg("Tests to add, as issue ids or keys"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				executionKey, err := args.String("execution_issue_id")
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
				executionID, err := deps.resolve(ctx, executionKey, resolver.KindTestExecution)
				if err != nil {
					return nil, err
				}
				testIDs, err := deps.resolveAll(ctx, testKeys, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, addTestsToExecutionMutation, map[string]any{
					"issueId":      executionID,
					"testIssueIds": testIDs,
				})
				if err != nil {
					return nil, err
				}
				return subtree(data, "addTestsToTestExecution", "Failed to add tests to execution "+executionKey)
			},
		},
		{
			Name:        "remove_tests_from_execution",
			Description: "Remove tests from an existing test execution.",
			InputSchema: schema([]string{"execution_issue_id", "test_issue_ids"}, map[string]any{
				"execution_issue_id": stringArg("Jira issue id or key of the test execution"),
				"test_issue_ids":     stringListArg("Tests to remove, as issue ids or keys"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				executionKey, err := args.String("execution_issue_id")
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
				executionID, err := deps.resolve(ctx, executionKey, resolver.KindTestExecution)
				if err != nil {
					return nil, err
				}
				testIDs, err := deps.resolveAll(ctx, testKeys, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				// removeTestsFromTestExecution answers null on success, so
				// reaching this point without an error is the success signal.
				if _, err := deps.Client.Execute(ctx, removeTestsFromExecutionMutation, map[string]any{
					"issueId":      executionID,
					"testIssueIds": testIDs,
				}); err != nil {
					return nil, err
				}
				return map[string]any{"success": true, "executionId": executionKey}, nil
			},
		},
	})
}
