// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"

	"github.com/xraymcp/core/pkg/resolver"
)

const getTestRunQuery = `query GetTestRunById($id: String!) {
	getTestRunById(id: $id) {
		id
		status {
			name
			color
			description
		}
		gherkin
		scenarioType
		comment
		startedOn
		finishedOn
		executedById
		assigneeId
		evidence
		defects
		unstructured
		testType {
			name
			kind
		}
		steps {
			id
			action
			data
			result
			status {
				name
				color
			}
			comment
			actualResult
			evidence {
				id
				filename
			}
			defects
		}
		examples {
			id
			status {
				name
				color
				description
			}
		}
		test {
			issueId
		}
		testExecution {
			issueId
		}
	}
}`

const getTestRunsQuery = `query GetTestRuns($testIssueIds: [String], $testExecIssueIds: [String], $limit: Int!) {
	getTestRuns(testIssueIds: $testIssueIds, testExecIssueIds: $testExecIssueIds, limit: $limit) {
		total
		start
		limit
		results {
			id
			status {
				name
				color
				description
			}
			gherkin
			scenarioType
			comment
			startedOn
			finishedOn
			executedById
			assigneeId
			examples {
				id
				status {
					name
					color
					description
				}
			}
			test {
				issueId
			}
			testExecution {
				issueId
			}
		}
	}
}`

func registerRuns(reg *Registry, deps Deps) error {
	return reg.registerAll([]Tool{
		{
			Name:        "get_test_run",
			Description: "Retrieve a single test run by its run ID.",
			InputSchema: schema([]string{"run_id"}, map[string]any{
				"run_id": stringArg("Xray test run id (not a Jira issue key)"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				runID, err := args.String("run_id")
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, getTestRunQuery, map[string]any{"id": runID})
				if err != nil {
					return nil, err
				}
				return entity(data, "getTestRunById", "Test run", runID)
			},
		},
		{
			Name:        "get_test_runs",
			Description: "Retrieve test runs filtered by tests and/or test executions.",
			InputSchema: schema(nil, map[string]any{
				"test_issue_ids":      stringListArg("Restrict to runs of these tests, as issue ids or keys"),
				"test_exec_issue_ids": stringListArg("Restrict to runs inside these test executions, as issue ids or keys"),
				"limit":               limitArg(),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				testKeys, err := args.StringSlice("test_issue_ids")
				if err != nil {
					return nil, err
				}
				executionKeys, err := args.StringSlice("test_exec_issue_ids")
				if err != nil {
					return nil, err
				}
				limit, err := args.Limit()
				if err != nil {
					return nil, err
				}
				testIDs, err := deps.resolveAll(ctx, testKeys, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				executionIDs, err := deps.resolveAll(ctx, executionKeys, resolver.KindTestExecution)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, getTestRunsQuery, map[string]any{
					"testIssueIds":     nullableSlice(testIDs),
					"testExecIssueIds": nullableSlice(executionIDs),
					"limit":            limit,
				})
				if err != nil {
					return nil, err
				}
				return subtree(data, "getTestRuns", "Failed to retrieve test runs")
			},
		},
	})
}
