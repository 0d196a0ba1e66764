// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"

	"github.com/xraymcp/core/pkg/resolver"
)

const getTestStatusQuery = `query GetTestStatus($issueId: String!, $environment: String, $version: String, $testPlan: String) {
	getTest(issueId: $issueId) {
		issueId
		status(environment: $environment, version: $version, testPlan: $testPlan) {
			name
			color
		}
		testType {
			name
		}
		jira(fields: ["key", "summary"])
	}
}`

const getCoverableIssuesQuery = `query GetCoverableIssues($jql: String, $limit: Int!) {
	getCoverableIssues(jql: $jql, limit: $limit) {
		total
		start
		limit
		results {
			issueId
			jira(fields: ["key", "summary", "issuetype", "priority", "assignee", "reporter", "status"])
		}
	}
}`

func registerCoverage(reg *Registry, deps Deps) error {
	return reg.registerAll([]Tool{
		{
			Name:        "get_test_status",
			Description: "Get the execution status of a test, optionally scoped to an environment, version or test plan.",
			InputSchema: schema([]string{"issue_id"}, map[string]any{
				"issue_id":    stringArg("Jira issue id or key of the test"),
				"environment": stringArg("Test environment to scope the status to"),
				"version":     stringArg("Fix version to scope the status to"),
				"test_plan":   stringArg("Test plan issue id or key to scope the status to"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, err := args.String("issue_id")
				if err != nil {
					return nil, err
				}
				environment, err := args.OptionalString("environment")
				if err != nil {
					return nil, err
				}
				version, err := args.OptionalString("version")
				if err != nil {
					return nil, err
				}
				testPlan, err := args.OptionalString("test_plan")
				if err != nil {
					return nil, err
				}
				id, err := deps.resolve(ctx, issueKey, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				var planVar any
				if testPlan != "" {
					planID, err := deps.resolve(ctx, testPlan, resolver.KindTestPlan)
					if err != nil {
						return nil, err
					}
					planVar = planID
				}
				data, err := deps.Client.Execute(ctx, getTestStatusQuery, map[string]any{
					"issueId":     id,
					"environment": nullable(environment),
					"version":     nullable(version),
					"testPlan":    planVar,
				})
				if err != nil {
					return nil, err
				}
				return entity(data, "getTest", "Test", issueKey)
			},
		},
		{
			Name:        "get_coverable_issues",
			Description: "Retrieve issues that can be covered by tests.",
			InputSchema: schema(nil, map[string]any{
				"jql":   stringArg("JQL query to filter coverable issues"),
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
				data, err := deps.Client.Execute(ctx, getCoverableIssuesQuery, map[string]any{"jql": jqlVar, "limit": limit})
				if err != nil {
					return nil, err
				}
				return subtree(data, "getCoverableIssues", "Failed to retrieve coverable issues")
			},
		},
	})
}
