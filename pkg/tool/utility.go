// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/xraymcp/core/pkg/errdefs"
)

const executeTestJQLQuery = `query ExecuteTestJQL($jql: String!, $limit: Int!) {
	getTests(jql: $jql, limit: $limit) {
		total
		start
		limit
		results {
			issueId
			testType {
				name
			}
			jira(fields: ["key", "summary", "status", "assignee"])
		}
	}
}`

const executeTestExecutionJQLQuery = `query ExecuteTestExecutionJQL($jql: String!, $limit: Int!) {
	getTestExecutions(jql: $jql, limit: $limit) {
		total
		start
		limit
		results {
			issueId
			jira(fields: ["key", "summary", "status", "assignee"])
		}
	}
}`

const validateConnectionQuery = `query ValidateConnection {
	getTests(limit: 1) {
		total
	}
}`

func registerUtility(reg *Registry, deps Deps) error {
	return reg.registerAll([]Tool{
		{
			Name:        "execute_jql_query",
			Description: "Execute a custom JQL query for different Xray entity types.",
			InputSchema: schema([]string{"jql"}, map[string]any{
				"jql":         stringArg("JQL query to run"),
				"entity_type": stringArg("Entity type to query: test or testexecution, defaults to test"),
				"limit":       limitArg(),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				jqlVar, err := requiredJQL(args)
				if err != nil {
					return nil, err
				}
				entityType, err := args.OptionalString("entity_type")
				if err != nil {
					return nil, err
				}
				if entityType == "" {
					entityType = "test"
				}
				limit, err := args.Limit()
				if err != nil {
					return nil, err
				}
				vars := map[string]any{"jql": jqlVar, "limit": limit}
				switch strings.ToLower(entityType) {
				case "test":
					data, err := deps.Client.Execute(ctx, executeTestJQLQuery, vars)
					if err != nil {
						return nil, err
					}
					return subtree(data, "getTests", "Failed to execute JQL query for tests")
				case "testexecution":
					data, err := deps.Client.Execute(ctx, executeTestExecutionJQLQuery, vars)
					if err != nil {
						return nil, err
					}
					return subtree(data, "getTestExecutions", "Failed to execute JQL query for test executions")
				default:
					return nil, errdefs.Validationf("Unsupported entity type: %s", entityType)
				}
			},
		},
		{
			Name:        "validate_connection",
			Description: "Test connection and authentication with Xray API.",
			InputSchema: schema(nil, map[string]any{}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				// This tool reports failures in its payload instead of
				// returning an error envelope, so callers can probe the
				// connection without tripping error handling.
				data, err := deps.Client.Execute(ctx, validateConnectionQuery, nil)
				if err != nil {
					return map[string]any{
						"status":        "error",
						"message":       "Connection validation failed: " + err.Error(),
						"authenticated": false,
					}, nil
				}
				node := gjson.GetBytes(data, "getTests")
				if !node.Exists() || node.Type == gjson.Null {
					return map[string]any{
						"status":        "error",
						"message":       "Failed to validate connection",
						"authenticated": false,
					}, nil
				}
				return map[string]any{
					"status":        "connected",
					"message":       "Successfully connected to Xray API",
					"authenticated": true,
				}, nil
			},
		},
	})
}
