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

const getPreconditionsQuery = `query GetPreconditions($issueId: String!, $start: Int!, $limit: Int!) {
	getTest(issueId: $issueId) {
		preconditions(start: $start, limit: $limit) {
			total
			start
			limit
			results {
				issueId
				projectId
				definition
				preconditionType {
					name
					kind
				}
				jira(fields: ["key", "summary", "status", "priority", "labels", "created", "updated"])
			}
		}
	}
}`

const createPreconditionMutation = `mutation CreatePrecondition($preconditionType: PreconditionTypeInput!, $definition: String!, $jira: JSON!) {
	createPrecondition(preconditionType: $preconditionType, definition: $definition, jira: $jira) {
		precondition {
			issueId
			preconditionType {
				name
				kind
			}
			definition
			jira(fields: ["key", "summary"])
		}
		warnings
	}
}`

const addPreconditionsToTestMutation = `mutation AddPreconditionsToTest($issueId: String!, $preconditionIssueIds: [String!]!) {
	addPreconditionsToTest(issueId: $issueId, preconditionIssueIds: $preconditionIssueIds) {
		addedPreconditions
		warning
	}
}`

const updatePreconditionMutation = `mutation UpdatePrecondition($issueId: String!, $data: UpdatePreconditionInput!) {
	updatePrecondition(issueId: $issueId, data: $data) {
		issueId
		preconditionType {
			name
			kind
		}
		definition
		jira(fields: ["key", "summary", "updated"])
	}
}`

const deletePreconditionMutation = `mutation DeletePrecondition($preconditionId: String!) {
	deletePrecondition(issueId: $preconditionId) {
		success
	}
}`

func registerPreconditions(reg *Registry, deps Deps) error {
	return reg.registerAll([]Tool{
		{
			Name:        "get_preconditions",
			Description: "Retrieve preconditions for a test.",
			InputSchema: schema([]string{"issue_id"}, map[string]any{
				"issue_id": stringArg("Jira issue id or key of the test"),
				"start":    intArg("Zero-based index to start from"),
				"limit":    limitArg(),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, err := args.String("issue_id")
				if err != nil {
					return nil, err
				}
				start, err := args.Int("start", 0)
				if err != nil {
					return nil, err
				}
				limit, err := args.Limit()
				if err != nil {
					return nil, err
				}
				id, err := deps.resolve(ctx, issueKey, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, getPreconditionsQuery, map[string]any{
					"issueId": id,
					"start":   start,
					"limit":   limit,
				})
				if err != nil {
					return nil, err
				}
				test, err := entity(data, "getTest", "Test", issueKey)
				if err != nil {
					return nil, err
				}
				return subtree(test, "preconditions", "Failed to retrieve preconditions for test "+issueKey)
			},
		},
		{
			Name:        "create_precondition",
			Description: "Create a new precondition and associate it with a test.",
			InputSchema: schema([]string{"issue_id", "precondition_input"}, map[string]any{
				"issue_id":           stringArg("Jira issue id or key of the test to attach the precondition to"),
				"precondition_input": structuredArg("Precondition payload with preconditionType, definition and jira objects"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				return createPrecondition(ctx, deps, args)
			},
		},
		{
			Name:        "update_precondition",
			Description: "Update an existing precondition.",
			InputSchema: schema([]string{"precondition_id", "precondition_input"}, map[string]any{
				"precondition_id":    stringArg("Jira issue id or key of the precondition"),
				"precondition_input": structuredArg("Fields to update: preconditionType, definition, folderPath"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				preconditionKey, err := args.String("precondition_id")
				if err != nil {
					return nil, err
				}
				updates, err := args.StructuredMap("precondition_input")
				if err != nil {
					return nil, err
				}
				if updates == nil {
					return nil, errdefs.Validationf("Missing required argument: precondition_input")
				}
				id, err := deps.resolve(ctx, preconditionKey, resolver.KindNone)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, updatePreconditionMutation, map[string]any{
					"issueId": id,
					"data":    updates,
				})
				if err != nil {
					return nil, err
				}
				return subtree(data, "updatePrecondition", "Failed to update precondition "+preconditionKey)
			},
		},
		{
			Name:        "delete_precondition",
			Description: "Delete a precondition.",
			InputSchema: schema([]string{"precondition_id"}, map[string]any{
				"precondition_id": stringArg("Jira issue id or key of the precondition to delete"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				preconditionKey, err := args.String("precondition_id")
				if err != nil {
					return nil, err
				}
				id, err := deps.resolve(ctx, preconditionKey, resolver.KindNone)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, deletePreconditionMutation, map[string]any{"preconditionId": id})
				if err != nil {
					return nil, err
				}
				success := gjson.GetBytes(data, "deletePrecondition.success").Bool()
				return map[string]any{"success": success, "deletedPreconditionId": preconditionKey}, nil
			},
		},
	})
}

func createPrecondition(ctx context.Context, deps Deps, args Args) (any, error) {
	issueKey, err := args.String("issue_id")
	if err != nil {
		return nil, err
	}
	input, err := args.StructuredMap("precondition_input")
	if err != nil {
		return nil, err
	}
	if input == nil {
		return nil, errdefs.Validationf("Missing required argument: precondition_input")
	}
	if _, ok := input["preconditionType"]; !ok {
		return nil, errdefs.Validationf("preconditionType is required")
	}
	if _, ok := input["definition"]; !ok {
		return nil, errdefs.Validationf("definition is required")
	}
	if _, ok := input["jira"]; !ok {
		return nil, errdefs.Validationf("jira object is required")
	}

	data, err := deps.Client.Execute(ctx, createPreconditionMutation, map[string]any{
		"preconditionType": input["preconditionType"],
		"definition":       input["definition"],
		"jira":             input["jira"],
	})
	if err != nil {
		return nil, err
	}
	created, err := subtree(data, "createPrecondition", "Failed to create precondition")
	if err != nil {
		return nil, err
	}

	preconditionID := gjson.GetBytes(created, "precondition.issueId").String()
	if preconditionID == "" {
		return created, nil
	}

	// Link the fresh precondition to the test it was created for.
	testID, err := deps.resolve(ctx, issueKey, resolver.KindTest)
	if err != nil {
		return nil, err
	}
	linked, err := deps.Client.Execute(ctx, addPreconditionsToTestMutation, map[string]any{
		"issueId":              testID,
		"preconditionIssueIds": []string{preconditionID},
	})
	if err != nil {
		return nil, err
	}
	out, err := asMap(created)
	if err != nil {
		return nil, err
	}
	if node := gjson.GetBytes(linked, "addPreconditionsToTest"); node.Exists() {
		out["addedToTest"] = json.RawMessage(node.Raw)
	} else {
		out["addedToTest"] = map[string]any{}
	}
	return out, nil
}
