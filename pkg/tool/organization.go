// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"

	"github.com/xraymcp/core/pkg/errdefs"
	"github.com/xraymcp/core/pkg/resolver"
)

const getFolderQuery = `query GetFolder($projectId: String!, $path: String!) {
	getFolder(projectId: $projectId, path: $path) {
		name
		path
		testsCount
		issuesCount
		preconditionsCount
		folders
	}
}`

const updateTestFolderMutation = `mutation UpdateTestFolder($issueId: String!, $folderPath: String!) {
	updateTestFolder(issueId: $issueId, folderPath: $folderPath)
}`

const datasetFields = `
		id
		testIssueId
		testExecIssueId
		testPlanIssueId
		parameters {
			name
			type
			listValues
		}
		rows {
			order
			Values
		}`

const getDatasetQuery = `query GetDataset($testIssueId: String!) {
	getDataset(testIssueId: $testIssueId) {` + datasetFields + `
	}
}`

const getDatasetsQuery = `query GetDatasets($testIssueIds: [String!]!) {
	getDatasets(testIssueIds: $testIssueIds) {` + datasetFields + `
	}
}`

func registerOrganization(reg *Registry, deps Deps) error {
	return reg.registerAll([]Tool{
		{
			Name:        "get_folder_contents",
			Description: "Retrieve contents of a test repository folder.",
			InputSchema: schema([]string{"project_id"}, map[string]any{
				"project_id":  stringArg("Jira project id owning the test repository"),
				"folder_path": stringArg("Repository folder path, defaults to the root folder /"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				projectID, err := args.String("project_id")
				if err != nil {
					return nil, err
				}
				folderPath, err := args.OptionalString("folder_path")
				if err != nil {
					return nil, err
				}
				if folderPath == "" {
					folderPath = "/"
				}
				data, err := deps.Client.Execute(ctx, getFolderQuery, map[string]any{
					"projectId": projectID,
					"path":      folderPath,
				})
				if err != nil {
					return nil, err
				}
				return entity(data, "getFolder", "Folder", folderPath)
			},
		},
		{
			Name:        "move_test_to_folder",
			Description: "Move a test to a different folder in the test repository.",
			InputSchema: schema([]string{"issue_id", "folder_path"}, map[string]any{
				"issue_id":    stringArg("Jira issue id or key of the test to move"),
				"folder_path": stringArg("Destination folder path in the test repository"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, err := args.String("issue_id")
				if err != nil {
					return nil, err
				}
				folderPath, err := args.String("folder_path")
				if err != nil {
					return nil, err
				}
				id, err := deps.resolve(ctx, issueKey, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				if _, err := deps.Client.Execute(ctx, updateTestFolderMutation, map[string]any{
					"issueId":    id,
					"folderPath": folderPath,
				}); err != nil {
					return nil, err
				}
				// updateTestFolder returns null on success; an upstream failure
				// already surfaced as an error above.
				return map[string]any{
					"success":       true,
					"movedTestId":   issueKey,
					"newFolderPath": folderPath,
				}, nil
			},
		},
		{
			Name:        "get_dataset",
			Description: "Retrieve a specific dataset for data-driven testing.",
			InputSchema: schema([]string{"test_issue_id"}, map[string]any{
				"test_issue_id": stringArg("Jira issue id or key of the test owning the dataset"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				testKey, err := args.String("test_issue_id")
				if err != nil {
					return nil, err
				}
				id, err := deps.resolve(ctx, testKey, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, getDatasetQuery, map[string]any{"testIssueId": id})
				if err != nil {
					return nil, err
				}
				return entity(data, "getDataset", "Dataset for test", testKey)
			},
		},
		{
			Name:        "get_datasets",
			Description: "Retrieve datasets for multiple tests.",
			InputSchema: schema([]string{"test_issue_ids"}, map[string]any{
				"test_issue_ids": stringListArg("Jira issue ids or keys of the tests to fetch datasets for"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				testKeys, err := args.StringSlice("test_issue_ids")
				if err != nil {
					return nil, err
				}
				if len(testKeys) == 0 {
					return nil, errdefs.Validationf("test_issue_ids cannot be empty")
				}
				ids, err := deps.resolveAll(ctx, testKeys, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, getDatasetsQuery, map[string]any{"testIssueIds": ids})
				if err != nil {
					return nil, err
				}
				return subtree(data, "getDatasets", "Failed to retrieve datasets")
			},
		},
	})
}
