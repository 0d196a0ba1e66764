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

const getTestVersionsQuery = `query GetTestVersions($issueId: String!) {
	getTest(issueId: $issueId) {
		testVersions(limit: 100) {
			results {
				id
				name
				default
				archived
				testType {
					name
					kind
				}
				lastModified
				steps {
					action
					data
					result
				}
				gherkin
				unstructured
				scenarioType
			}
		}
	}
}`

const archiveTestVersionMutation = `mutation ArchiveTestVersion($issueId: String!, $versionId: Int!) {
	archiveTestVersion(issueId: $issueId, versionId: $versionId) {
		success
		archivedVersion {
			id
			name
			archived
			lastModified
		}
	}
}`

const restoreTestVersionMutation = `mutation RestoreTestVersion($issueId: String!, $versionId: Int!) {
	restoreTestVersion(issueId: $issueId, versionId: $versionId) {
		success
		restoredVersion {
			id
			name
			archived
			lastModified
		}
		currentVersion {
			id
			name
			default
			testType {
				name
			}
		}
	}
}`

const createTestVersionFromMutation = `mutation CreateTestVersionFrom($issueId: String!, $sourceVersionId: Int!) {
	createTestVersionFrom(issueId: $issueId, sourceVersionId: $sourceVersionId) {
		success
		newVersion {
			id
			name
			default
			archived
			testType {
				name
			}
			lastModified
		}
		sourceVersion {
			id
			name
			default
		}
	}
}`

func registerVersioning(reg *Registry, deps Deps) error {
	return reg.registerAll([]Tool{
		{
			Name:        "get_test_versions",
			Description: "Retrieve all versions of a test.",
			InputSchema: schema([]string{"issue_id"}, map[string]any{
				"issue_id": stringArg("Jira issue id or key of the test"),
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
				data, err := deps.Client.Execute(ctx, getTestVersionsQuery, map[string]any{"issueId": id})
				if err != nil {
					return nil, err
				}
				node := gjson.GetBytes(data, "getTest.testVersions.results")
				versions := any([]any{})
				if node.Exists() && node.Type != gjson.Null {
					versions = json.RawMessage(node.Raw)
				}
				return map[string]any{"versions": versions}, nil
			},
		},
		{
			Name:        "archive_test_version",
			Description: "Archive a specific version of a test.",
			InputSchema: schema([]string{"issue_id", "version_id"}, map[string]any{
				"issue_id":   stringArg("Jira issue id or key of the test"),
				"version_id": intArg("Numeric id of the version to archive"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, versionID, err := versionArgs(args)
				if err != nil {
					return nil, err
				}
				id, err := deps.resolve(ctx, issueKey, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, archiveTestVersionMutation, map[string]any{
					"issueId":   id,
					"versionId": versionID,
				})
				if err != nil {
					return nil, err
				}
				return subtree(data, "archiveTestVersion", "Failed to archive version of test "+issueKey)
			},
		},
		{
			Name:        "restore_test_version",
			Description: "Restore an archived version of a test.",
			InputSchema: schema([]string{"issue_id", "version_id"}, map[string]any{
				"issue_id":   stringArg("Jira issue id or key of the test"),
				"version_id": intArg("Numeric id of the version to restore"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, versionID, err := versionArgs(args)
				if err != nil {
					return nil, err
				}
				id, err := deps.resolve(ctx, issueKey, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, restoreTestVersionMutation, map[string]any{
					"issueId":   id,
					"versionId": versionID,
				})
				if err != nil {
					return nil, err
				}
				return subtree(data, "restoreTestVersion", "Failed to restore version of test "+issueKey)
			},
		},
		{
			Name:        "create_test_version_from",
			Description: "Create a new test version from an existing one.",
			InputSchema: schema([]string{"issue_id", "version_id"}, map[string]any{
				"issue_id":   stringArg("Jira issue id or key of the test"),
				"version_id": intArg("Numeric id of the version to copy from"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, versionID, err := versionArgs(args)
				if err != nil {
					return nil, err
				}
				id, err := deps.resolve(ctx, issueKey, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, createTestVersionFromMutation, map[string]any{
					"issueId":         id,
					"sourceVersionId": versionID,
				})
				if err != nil {
					return nil, err
				}
				return subtree(data, "createTestVersionFrom", "Failed to create version of test "+issueKey)
			},
		},
	})
}

func versionArgs(args Args) (string, int, error) {
	issueKey, err := args.String("issue_id")
	if err != nil {
		return "", 0, err
	}
	versionID, ok, err := args.OptionalInt("version_id")
	if err != nil {
		return "", 0, err
	}
	if !ok {
		return "", 0, errdefs.Validationf("Missing required argument: version_id")
	}
	return issueKey, versionID, nil
}
