// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/xraymcp/core/pkg/errdefs"
	"github.com/xraymcp/core/pkg/resolver"
)

const getXrayHistoryQuery = `query GetXrayHistory($issueId: String!, $testPlanId: String, $testEnvId: String, $start: Int!, $limit: Int!) {
	getTest(issueId: $issueId) {
		history(testPlanId: $testPlanId, testEnvironmentId: $testEnvId, start: $start, limit: $limit) {
			total
			start
			limit
			results {
				executionId
				testRunId
				status {
					name
					color
				}
				executedBy {
					displayName
					emailAddress
				}
				executedOn
				environment
				testPlan {
					issueId
					summary
				}
				comment
				defects {
					issueId
					summary
					status {
						name
					}
				}
				evidence {
					id
					filename
					url
					mimeType
					size
					uploadedBy {
						displayName
					}
					uploadedOn
				}
			}
		}
	}
}`

const uploadAttachmentMutation = `mutation UploadAttachment($stepId: String!, $fileInput: AttachmentInput!) {
	uploadAttachment(stepId: $stepId, file: $fileInput) {
		success
		attachment {
			id
			filename
			url
			mimeType
			size
			uploadedBy {
				displayName
				emailAddress
			}
			uploadedOn
			description
		}
	}
}`

const deleteAttachmentMutation = `mutation DeleteAttachment($attachmentId: String!) {
	deleteAttachment(attachmentId: $attachmentId) {
		success
	}
}`

func registerHistory(reg *Registry, deps Deps) error {
	return reg.registerAll([]Tool{
		{
			Name:        "get_xray_history",
			Description: "Retrieve Xray execution history for a test.",
			InputSchema: schema([]string{"issue_id"}, map[string]any{
				"issue_id":            stringArg("Jira issue id or key of the test"),
				"test_plan_id":        stringArg("Test plan issue id or key to filter history by"),
				"test_environment_id": stringArg("Test environment id to filter history by"),
				"start":               intArg("Zero-based index of the first history entry to return"),
				"limit":               limitArg(),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, err := args.String("issue_id")
				if err != nil {
					return nil, err
				}
				testPlanKey, err := args.OptionalString("test_plan_id")
				if err != nil {
					return nil, err
				}
				testEnvID, err := args.OptionalString("test_environment_id")
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
				var planVar any
				if testPlanKey != "" {
					planID, err := deps.resolve(ctx, testPlanKey, resolver.KindTestPlan)
					if err != nil {
						return nil, err
					}
					planVar = planID
				}
				data, err := deps.Client.Execute(ctx, getXrayHistoryQuery, map[string]any{
					"issueId":    id,
					"testPlanId": planVar,
					"testEnvId":  nullable(testEnvID),
					"start":      start,
					"limit":      limit,
				})
				if err != nil {
					return nil, err
				}
				return subtree(data, "getTest.history", "Failed to retrieve Xray history for test "+issueKey)
			},
		},
		{
			Name:        "upload_attachment",
			Description: "Upload an attachment to a test step.",
			InputSchema: schema([]string{"step_id", "file"}, map[string]any{
				"step_id": stringArg("Id of the test step to attach the file to"),
				"file":    structuredArg("Attachment descriptor with filename, content (base64), mimeType and optional description"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				stepID, err := args.String("step_id")
				if err != nil {
					return nil, err
				}
				file, err := args.StructuredMap("file")
				if err != nil {
					return nil, err
				}
				if file == nil {
					return nil, errdefs.Validationf("Missing required argument: file")
				}
				fileInput := map[string]any{
					"filename": file["filename"],
					"content":  file["content"],
					"mimeType": file["mimeType"],
				}
				if desc, ok := file["description"]; ok {
					fileInput["description"] = desc
				}
				data, err := deps.Client.Execute(ctx, uploadAttachmentMutation, map[string]any{
					"stepId":    stepID,
					"fileInput": fileInput,
				})
				if err != nil {
					return nil, err
				}
				return subtree(data, "uploadAttachment", "Failed to upload attachment to step "+stepID)
			},
		},
		{
			Name:        "delete_attachment",
			Description: "Delete an attachment from Xray.",
			InputSchema: schema([]string{"attachment_id"}, map[string]any{
				"attachment_id": stringArg("Id of the attachment to delete"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				attachmentID, err := args.String("attachment_id")
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, deleteAttachmentMutation, map[string]any{"attachmentId": attachmentID})
				if err != nil {
					return nil, err
				}
				node := gjson.GetBytes(data, "deleteAttachment.success")
				if !node.Exists() {
					return nil, errdefs.GraphQLf("Failed to delete attachment %s", attachmentID)
				}
				return map[string]any{"success": node.Bool(), "deletedAttachmentId": attachmentID}, nil
			},
		},
	})
}
