// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"strings"

	"github.com/xraymcp/core/pkg/errdefs"
	"github.com/xraymcp/core/pkg/resolver"
)

const updateGherkinWithValidationMutation = `mutation UpdateGherkinDefinition($issueId: String!, $gherkinText: String!) {
	updateGherkinTestDefinition(issueId: $issueId, gherkin: $gherkinText) {
		success
		test {
			issueId
			summary
			testType {
				name
				kind
			}
			gherkin
			updated
		}
		validation {
			isValid
			warnings
			errors
		}
	}
}`

func registerGherkin(reg *Registry, deps Deps) error {
	return reg.registerAll([]Tool{
		{
			Name:        "update_gherkin_definition",
			Description: "Update the Gherkin scenario definition for a Cucumber test.",
			InputSchema: schema([]string{"issue_id", "gherkin_text"}, map[string]any{
				"issue_id":     stringArg("Jira issue id or key of the Cucumber test"),
				"gherkin_text": stringArg("Complete Gherkin scenario text"),
			}),
			Handler: func(ctx context.Context, args Args) (any, error) {
				issueKey, err := args.String("issue_id")
				if err != nil {
					return nil, err
				}
				gherkinText, err := args.String("gherkin_text")
				if err != nil {
					return nil, err
				}
				if strings.TrimSpace(gherkinText) == "" {
					return nil, errdefs.Validationf("gherkin_text cannot be empty")
				}
				id, err := deps.resolve(ctx, issueKey, resolver.KindTest)
				if err != nil {
					return nil, err
				}
				data, err := deps.Client.Execute(ctx, updateGherkinWithValidationMutation, map[string]any{
					"issueId":     id,
					"gherkinText": gherkinText,
				})
				if err != nil {
					return nil, err
				}
				return subtree(data, "updateGherkinTestDefinition", "Failed to update Gherkin definition")
			},
		},
	})
}
