// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraymcp/core/pkg/tool"
)

func newDocsCmd() *cobra.Command {
	docsCmd := &cobra.Command{
		Use:   "docs",
		Short: "Generate Markdown documentation for the tool surface",
		Long: `Render a Markdown file listing every tool the server exposes,
with its description and input schema.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Rendering never invokes a handler, so the registry is built
			// without upstream collaborators.
			registry := tool.NewRegistry()
			if err := tool.RegisterAll(registry, tool.Deps{}); err != nil {
				return fmt.Errorf("failed to register tools: %w", err)
			}

			markdown := generateMarkdown(registry.Tools())

			outputPath, _ := cmd.Flags().GetString("output")
			if outputPath != "" {
				if err := os.WriteFile(outputPath, []byte(markdown), 0o644); err != nil {
					return fmt.Errorf("failed to write output file: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Documentation generated at %s\n", outputPath)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), markdown)
			return nil
		},
	}

	docsCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")

	return docsCmd
}

// generateMarkdown renders the tools in registration order, which keeps
// each family's tools together.
func generateMarkdown(tools []tool.Tool) string {
	var sb strings.Builder
	sb.WriteString("# Tool Documentation\n\n")
	sb.WriteString("This document lists the tools the Xray MCP server exposes.\n\n")

	if len(tools) == 0 {
		sb.WriteString("*No tools registered.*\n")
		return sb.String()
	}

	for _, t := range tools {
		sb.WriteString(fmt.Sprintf("## %s\n\n", t.Name))

		if t.Description != "" {
			sb.WriteString(fmt.Sprintf("%s\n\n", t.Description))
		}

		sb.WriteString("### Input Schema\n\n")
		if t.InputSchema == nil {
			sb.WriteString("_No input schema defined_\n\n")
			continue
		}
		pretty, err := json.MarshalIndent(t.InputSchema, "", "  ")
		if err != nil {
			sb.WriteString("_Error marshaling input schema_\n\n")
			continue
		}
		sb.WriteString("```json\n")
		sb.Write(pretty)
		sb.WriteString("\n```\n\n")
	}

	return sb.String()
}
