// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package tool

// Schema builders for tool input declarations. Tools declare plain JSON
// schema documents as nested maps; these helpers keep the family files
// readable.

func schema(required []string, props map[string]any) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringArg(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intArg(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func limitArg() map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": "Maximum number of results to return; clamped to the 1-100 range the Xray API accepts",
	}
}

func stringListArg(desc string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": desc,
	}
}

// structuredArg admits a JSON object or a string containing one; MCP
// clients routinely send stringified JSON for nested payloads.
func structuredArg(desc string) map[string]any {
	return map[string]any{
		"type":        []string{"object", "string"},
		"description": desc,
	}
}

// structuredListArg admits a JSON array or a string containing one.
func structuredListArg(desc string) map[string]any {
	return map[string]any{
		"type":        []string{"array", "string"},
		"description": desc,
	}
}
