// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"github.com/xraymcp/core/pkg/errdefs"
	"github.com/xraymcp/core/pkg/jql"
)

// optionalJQL validates and normalizes the "jql" argument when present.
// It returns nil when absent so the GraphQL variable stays null.
func optionalJQL(args Args) (any, error) {
	raw, err := args.OptionalString("jql")
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	normalized, err := jql.Validate(raw)
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

// requiredJQL validates and normalizes a mandatory "jql" argument.
func requiredJQL(args Args) (string, error) {
	raw, err := args.String("jql")
	if err != nil {
		return "", err
	}
	return jql.Validate(raw)
}

// validateProjectKey enforces the uppercase alphanumeric shape of Jira
// project keys before they reach a mutation.
func validateProjectKey(key string) error {
	hasLetter := false
	for _, r := range key {
		switch {
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
		default:
			return errdefs.Validationf("Invalid project key: %s (expected an uppercase alphanumeric key like PROJ)", key)
		}
	}
	if !hasLetter {
		return errdefs.Validationf("Invalid project key: %s (expected an uppercase alphanumeric key like PROJ)", key)
	}
	return nil
}

// validateTestType restricts test types to the three kinds Xray knows.
func validateTestType(testType string) error {
	switch testType {
	case "Manual", "Cucumber", "Generic":
		return nil
	}
	return errdefs.Validationf("Invalid test type: %s (must be one of: Manual, Cucumber, Generic)", testType)
}
