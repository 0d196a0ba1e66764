// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package tool

// RegisterAll registers every Xray tool family on the registry. Tools keep
// their registration order, so listings stay grouped by family.
func RegisterAll(reg *Registry, deps Deps) error {
	for _, register := range []func(*Registry, Deps) error{
		registerTests,
		registerGherkin,
		registerExecutions,
		registerPlans,
		registerSets,
		registerPreconditions,
		registerRuns,
		registerCoverage,
		registerHistory,
		registerOrganization,
		registerVersioning,
		registerUtility,
	} {
		if err := register(reg, deps); err != nil {
			return err
		}
	}
	return nil
}
