// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

// Package health wires the upstream reachability probe into /healthz for
// HTTP mode. The checker issues the same one-row query the
// validate_connection tool uses, through the authenticated GraphQL client,
// so a green check proves DNS, TLS, authentication, and the GraphQL
// endpoint in one round trip.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/alexliesenfeld/health"

	"github.com/xraymcp/core/pkg/logging"
)

// probeQuery is the cheapest authenticated round trip the Xray API offers.
const probeQuery = `query ValidateConnection { getTests(limit: 1) { total } }`

const (
	probeTimeout  = 5 * time.Second
	cacheDuration = time.Second
)

// Executor runs GraphQL operations against Xray. *xray.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, operation string, variables map[string]any) (json.RawMessage, error)
}

// NewChecker builds a checker around the upstream probe. Results are cached
// briefly so a scrape storm cannot multiply load on the Xray API.
func NewChecker(exec Executor) health.Checker {
	return health.NewChecker(
		health.WithCacheDuration(cacheDuration),
		health.WithCheck(health.Check{
			Name:    "xray",
			Timeout: probeTimeout,
			Check: func(ctx context.Context) error {
				_, err := exec.Execute(ctx, probeQuery, nil)
				return err
			},
		}),
		health.WithStatusListener(func(_ context.Context, state health.CheckerState) {
			logging.GetLogger().Info("Health status changed", "status", state.Status)
		}),
	)
}

// Handler exposes the checker over HTTP: 200 while the upstream answers,
// 503 once it stops.
func Handler(checker health.Checker) http.Handler {
	return health.NewHandler(checker)
}
