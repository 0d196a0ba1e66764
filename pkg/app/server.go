// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

// Package app assembles the server from its parts and runs it over the
// chosen transport: an MCP stdio session by default, or an HTTP listener
// carrying the streamable MCP handler plus /healthz.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/xraymcp/core/pkg/auth"
	"github.com/xraymcp/core/pkg/config"
	"github.com/xraymcp/core/pkg/health"
	"github.com/xraymcp/core/pkg/logging"
	"github.com/xraymcp/core/pkg/mcpserver"
	"github.com/xraymcp/core/pkg/resolver"
	"github.com/xraymcp/core/pkg/tool"
	"github.com/xraymcp/core/pkg/xray"
)

// ShutdownTimeout is the duration the HTTP listener waits for in-flight
// requests before closing them.
var ShutdownTimeout = 5 * time.Second

// Options selects the serving transport. An empty HTTPAddr means a single
// MCP session over stdin/stdout.
type Options struct {
	HTTPAddr string
}

// Runner is the surface the command layer drives, extracted so command
// tests can substitute the application.
type Runner interface {
	Run(ctx context.Context, opts Options) error
}

// Application wires credentials, token refresh, the GraphQL client, the
// issue-key resolver, and the tool registry into an MCP server.
type Application struct{}

// NewApplication returns the production Runner.
func NewApplication() *Application {
	return &Application{}
}

// components is the assembled graph below the transport layer.
type components struct {
	server   *mcpserver.Server
	client   *xray.Client
	registry *tool.Registry
}

// Run builds the component graph from the environment and serves MCP until
// ctx is canceled. Credential problems surface before any transport starts.
func (a *Application) Run(ctx context.Context, opts Options) error {
	log := logging.GetLogger()

	creds, err := config.FromEnv()
	if err != nil {
		return err
	}
	log.Info("Configuration loaded", "credentials", creds)

	comps, err := build(creds)
	if err != nil {
		return err
	}
	log.Info("Tool registry ready", "tools", comps.registry.Len())

	if opts.HTTPAddr == "" {
		log.Info("Starting in stdio mode")
		return comps.server.RunStdio(ctx)
	}
	return runHTTPMode(ctx, comps, opts.HTTPAddr)
}

// build assembles the component graph for the given credentials.
func build(creds *config.Credentials) (*components, error) {
	tokens := auth.New(creds)
	client := xray.New(creds.BaseURL(), tokens)

	registry := tool.NewRegistry()
	deps := tool.Deps{Client: client, Resolver: resolver.New(client)}
	if err := tool.RegisterAll(registry, deps); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	return &components{
		server:   mcpserver.New(registry),
		client:   client,
		registry: registry,
	}, nil
}

// runHTTPMode serves the streamable MCP handler under /mcp and the health
// endpoint under /healthz until ctx is canceled, then drains.
func runHTTPMode(ctx context.Context, comps *components, addr string) error {
	checker := health.NewChecker(comps.client)
	defer checker.Stop()

	mux := http.NewServeMux()
	mux.Handle("/mcp", comps.server.HTTPHandler())
	mux.Handle("/healthz", health.Handler(checker))

	errChan := make(chan error, 1)
	var wg sync.WaitGroup
	startHTTPServer(ctx, &wg, errChan, addr, mux)

	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start the HTTP server: %w", err)
	case <-ctx.Done():
		logging.GetLogger().Info("Received shutdown signal, shutting down gracefully...")
	}

	wg.Wait()
	logging.GetLogger().Info("Server shut down.")
	return nil
}

// startHTTPServer starts an HTTP server in a new goroutine. It handles
// graceful shutdown when the context is canceled.
func startHTTPServer(ctx context.Context, wg *sync.WaitGroup, errChan chan<- error, addr string, handler http.Handler) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		serverLog := logging.GetLogger().With("server", "xray-mcp HTTP", "addr", addr)
		server := &http.Server{
			Addr:    addr,
			Handler: handler,
		}

		go func() {
			serverLog.Info("HTTP server listening")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errChan <- fmt.Errorf("server failed: %w", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		serverLog.Info("Attempting to gracefully shut down server...")
		if err := server.Shutdown(shutdownCtx); err != nil {
			serverLog.Error("Shutdown error", "error", err)
		}
		serverLog.Info("Server shut down.")
	}()
}
