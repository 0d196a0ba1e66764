// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

// Package main implements the xray-mcp command, an MCP server exposing
// Jira Xray test management over stdio or streamable HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/xraymcp/core/pkg/app"
	"github.com/xraymcp/core/pkg/appconsts"
	"github.com/xraymcp/core/pkg/logging"
)

var appRunner app.Runner = app.NewApplication()

type serveOptions struct {
	httpAddr string
	envFile  string
	debug    bool
}

// newRootCmd creates the main command. Running the bare binary serves MCP
// over stdio; `serve` does the same explicitly and takes `--http <addr>`
// for the streamable HTTP mode.
func newRootCmd() *cobra.Command {
	opts := &serveOptions{}

	rootCmd := &cobra.Command{
		Use:   appconsts.Name,
		Short: "MCP server for Jira Xray test management",
		RunE: func(*cobra.Command, []string) error {
			return runServe(opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.httpAddr, "http", "", "Serve streamable HTTP on this address instead of stdio (e.g. :8080)")
	flags.StringVar(&opts.envFile, "env-file", "", "Load environment variables from this file before reading credentials")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio by default)",
		RunE: func(*cobra.Command, []string) error {
			return runServe(opts)
		},
	}
	rootCmd.AddCommand(serveCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of " + appconsts.Name,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appconsts.Name, appconsts.Version)
			if err != nil {
				return fmt.Errorf("failed to print version: %w", err)
			}
			return nil
		},
	}
	rootCmd.AddCommand(versionCmd)

	rootCmd.AddCommand(newDocsCmd())

	return rootCmd
}

func runServe(opts *serveOptions) error {
	if err := loadDotenv(opts.envFile); err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if opts.debug {
		logLevel = slog.LevelDebug
	}
	// Stdout belongs to the MCP protocol in stdio mode; logs always go to
	// stderr so the JSON-RPC channel stays clean.
	logging.Init(logLevel, os.Stderr)
	log := logging.GetLogger().With("service", appconsts.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode := "stdio"
	if opts.httpAddr != "" {
		mode = "http"
	}
	log.Info("Starting Xray MCP server", "version", appconsts.Version, "mode", mode)

	if err := appRunner.Run(ctx, app.Options{HTTPAddr: opts.httpAddr}); err != nil {
		log.Error("Application failed", "error", err)
		return err
	}
	log.Info("Shutdown complete.")
	return nil
}

// loadDotenv loads credentials from a dotenv file. The default .env is
// optional; a file named explicitly must exist.
func loadDotenv(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// main is the entry point for the xray-mcp server. The application exits
// with a non-zero status code if an error occurs during execution.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
