// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

// Package mcpserver exposes the tool registry over the Model Context
// Protocol. Every registered tool is advertised with its JSON schema and
// dispatched back into the registry, whose error boundary guarantees the
// response is always a JSON payload: the tool's answer on success, the
// {"error","type"} envelope on failure. Envelope payloads are additionally
// flagged IsError so protocol clients can branch without parsing the text.
package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/xraymcp/core/pkg/appconsts"
	"github.com/xraymcp/core/pkg/errdefs"
	"github.com/xraymcp/core/pkg/tool"
)

var fastJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Server wraps an mcp.Server whose tool surface mirrors a tool.Registry.
type Server struct {
	server   *mcp.Server
	registry *tool.Registry
}

// New builds the MCP server and advertises every tool currently in the
// registry. The registry is fully populated at wiring time, so the tool
// list never changes over the life of the server.
func New(registry *tool.Registry) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    appconsts.Name,
			Version: appconsts.Version,
		}, &mcp.ServerOptions{}),
		registry: registry,
	}
	for _, t := range registry.Tools() {
		s.server.AddTool(&mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}, s.handler(t.Name))
	}
	return s
}

// Server returns the underlying *mcp.Server instance for transport hookup
// or advanced configuration.
func (s *Server) Server() *mcp.Server {
	return s.server
}

// handler adapts one registry tool to the SDK's call signature. The
// registry never surfaces a Go error; failures arrive as the envelope
// payload, which is marked IsError here.
func (s *Server) handler(name string) func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload := s.registry.Call(ctx, name, req.Params.Arguments)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
			IsError: isEnvelope(payload),
		}, nil
	}
}

// RunStdio serves one MCP session over stdin/stdout until ctx is done or
// the peer disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler returns the streamable HTTP handler for the server, mounted
// next to /healthz in HTTP mode.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// isEnvelope reports whether payload is the two-field error envelope and
// nothing else. Tool results are GraphQL subtrees or synthesized success
// objects, which never take that exact shape.
func isEnvelope(payload []byte) bool {
	var fields map[string]json.RawMessage
	if err := fastJSON.Unmarshal(payload, &fields); err != nil || len(fields) != 2 {
		return false
	}
	var env errdefs.Envelope
	if err := fastJSON.Unmarshal(payload, &env); err != nil {
		return false
	}
	return env.Error != "" && env.Type.Valid()
}
