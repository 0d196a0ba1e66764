// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraymcp/core/pkg/errdefs"
	"github.com/xraymcp/core/pkg/resolver"
	"github.com/xraymcp/core/pkg/tool"
)

type stubExecutor struct {
	reply string
}

func (s *stubExecutor) Execute(context.Context, string, map[string]any) (json.RawMessage, error) {
	if s.reply == "" {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(s.reply), nil
}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, key string, _ resolver.Kind) (string, error) {
	return key, nil
}

func newBridgeRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(tool.Tool{
		Name:        "echo_value",
		Description: "Echoes the value argument back.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"value": map[string]any{"type": "string"},
			},
			"required": []string{"value"},
		},
		Handler: func(_ context.Context, args tool.Args) (any, error) {
			v, err := args.String("value")
			if err != nil {
				return nil, err
			}
			return map[string]any{"echoed": v}, nil
		},
	}))
	require.NoError(t, reg.Register(tool.Tool{
		Name:        "vanish",
		Description: "Always reports a missing entity.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(context.Context, tool.Args) (any, error) {
			return nil, errdefs.NotFoundf("Test PROJ-404 not found")
		},
	}))
	return reg
}

// connect wires a client session to srv over in-memory pipes and returns it
// with cleanup registered.
func connect(t *testing.T, srv *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	serverSession, err := srv.Server().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientSession.Close() })

	return clientSession
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func TestServer_AdvertisesRegisteredTools(t *testing.T) {
	session := connect(t, New(newBridgeRegistry(t)))

	list, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, list.Tools, 2)

	names := make(map[string]bool, len(list.Tools))
	for _, item := range list.Tools {
		names[item.Name] = true
	}
	assert.True(t, names["echo_value"])
	assert.True(t, names["vanish"])
}

func TestServer_CallReturnsPayloadAsText(t *testing.T) {
	session := connect(t, New(newBridgeRegistry(t)))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo_value",
		Arguments: map[string]any{"value": "hi"},
	})
	require.NoError(t, err)

	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"echoed":"hi"}`, textOf(t, result))
}

func TestServer_CallFlagsEnvelopePayloads(t *testing.T) {
	session := connect(t, New(newBridgeRegistry(t)))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "vanish",
		Arguments: map[string]any{},
	})
	require.NoError(t, err)

	assert.True(t, result.IsError)
	assert.JSONEq(t, `{"error":"Test PROJ-404 not found","type":"NotFoundError"}`, textOf(t, result))
}

func TestServer_ServesTheFullToolSurface(t *testing.T) {
	reg := tool.NewRegistry()
	deps := tool.Deps{
		Client:   &stubExecutor{reply: `{"getTests":{"total":0,"start":0,"limit":1,"results":[]}}`},
		Resolver: stubResolver{},
	}
	require.NoError(t, tool.RegisterAll(reg, deps))

	session := connect(t, New(reg))

	list, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)
	assert.Len(t, list.Tools, reg.Len())

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "validate_connection",
		Arguments: map[string]any{},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.JSONEq(t,
		`{"status":"connected","message":"Successfully connected to Xray API","authenticated":true}`,
		textOf(t, result))
}

func TestIsEnvelope(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    bool
	}{
		{"envelope", `{"error":"boom","type":"NetworkError"}`, true},
		{"envelope other kind", `{"error":"nope","type":"ValidationError"}`, true},
		{"unknown kind", `{"error":"x","type":"Bogus"}`, false},
		{"empty message", `{"error":"","type":"NetworkError"}`, false},
		{"extra key", `{"error":"x","type":"NetworkError","hint":"y"}`, false},
		{"one key", `{"error":"x"}`, false},
		{"success object", `{"success":true,"issueId":"10002"}`, false},
		{"array", `[1,2]`, false},
		{"not json", `nonsense`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isEnvelope([]byte(tc.payload)))
		})
	}
}
