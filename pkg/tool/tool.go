// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

// Package tool implements the MCP-facing tool facade over the Xray GraphQL
// client: a registry of named tools, JSON-schema validation of their
// arguments, and a single catch-once error boundary that renders every
// failure as the two-field {"error","type"} envelope.
//
// Handlers stay thin. They coerce arguments, route JQL through the
// validator and issue keys through the resolver, run one or two GraphQL
// operations, and shape the answer. Everything cross-cutting (correlation
// ids, logging, schema checks, panic containment, error classification)
// lives in Registry.Call so no handler can leak a raw error or a stack
// trace to the model.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	xsync "github.com/puzpuzpuz/xsync/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/xraymcp/core/pkg/errdefs"
	"github.com/xraymcp/core/pkg/logging"
)

var fastJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// encodingFailure is the payload of last resort when even the error
// envelope cannot be marshaled.
const encodingFailure = `{"error":"internal encoding failure","type":"GraphQLError"}`

// Handler executes a single tool call. It returns either a json.RawMessage
// to pass through verbatim or any marshalable value.
type Handler func(ctx context.Context, args Args) (any, error)

// Tool describes one MCP tool: its wire name, the description shown to the
// model, a JSON schema for its arguments, and the handler that runs it.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     Handler
}

type registered struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry is a thread-safe collection of tools keyed by name.
type Registry struct {
	tools *xsync.Map[string, *registered]

	mu    sync.Mutex
	names []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: xsync.NewMap[string, *registered]()}
}

// Register adds a tool to the registry. The tool's input schema is compiled
// eagerly so malformed schemas fail at wiring time, not on the first call.
// Registering the same name twice is an error.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}
	schema, err := compileSchema(t.Name, t.InputSchema)
	if err != nil {
		return fmt.Errorf("compiling input schema for tool %q: %w", t.Name, err)
	}
	if _, loaded := r.tools.LoadOrStore(t.Name, &registered{tool: t, schema: schema}); loaded {
		return fmt.Errorf("tool %q is already registered", t.Name)
	}
	r.mu.Lock()
	r.names = append(r.names, t.Name)
	r.mu.Unlock()
	return nil
}

func (r *Registry) registerAll(tools []Tool) error {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.Lock()
	names := make([]string, len(r.names))
	copy(names, r.names)
	r.mu.Unlock()

	out := make([]Tool, 0, len(names))
	for _, name := range names {
		if reg, ok := r.tools.Load(name); ok {
			out = append(out, reg.tool)
		}
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return r.tools.Size()
}

// Call executes the named tool and always returns a JSON payload: the
// handler's result on success, the {"error","type"} envelope on any
// failure. Errors never escape this boundary.
func (r *Registry) Call(ctx context.Context, name string, rawArgs json.RawMessage) json.RawMessage {
	log := logging.GetLogger().With("toolName", name, "callID", uuid.NewString())

	payload, err := r.call(ctx, name, rawArgs, log)
	if err != nil {
		envelope := errdefs.ToEnvelope(err)
		log.Warn("Tool call failed", "errorType", envelope.Type, "error", envelope.Error)
		out, merr := fastJSON.Marshal(envelope)
		if merr != nil {
			return json.RawMessage(encodingFailure)
		}
		return out
	}
	log.Debug("Tool call finished")
	return payload
}

func (r *Registry) call(ctx context.Context, name string, rawArgs json.RawMessage, log *slog.Logger) (payload json.RawMessage, err error) {
	reg, ok := r.tools.Load(name)
	if !ok {
		return nil, errdefs.Validationf("Unknown tool: %s", name)
	}
	log.Debug("Tool call started")

	defer func() {
		if rec := recover(); rec != nil {
			err = errdefs.GraphQLf("Tool %s panicked: %v", name, rec)
		}
	}()

	args, err := decodeArgs(rawArgs)
	if err != nil {
		return nil, err
	}
	if reg.schema != nil {
		if verr := reg.schema.Validate(map[string]any(args)); verr != nil {
			return nil, errdefs.Validationf("Invalid arguments for %s: %v", name, verr)
		}
	}

	out, err := reg.tool.Handler(ctx, args)
	if err != nil {
		return nil, err
	}
	if raw, ok := out.(json.RawMessage); ok {
		return raw, nil
	}
	encoded, merr := fastJSON.Marshal(out)
	if merr != nil {
		return nil, errdefs.GraphQLf("Failed to encode result of %s: %v", name, merr)
	}
	return encoded, nil
}

// compileSchema turns the in-memory schema document into a validator.
// A nil document means the tool accepts anything.
func compileSchema(name string, src map[string]any) (*jsonschema.Schema, error) {
	if src == nil {
		return nil, nil
	}
	raw, err := fastJSON.Marshal(src)
	if err != nil {
		return nil, err
	}
	url := "mcp:///tools/" + name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}
