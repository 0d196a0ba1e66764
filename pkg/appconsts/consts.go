// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package appconsts

const (
	// Name is the binary and MCP implementation name. It is used in help
	// messages, the MCP handshake, and other user-facing output.
	Name = "xray-mcp"
)

// Version is the server version. It is a variable so it can be set at build
// time using ldflags. The default value is "dev", which is used for local
// development builds.
var Version = "dev"
