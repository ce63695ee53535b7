// Package transport implements the Connection (C5) layer: one concrete MCP
// client per transport kind (stdio, SSE, streamable-HTTP), all satisfying the
// same MCPClient interface so the orchestrator and connection pool above them
// never need to know which wire format a given server actually speaks.
//
// Transport selection, header/env materialization, and OAuth promotion all
// happen one layer up; this package just knows how to open a mark3labs/mcp-go
// client of the requested kind and drive the shared protocol operations
// (ListTools, CallTool, ListResources, ...) against it.
package transport
