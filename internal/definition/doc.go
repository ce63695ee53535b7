// Package definition loads, merges, and normalizes MCP server definitions
// from a primary JSON/JSONC config file and the set of foreign editor
// configs read by internal/importread.
//
// A Loader owns the merge: imports contribute entries first-wins in import
// order, then the primary config's own mcpServers map overlays on top,
// replacing any import-contributed entry of the same name. The result is a
// ServerDefinition per name, ready for the connect orchestrator.
package definition
