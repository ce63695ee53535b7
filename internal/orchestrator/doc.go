// Package orchestrator drives the state machine that turns a
// ServerDefinition into a live transport.MCPClient: stdio servers connect
// directly; HTTP servers try streamable-HTTP, fall back to SSE on a
// non-auth failure, and on a 401/403 from either transport promote the
// connection to OAuth (at most once per server name) before retrying.
package orchestrator
