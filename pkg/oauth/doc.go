// Package oauth provides shared OAuth 2.1 types and protocol helpers used by
// internal/oauthsession to authenticate against MCP servers that require it.
//
// # Core Components
//
//   - Token: OAuth token representation with expiry checking
//   - Metadata: OAuth/OIDC server metadata (RFC 8414)
//   - AuthChallenge: Parsed WWW-Authenticate header information
//   - PKCE: Proof Key for Code Exchange generation (RFC 7636)
//   - Client: OAuth client for metadata discovery and token operations
//
// This package knows nothing about where tokens are stored or how the
// authorization code is obtained from the user; internal/oauthsession wraps
// it with file-based token storage and a loopback browser redirect.
package oauth
