package transport

import "context"

// TokenProvider dynamically supplies OAuth access tokens for a connection.
// Implementations should return the current valid access token, potentially
// refreshing it if needed, enabling token rotation without recreating the
// underlying MCP client connection.
type TokenProvider interface {
	// GetAccessToken returns the current access token for ctx, or an empty
	// string if no token is available.
	GetAccessToken(ctx context.Context) string
}

// TokenProviderFunc adapts a plain function to TokenProvider.
type TokenProviderFunc func(ctx context.Context) string

// GetAccessToken implements TokenProvider.
func (f TokenProviderFunc) GetAccessToken(ctx context.Context) string { return f(ctx) }

// StaticTokenProvider is a TokenProvider that always returns the same token,
// useful for servers whose bearer token is fixed for the process lifetime.
type StaticTokenProvider string

// GetAccessToken implements TokenProvider.
func (s StaticTokenProvider) GetAccessToken(context.Context) string { return string(s) }

// tokenProviderToHeaderFunc adapts a TokenProvider to the header-producing
// function shape the remote clients' header materialization expects.
func tokenProviderToHeaderFunc(provider TokenProvider) func(ctx context.Context) map[string]string {
	return func(ctx context.Context) map[string]string {
		token := provider.GetAccessToken(ctx)
		if token == "" {
			return nil
		}
		return map[string]string{"Authorization": "Bearer " + token}
	}
}
