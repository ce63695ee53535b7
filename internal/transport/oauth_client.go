package transport

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"mcprt/pkg/logging"
)

// DynamicAuthClient implements MCPClient over streamable-HTTP using
// mcp-go's built-in OAuth handler for bearer-token injection and typed 401
// handling, instead of a static Authorization header.
//
// The TokenStore is queried by mcp-go on every request for the current
// access token, and is notified whenever mcp-go itself refreshes the token -
// see internal/oauthsession for the adapter that persists those refreshes.
type DynamicAuthClient struct {
	baseMCPClient
	url        string
	tokenStore transport.TokenStore
	scopes     []string
}

// NewDynamicAuthClient creates a streamable-HTTP client that authenticates
// via mcp-go's OAuth handler, backed by tokenStore. name identifies the
// server this connection belongs to, for log/error correlation across the
// many concurrent connections a Runtime may hold.
func NewDynamicAuthClient(name, url string, tokenStore transport.TokenStore, scopes []string, log *logging.Logger) *DynamicAuthClient {
	return &DynamicAuthClient{
		baseMCPClient: baseMCPClient{log: log, name: name},
		url:           url,
		tokenStore:    tokenStore,
		scopes:        scopes,
	}
}

// Initialize establishes the connection and performs protocol handshake.
func (c *DynamicAuthClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	c.logger().Debug("transport.oauth", "%s: connecting to %s with OAuth handler", c.label(), c.url)

	opts := []transport.StreamableHTTPCOption{
		transport.WithHTTPOAuth(transport.OAuthConfig{
			TokenStore: c.tokenStore,
			Scopes:     c.scopes,
		}),
	}

	mcpClient, err := client.NewStreamableHttpClient(c.url, opts...)
	if err != nil {
		return fmt.Errorf("%s: failed to create streamable-HTTP client: %w", c.label(), err)
	}

	initResult, err := mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: "2024-11-05",
			ClientInfo:      clientInfo(),
			Capabilities:    mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		mcpClient.Close()

		if authErr := CheckForAuthRequiredError(ctx, err, c.url); authErr != nil {
			c.logger().Debug("transport.oauth", "%s: authentication required for %s", c.label(), c.url)
			return authErr
		}

		return fmt.Errorf("%s: failed to initialize MCP protocol: %w", c.label(), err)
	}

	c.client = mcpClient
	c.connected = true

	c.logger().Debug("transport.oauth", "%s: initialized %s with OAuth handler, server %s %s",
		c.label(), c.url, initResult.ServerInfo.Name, initResult.ServerInfo.Version)

	return nil
}

// Close cleanly shuts down the client connection.
func (c *DynamicAuthClient) Close() error { return c.closeClient() }

// ListTools returns all available tools from the server.
func (c *DynamicAuthClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return c.listTools(ctx)
}

// CallTool executes a specific tool and returns the result.
func (c *DynamicAuthClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}

// ListResources returns all available resources from the server.
func (c *DynamicAuthClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	return c.listResources(ctx)
}

// ReadResource retrieves a specific resource.
func (c *DynamicAuthClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return c.readResource(ctx, uri)
}

// ListPrompts returns all available prompts from the server.
func (c *DynamicAuthClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	return c.listPrompts(ctx)
}

// GetPrompt retrieves a specific prompt.
func (c *DynamicAuthClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return c.getPrompt(ctx, name, args)
}

// Ping checks if the server is responsive.
func (c *DynamicAuthClient) Ping(ctx context.Context) error { return c.ping(ctx) }
