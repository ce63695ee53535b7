package transport

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"mcprt/pkg/logging"
)

// SSEClient implements MCPClient over Server-Sent Events.
type SSEClient struct {
	baseMCPClient
	url     string
	headers map[string]string
}

// NewSSEClient creates an SSE-based MCP client for url with the given
// already-materialized headers. name identifies the server this connection
// belongs to, for log/error correlation across the many concurrent
// connections a Runtime may hold.
func NewSSEClient(name, url string, headers map[string]string, log *logging.Logger) *SSEClient {
	if headers == nil {
		headers = make(map[string]string)
	}
	return &SSEClient{
		baseMCPClient: baseMCPClient{log: log, name: name},
		url:           url,
		headers:       headers,
	}
}

// Initialize establishes the connection and performs protocol handshake.
func (c *SSEClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	c.logger().Debug("transport.sse", "%s: connecting to %s", c.label(), c.url)

	var opts []transport.ClientOption
	if len(c.headers) > 0 {
		opts = append(opts, transport.WithHeaders(c.headers))
	}

	mcpClient, err := client.NewSSEMCPClient(c.url, opts...)
	if err != nil {
		return fmt.Errorf("%s: failed to create SSE client: %w", c.label(), err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		if authErr := CheckForAuthRequiredError(ctx, err, c.url); authErr != nil {
			c.logger().Debug("transport.sse", "%s: authentication required for %s", c.label(), c.url)
			return authErr
		}
		return fmt.Errorf("%s: failed to start SSE transport: %w", c.label(), err)
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
			c.logger().Debug("transport.sse", "%s: authentication required for %s", c.label(), c.url)
			return authErr
		}

		return fmt.Errorf("%s: failed to initialize MCP protocol: %w", c.label(), err)
	}

	c.client = mcpClient
	c.connected = true

	c.logger().Debug("transport.sse", "%s: initialized %s, server %s %s",
		c.label(), c.url, initResult.ServerInfo.Name, initResult.ServerInfo.Version)

	return nil
}

// Close cleanly shuts down the client connection.
func (c *SSEClient) Close() error { return c.closeClient() }

// ListTools returns all available tools from the server.
func (c *SSEClient) ListTools(ctx context.Context) ([]mcp.Tool, error) { return c.listTools(ctx) }

// CallTool executes a specific tool and returns the result.
func (c *SSEClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}

// ListResources returns all available resources from the server.
func (c *SSEClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	return c.listResources(ctx)
}

// ReadResource retrieves a specific resource.
func (c *SSEClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return c.readResource(ctx, uri)
}

// ListPrompts returns all available prompts from the server.
func (c *SSEClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	return c.listPrompts(ctx)
}

// GetPrompt retrieves a specific prompt.
func (c *SSEClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return c.getPrompt(ctx, name, args)
}

// Ping checks if the server is responsive.
func (c *SSEClient) Ping(ctx context.Context) error { return c.ping(ctx) }
