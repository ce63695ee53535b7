package transport

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"mcprt/pkg/logging"
)

// MCPClient defines the interface for MCP client implementations.
// All transport kinds (stdio, SSE, streamable-http) implement this interface,
// enabling polymorphic usage by the connection pool and orchestrator.
type MCPClient interface {
	// Initialize establishes the connection and performs protocol handshake.
	Initialize(ctx context.Context) error
	// Close cleanly shuts down the client connection.
	Close() error
	// ListTools returns all available tools from the server.
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	// CallTool executes a specific tool and returns the result.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
	// ListResources returns all available resources from the server.
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	// ReadResource retrieves a specific resource.
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	// ListPrompts returns all available prompts from the server.
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)
	// GetPrompt retrieves a specific prompt.
	GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error)
	// Ping checks if the server is responsive.
	Ping(ctx context.Context) error
}

// StderrReader is implemented by clients backed by a child process, letting
// the reaper attach a ring buffer to the subprocess's stderr stream.
type StderrReader interface {
	GetStderr() (io.Reader, bool)
}

// ProcessHandle is implemented by clients backed by a child process, letting
// the reaper escalate a stuck shutdown from SIGTERM to SIGKILL against the
// process tree it roots.
type ProcessHandle interface {
	Pid() (int, bool)
}

var (
	_ MCPClient = (*StdioClient)(nil)
	_ MCPClient = (*SSEClient)(nil)
	_ MCPClient = (*StreamableHTTPClient)(nil)
	_ MCPClient = (*DynamicAuthClient)(nil)
)

// baseMCPClient provides the common protocol plumbing shared by every
// transport kind: connection-state tracking and the request/response
// operations that are identical once a client.MCPClient exists. name is the
// server this client was opened for -- unlike an aggregator that proxies one
// upstream at a time, a Runtime holds many of these concurrently, so every
// log line and wrapped error carries it for correlation.
type baseMCPClient struct {
	client    client.MCPClient
	mu        sync.RWMutex
	connected bool
	log       *logging.Logger
	name      string
}

func (b *baseMCPClient) logger() *logging.Logger {
	if b.log == nil {
		return logging.Discard()
	}
	return b.log
}

// label returns the server name for error/log prefixing, falling back to a
// placeholder for clients built without one (factory-level tests, mostly).
func (b *baseMCPClient) label() string {
	if b.name == "" {
		return "<unnamed>"
	}
	return b.name
}

// checkConnected verifies the client is connected and returns an error if not.
// Caller must hold at least a read lock on mu.
func (b *baseMCPClient) checkConnected() error {
	if !b.connected || b.client == nil {
		return fmt.Errorf("%s: client not connected", b.label())
	}
	return nil
}

func (b *baseMCPClient) closeClient() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected || b.client == nil {
		return nil
	}

	err := b.client.Close()
	b.connected = false
	b.client = nil

	return err
}

func (b *baseMCPClient) listTools(ctx context.Context) ([]mcp.Tool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	result, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list tools: %w", b.label(), err)
	}

	return result.Tools, nil
}

func (b *baseMCPClient) callTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	result, err := b.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to call tool: %w", b.label(), err)
	}

	return result, nil
}

func (b *baseMCPClient) listResources(ctx context.Context) ([]mcp.Resource, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	result, err := b.client.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list resources: %w", b.label(), err)
	}

	return result.Resources, nil
}

func (b *baseMCPClient) readResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	result, err := b.client.ReadResource(ctx, mcp.ReadResourceRequest{
		Params: struct {
			URI       string         `json:"uri"`
			Arguments map[string]any `json:"arguments,omitempty"`
		}{
			URI: uri,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read resource: %w", b.label(), err)
	}

	return result, nil
}

func (b *baseMCPClient) listPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	result, err := b.client.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list prompts: %w", b.label(), err)
	}

	return result.Prompts, nil
}

func (b *baseMCPClient) getPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	stringArgs := make(map[string]string, len(args))
	for k, v := range args {
		if str, ok := v.(string); ok {
			stringArgs[k] = str
		} else {
			stringArgs[k] = fmt.Sprintf("%v", v)
		}
	}

	result, err := b.client.GetPrompt(ctx, mcp.GetPromptRequest{
		Params: struct {
			Name      string            `json:"name"`
			Arguments map[string]string `json:"arguments,omitempty"`
		}{
			Name:      name,
			Arguments: stringArgs,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get prompt: %w", b.label(), err)
	}

	return result, nil
}

func (b *baseMCPClient) ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return err
	}

	return b.client.Ping(ctx)
}

// clientInfo is the mcp.Implementation every transport kind reports during
// the initialize handshake.
func clientInfo() mcp.Implementation {
	return mcp.Implementation{
		Name:    "mcprt",
		Version: "1.0.0",
	}
}
