package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shirou/gopsutil/v4/process"

	"mcprt/pkg/logging"
)

// DefaultStdioInitTimeout bounds how long starting the subprocess and
// completing the MCP handshake may take before Initialize gives up.
const DefaultStdioInitTimeout = 10 * time.Second

// StdioClient implements MCPClient over a local subprocess's stdin/stdout.
type StdioClient struct {
	baseMCPClient
	command string
	args    []string
	env     map[string]string

	pid     int
	havePid bool
}

// NewStdioClient creates a stdio-based MCP client for command, with args and
// the already-materialized environment variables env. name identifies the
// server this connection belongs to, for log/error correlation across the
// many concurrent connections a Runtime may hold.
func NewStdioClient(name, command string, args []string, env map[string]string, log *logging.Logger) *StdioClient {
	return &StdioClient{
		baseMCPClient: baseMCPClient{log: log, name: name},
		command:       command,
		args:          args,
		env:           env,
	}
}

// Initialize establishes the connection and performs protocol handshake.
func (c *StdioClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	c.logger().Debug("transport.stdio", "%s: starting %s %v", c.label(), c.command, c.args)

	envStrings := make([]string, 0, len(c.env))
	for k, v := range c.env {
		envStrings = append(envStrings, fmt.Sprintf("%s=%s", k, v))
	}

	before := childPIDs()

	mcpClient, err := client.NewStdioMCPClient(c.command, envStrings, c.args...)
	if err != nil {
		return fmt.Errorf("%s: failed to create stdio client: %w", c.label(), err)
	}

	// mcp-go owns the subprocess and does not expose its pid, so the reaper
	// identifies it by diffing this process's children before and after
	// spawn. If exactly one new child process appears, that's the one; any
	// other outcome (none, or more than one spawned concurrently by another
	// connect racing on the same command) leaves havePid false and the
	// reaper falls back to MCPClient.Close() alone for that connection.
	if pid, ok := newChildPID(before, childPIDs()); ok {
		c.pid = pid
		c.havePid = true
	}

	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, DefaultStdioInitTimeout)
		defer cancel()
	}

	initResult, err := mcpClient.Initialize(initCtx, mcp.InitializeRequest{
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
		c.logger().Error("transport.stdio", err, "%s: initialize failed for %s", c.label(), c.command)
		if closeErr := mcpClient.Close(); closeErr != nil {
			c.logger().Debug("transport.stdio", "%s: close after failed init: %v", c.label(), closeErr)
		}
		return fmt.Errorf("%s: failed to initialize MCP protocol: %w", c.label(), err)
	}

	c.client = mcpClient
	c.connected = true

	c.logger().Debug("transport.stdio", "%s: initialized %s, server %s %s",
		c.label(), c.command, initResult.ServerInfo.Name, initResult.ServerInfo.Version)

	return nil
}

// Close cleanly shuts down the client connection.
func (c *StdioClient) Close() error { return c.closeClient() }

// ListTools returns all available tools from the server.
func (c *StdioClient) ListTools(ctx context.Context) ([]mcp.Tool, error) { return c.listTools(ctx) }

// CallTool executes a specific tool and returns the result.
func (c *StdioClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}

// ListResources returns all available resources from the server.
func (c *StdioClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	return c.listResources(ctx)
}

// ReadResource retrieves a specific resource.
func (c *StdioClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return c.readResource(ctx, uri)
}

// ListPrompts returns all available prompts from the server.
func (c *StdioClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	return c.listPrompts(ctx)
}

// GetPrompt retrieves a specific prompt.
func (c *StdioClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return c.getPrompt(ctx, name, args)
}

// Ping checks if the server is responsive.
func (c *StdioClient) Ping(ctx context.Context) error { return c.ping(ctx) }

// GetStderr returns a reader for the subprocess's stderr, for the reaper's
// per-child ring buffer. Returns false before Initialize or after Close.
func (c *StdioClient) GetStderr() (io.Reader, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected || c.client == nil {
		return nil, false
	}

	if concreteClient, ok := c.client.(*client.Client); ok {
		return client.GetStderr(concreteClient)
	}

	return nil, false
}

// Pid returns the subprocess's process ID, if it was uniquely identified at
// spawn time. See the diffing comment in Initialize for when ok is false.
func (c *StdioClient) Pid() (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pid, c.havePid
}

// childPIDs returns the current process's direct child PIDs. gopsutil
// reports an error rather than an empty slice on some platforms when there
// are no children yet; that case is treated as an empty set, not a failure.
func childPIDs() map[int32]bool {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return map[int32]bool{}
	}
	children, err := self.Children()
	if err != nil {
		return map[int32]bool{}
	}
	pids := make(map[int32]bool, len(children))
	for _, child := range children {
		pids[child.Pid] = true
	}
	return pids
}

// newChildPID returns the single pid present in after but not before. ok is
// false if zero or more than one new pid appeared between snapshots.
func newChildPID(before, after map[int32]bool) (int, bool) {
	var found int32
	count := 0
	for pid := range after {
		if !before[pid] {
			found = pid
			count++
		}
	}
	if count != 1 {
		return 0, false
	}
	return int(found), true
}
