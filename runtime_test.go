package mcprt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcprt/internal/definition"
)

// startToolServer returns the /mcp URL of a real in-process MCP server
// exposing one echo tool, for façade-level integration tests.
func startToolServer(t *testing.T) string {
	t.Helper()
	mcpSrv := mcpserver.NewMCPServer("runtime-test", "1.0.0")
	mcpSrv.AddTool(
		mcp.NewTool("echo", mcp.WithDescription("echoes back its input")),
		func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent("ok")}}, nil
		},
	)

	streamableSrv := mcpserver.NewStreamableHTTPServer(mcpSrv)
	mux := http.NewServeMux()
	mux.Handle("/mcp", streamableSrv)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts.URL + "/mcp"
}

// newTestRuntime writes a primary config file naming one HTTP server and
// returns a Runtime rooted at a fresh temp dir.
func newTestRuntime(t *testing.T, serverURL string) *Runtime {
	t.Helper()
	dir := t.TempDir()
	configDir := filepath.Join(dir, "config")
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	content, err := json.Marshal(map[string]any{
		"mcpServers": map[string]any{
			"echo-server": map[string]any{"url": serverURL},
		},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "mcporter.json"), content, 0o644))

	rt, err := New(WithRoot(dir))
	require.NoError(t, err)
	return rt
}

func TestRuntime_ListServers(t *testing.T) {
	rt := newTestRuntime(t, startToolServer(t))
	assert.Equal(t, []string{"echo-server"}, rt.ListServers())
}

func TestRuntime_GetDefinition_Unknown(t *testing.T) {
	rt := newTestRuntime(t, startToolServer(t))
	_, err := rt.GetDefinition("nope")
	var use *definition.UnknownServerError
	require.ErrorAs(t, err, &use)
}

func TestRuntime_RegisterDefinition_DuplicateWithoutOverwrite(t *testing.T) {
	rt := newTestRuntime(t, startToolServer(t))
	def := definition.ServerDefinition{Name: "echo-server", Command: definition.Command{Kind: definition.CommandHTTP, URL: "http://unused"}}

	err := rt.RegisterDefinition(def, RegisterOptions{})
	var dup *definition.DuplicateServerError
	require.ErrorAs(t, err, &dup)

	require.NoError(t, rt.RegisterDefinition(def, RegisterOptions{Overwrite: true}))
}

func TestRuntime_ListTools_ConnectsAndReturnsTools(t *testing.T) {
	rt := newTestRuntime(t, startToolServer(t))

	infos, err := rt.ListTools(context.Background(), "echo-server", ListToolsOptions{})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "echo-server", infos[0].Server)
	assert.Equal(t, "echo", infos[0].Tool.Name)
}

func TestRuntime_ListTools_DisableAutoAuthorizeDoesNotPollute(t *testing.T) {
	rt := newTestRuntime(t, startToolServer(t))

	_, err := rt.ListTools(context.Background(), "echo-server", ListToolsOptions{DisableAutoAuthorize: true})
	require.NoError(t, err)
	assert.Empty(t, rt.pool.Names(), "an ephemeral listTools call must not populate the shared pool")
}

func TestRuntime_CallTool(t *testing.T) {
	rt := newTestRuntime(t, startToolServer(t))

	result, err := rt.CallTool(context.Background(), "echo-server", "echo", CallToolOptions{})
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestRuntime_ListResources(t *testing.T) {
	rt := newTestRuntime(t, startToolServer(t))

	resources, err := rt.ListResources(context.Background(), "echo-server")
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestRuntime_Connect_ReusesPooledClient(t *testing.T) {
	rt := newTestRuntime(t, startToolServer(t))

	c1, err := rt.Connect(context.Background(), "echo-server", ConnectOptions{})
	require.NoError(t, err)
	c2, err := rt.Connect(context.Background(), "echo-server", ConnectOptions{})
	require.NoError(t, err)
	assert.Same(t, c1, c2)
}

func TestRuntime_Close_EvictsPooledClient(t *testing.T) {
	rt := newTestRuntime(t, startToolServer(t))

	_, err := rt.Connect(context.Background(), "echo-server", ConnectOptions{})
	require.NoError(t, err)
	require.NoError(t, rt.Close("echo-server"))
	assert.Empty(t, rt.pool.Names())
}

func TestRuntime_Close_NeverConnectedIsNoop(t *testing.T) {
	rt := newTestRuntime(t, startToolServer(t))
	assert.NoError(t, rt.Close("echo-server"))
}

func TestRuntime_CallTool_UnknownServer(t *testing.T) {
	rt := newTestRuntime(t, startToolServer(t))
	_, err := rt.CallTool(context.Background(), "nope", "echo", CallToolOptions{})
	var use *definition.UnknownServerError
	require.ErrorAs(t, err, &use)
}

func TestRuntime_ListTools_TimeoutClosesConnection(t *testing.T) {
	rt := newTestRuntime(t, startToolServer(t))

	// Establish the pooled connection first, outside the tight budget below,
	// so the timeout exercised is on the ListTools RPC itself rather than
	// on connect.
	_, err := rt.Connect(context.Background(), "echo-server", ConnectOptions{})
	require.NoError(t, err)

	rt.listTimeout = time.Nanosecond
	_, err = rt.ListTools(context.Background(), "echo-server", ListToolsOptions{})
	require.Error(t, err)
	assert.Empty(t, rt.pool.Names(), "a timed-out call must close the connection instead of leaving it pooled")
}
