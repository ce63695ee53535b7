package orchestrator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcprt/internal/definition"
	"mcprt/internal/oauthsession"
	"mcprt/pkg/logging"
	pkgoauth "mcprt/pkg/oauth"
)

// startStreamableServer returns the /mcp URL of a real in-process MCP server
// speaking streamable-HTTP.
func startStreamableServer(t *testing.T) string {
	t.Helper()
	mcpSrv := mcpserver.NewMCPServer("orchestrator-test", "1.0.0")
	streamableSrv := mcpserver.NewStreamableHTTPServer(mcpSrv)
	mux := http.NewServeMux()
	mux.Handle("/mcp", streamableSrv)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts.URL + "/mcp"
}

// startSSEServer returns the /sse URL of a real in-process MCP server
// speaking SSE. The SSE protocol advertises its own message endpoint to the
// client over the stream, so the listening port must be known before the
// server is built -- bind first, then construct with that exact base URL,
// the same order the SSE mock server in the retrieval pack uses.
func startSSEServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	baseURL := fmt.Sprintf("http://%s", ln.Addr().String())
	mcpSrv := mcpserver.NewMCPServer("orchestrator-test", "1.0.0")
	sseSrv := mcpserver.NewSSEServer(mcpSrv,
		mcpserver.WithBaseURL(baseURL),
		mcpserver.WithSSEEndpoint("/sse"),
		mcpserver.WithMessageEndpoint("/message"),
	)

	httpSrv := &http.Server{Handler: sseSrv}
	go httpSrv.Serve(ln)
	t.Cleanup(func() { httpSrv.Close() })

	return baseURL + "/sse"
}

// startUnauthorizedServer returns a URL that always answers 401, to exercise
// the unauthorized classification path.
func startUnauthorizedServer(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(ts.Close)
	return ts.URL + "/mcp"
}

func httpDef(name, url string) definition.ServerDefinition {
	return definition.ServerDefinition{
		Name: name,
		Command: definition.Command{
			Kind: definition.CommandHTTP,
			URL:  url,
		},
	}
}

func TestConnect_Stdio_UnknownCommandIsTransportFailure(t *testing.T) {
	o := New(logging.Discard())
	def := definition.ServerDefinition{
		Name: "stdio-server",
		Command: definition.Command{
			Kind:    definition.CommandStdio,
			Command: "this-binary-does-not-exist-mcprt-test",
		},
	}

	_, _, err := o.Connect(context.Background(), def, ConnectOptions{})
	require.Error(t, err)
	var tfe *TransportFailureError
	assert.ErrorAs(t, err, &tfe)
}

func TestConnect_HTTP_StreamableSucceeds(t *testing.T) {
	url := startStreamableServer(t)
	o := New(logging.Discard())

	client, promoted, err := o.Connect(context.Background(), httpDef("s1", url), ConnectOptions{})
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Nil(t, promoted)
	defer client.Close()
}

// connectHTTP tries the same URL as streamable-HTTP first. Against an
// SSE-only endpoint the streamable POST fails with a non-auth error, and the
// orchestrator must fall back to SSE against that same URL and succeed.
func TestConnect_HTTP_StreamableFailsFallsBackToSSE(t *testing.T) {
	sseURL := startSSEServer(t)
	o := New(logging.Discard())

	client, _, err := o.Connect(context.Background(), httpDef("s2", sseURL), ConnectOptions{})
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()
}

func TestConnect_HTTP_BothTransportsFailNonAuth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)

	o := New(logging.Discard())
	_, _, err := o.Connect(context.Background(), httpDef("s3", ts.URL+"/mcp"), ConnectOptions{})
	require.Error(t, err)
	var tfe *TransportFailureError
	assert.ErrorAs(t, err, &tfe)
}

func TestConnect_HTTP_UnauthorizedWithOAuthDisabledReturnsImmediately(t *testing.T) {
	url := startUnauthorizedServer(t)
	o := New(logging.Discard())

	_, _, err := o.Connect(context.Background(), httpDef("s4", url), ConnectOptions{DisableOAuth: true})
	require.Error(t, err)
	var ue *UnauthorizedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 0, ue.Attempts)
}

func TestConnect_HTTP_UnauthorizedNonAdhocDefinitionIsNotPromoted(t *testing.T) {
	url := startUnauthorizedServer(t)
	def := httpDef("s4b", url)
	def.Source = definition.Source{Kind: definition.SourceLocal, Path: "/etc/mcporter.json"}

	promptCalls := 0
	o := New(logging.Discard(), WithAuthPrompt(func(string, string) { promptCalls++ }))

	_, _, err := o.Connect(context.Background(), def, ConnectOptions{})
	require.Error(t, err)
	var ue *UnauthorizedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 0, ue.Attempts)
	assert.Equal(t, 0, promptCalls, "a server loaded from a config file must never be auto-promoted to OAuth")
}

func TestConnect_HTTP_ExistingPromotionSkipsInteractiveFlow(t *testing.T) {
	url := startStreamableServer(t)
	dir := t.TempDir()

	store, err := oauthsession.NewTokenStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(&pkgoauth.Token{
		AccessToken: "valid-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}, url, url, ""))

	promptCalls := 0
	o := New(logging.Discard(), WithAuthPrompt(func(string, string) { promptCalls++ }))
	o.promoted["s5"] = &promotion{tokenStore: store, issuerURL: url}

	client, promoted, err := o.Connect(context.Background(), httpDef("s5", url), ConnectOptions{})
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Nil(t, promoted, "an already-promoted server has nothing new to surface to the registry")
	defer client.Close()
	assert.Equal(t, 0, promptCalls, "a server with an existing promotion must not trigger a new interactive flow")
}

// TestPromotedDefinition_FillsAuthAndDefaultTokenCacheDir exercises D'
// construction directly: driving it through the full interactive flow would
// require simulating a browser round-trip, but the merge itself is pure and
// worth pinning on its own.
func TestPromotedDefinition_FillsAuthAndDefaultTokenCacheDir(t *testing.T) {
	def := httpDef("s7", "https://example.com/mcp")
	def.Source = definition.Source{Path: definition.AdhocPath}

	promoted, err := promotedDefinition(def)
	require.NoError(t, err)
	assert.Equal(t, "oauth", promoted.Auth)
	assert.Equal(t, definition.DefaultTokenCacheDir("s7"), promoted.TokenCacheDir)
	assert.Equal(t, "s7", promoted.Name, "promotion must not disturb fields it doesn't own")
}

// TestPromotedDefinition_PreservesExplicitTokenCacheDir confirms the
// "default" in D ⊕ {auth: oauth, tokenCacheDir: default} only applies when
// the definition doesn't already name its own cache directory.
func TestPromotedDefinition_PreservesExplicitTokenCacheDir(t *testing.T) {
	def := httpDef("s8", "https://example.com/mcp")
	def.TokenCacheDir = "/custom/cache/dir"

	promoted, err := promotedDefinition(def)
	require.NoError(t, err)
	assert.Equal(t, "oauth", promoted.Auth)
	assert.Equal(t, "/custom/cache/dir", promoted.TokenCacheDir)
}

func TestAuthRetryLoop_ExhaustsAttemptsReturnsUnauthorized(t *testing.T) {
	url := startUnauthorizedServer(t)
	dir := t.TempDir()

	store, err := oauthsession.NewTokenStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(&pkgoauth.Token{
		AccessToken: "will-be-rejected",
		ExpiresAt:   time.Now().Add(time.Hour),
	}, url, url, ""))

	o := New(logging.Discard())
	p := &promotion{tokenStore: store, issuerURL: url}

	_, err = o.authRetryLoop(context.Background(), httpDef("s6", url), nil, p, ConnectOptions{MaxOAuthAttempts: 2})
	require.Error(t, err)
	var ue *UnauthorizedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 2, ue.Attempts)
}

func TestDefaultIssuerURL_StripsPathAndQuery(t *testing.T) {
	assert.Equal(t, "https://example.com", defaultIssuerURL("https://example.com/mcp?x=1#frag"))
	assert.Equal(t, "not-a-url", defaultIssuerURL("not-a-url"))
}
