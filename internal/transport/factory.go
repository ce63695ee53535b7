package transport

import (
	"fmt"
	"net/http"

	mcptransport "github.com/mark3labs/mcp-go/client/transport"

	"mcprt/pkg/logging"
)

// Kind identifies which wire transport a server definition speaks.
type Kind string

const (
	KindStdio           Kind = "stdio"
	KindSSE             Kind = "sse"
	KindStreamableHTTP  Kind = "streamable-http"
)

// Config carries everything a transport kind needs to open a connection,
// already materialized (placeholders resolved, import merging done) by the
// layers above. HTTPClient and TokenStore are optional: set HTTPClient for a
// custom TLS/transport, or TokenStore to delegate bearer-token management to
// mcp-go's OAuth handler instead of static headers.
type Config struct {
	Kind Kind

	// Name is the server this connection is for, carried into every client
	// for log/error correlation -- a Runtime holds many of these open at
	// once, unlike an aggregator proxying a single upstream. Optional; an
	// empty Name just means the client's logs and errors go unlabeled.
	Name string

	// Stdio fields.
	Command string
	Args    []string
	Env     map[string]string

	// Remote (SSE / streamable-HTTP) fields.
	URL     string
	Headers map[string]string

	HTTPClient *http.Client
	TokenStore mcptransport.TokenStore
	OAuthScopes []string
}

// New creates the appropriate MCPClient implementation for cfg.Kind.
//
// If cfg.TokenStore is set, a streamable-HTTP connection is made through
// mcp-go's OAuth handler (DynamicAuthClient) regardless of static headers;
// otherwise the transport-appropriate static client is used.
func New(cfg Config, log *logging.Logger) (MCPClient, error) {
	switch cfg.Kind {
	case KindStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("command is required for stdio transport")
		}
		return NewStdioClient(cfg.Name, cfg.Command, cfg.Args, cfg.Env, log), nil

	case KindStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("url is required for streamable-http transport")
		}
		if cfg.TokenStore != nil {
			return NewDynamicAuthClient(cfg.Name, cfg.URL, cfg.TokenStore, cfg.OAuthScopes, log), nil
		}
		return NewStreamableHTTPClient(cfg.Name, cfg.URL, cfg.Headers, cfg.HTTPClient, log), nil

	case KindSSE:
		if cfg.URL == "" {
			return nil, fmt.Errorf("url is required for sse transport")
		}
		if cfg.HTTPClient != nil {
			log.Warn("transport.factory", "custom HTTP client not supported for sse transport, ignoring")
		}
		return NewSSEClient(cfg.Name, cfg.URL, cfg.Headers, log), nil

	default:
		return nil, fmt.Errorf("unsupported transport kind: %q (supported: %s, %s, %s)",
			cfg.Kind, KindStdio, KindStreamableHTTP, KindSSE)
	}
}
