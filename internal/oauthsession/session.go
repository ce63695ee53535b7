package oauthsession

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/browser"

	pkgoauth "mcprt/pkg/oauth"
)

// DefaultClientID is used when a server definition does not set clientName.
// Most MCP servers validate bearer tokens rather than registered client_ids,
// so an unregistered default is usually accepted; servers that require
// dynamic client registration are out of scope (see DESIGN.md, open-question
// decision 4).
const DefaultClientID = "mcprt"

// Session drives one Authorization Code + PKCE flow for a single server.
// It is not reusable: call Close() when done (success or failure) and build
// a new Session for the next attempt.
type Session struct {
	client *pkgoauth.Client

	serverURL string
	issuerURL string
	clientID  string
	scopes    []string

	callback *callbackServer

	pkce        *pkgoauth.PKCEChallenge
	state       string
	metadata    *pkgoauth.Metadata
	redirectURI string
}

// Config carries the per-definition parameters a Session needs. The
// orchestrator sets ServerURL to the definition's URL, IssuerURL to that
// URL's origin, and ClientID to the definition's clientName; it leaves
// Scopes empty, so no scope parameter is sent.
type Config struct {
	ServerURL  string
	IssuerURL  string
	ClientID   string
	Scopes     []string
	HTTPClient *http.Client
}

// NewSession builds a Session. cfg.ClientID defaults to DefaultClientID.
func NewSession(cfg Config) *Session {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}
	return &Session{
		client:    pkgoauth.NewClient(pkgoauth.WithHTTPClient(cfg.HTTPClient)),
		serverURL: cfg.ServerURL,
		issuerURL: cfg.IssuerURL,
		clientID:  clientID,
		scopes:    cfg.Scopes,
		callback:  newCallbackServer(),
	}
}

// Start discovers OAuth metadata, opens the loopback callback listener,
// builds the authorization URL, and opens it in the user's browser. It
// returns the authorization URL for display in case the browser cannot be
// launched (headless environments).
func (s *Session) Start(ctx context.Context) (string, error) {
	metadata, err := s.client.DiscoverMetadata(ctx, s.issuerURL)
	if err != nil {
		return "", fmt.Errorf("failed to discover OAuth metadata for %s: %w", s.issuerURL, err)
	}
	s.metadata = metadata

	pkce, err := pkgoauth.GeneratePKCE()
	if err != nil {
		return "", fmt.Errorf("failed to generate PKCE challenge: %w", err)
	}
	s.pkce = pkce

	state, err := pkgoauth.GenerateState()
	if err != nil {
		return "", fmt.Errorf("failed to generate OAuth state: %w", err)
	}
	s.state = state

	redirectURI, err := s.callback.start(ctx)
	if err != nil {
		return "", err
	}
	s.redirectURI = redirectURI

	scope := ""
	for i, sc := range s.scopes {
		if i > 0 {
			scope += " "
		}
		scope += sc
	}

	authURL, err := s.client.BuildAuthorizationURL(
		metadata.AuthorizationEndpoint, s.clientID, redirectURI, state, scope, pkce)
	if err != nil {
		return "", fmt.Errorf("failed to build authorization URL: %w", err)
	}

	if err := browser.OpenURL(authURL); err != nil {
		// Non-fatal: caller can still print authURL for the user to open.
		return authURL, nil
	}

	return authURL, nil
}

// WaitForAuthorizationCode blocks until the loopback callback is received
// and exchanges the resulting code for a token.
func (s *Session) WaitForAuthorizationCode(ctx context.Context) (*pkgoauth.Token, error) {
	result, err := s.callback.wait(ctx)
	if err != nil {
		return nil, err
	}

	if result.isProviderError() {
		return nil, fmt.Errorf("authorization server rejected the request: %s %s",
			result.providerErr, result.providerErrDescr)
	}

	if result.state != s.state {
		return nil, fmt.Errorf("OAuth state mismatch (possible CSRF)")
	}
	if result.code == "" {
		return nil, fmt.Errorf("authorization callback did not include a code")
	}

	token, err := s.client.ExchangeCode(ctx, s.metadata.TokenEndpoint, result.code, s.redirectURI, s.clientID, s.pkce.CodeVerifier)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	return token, nil
}

// Close releases the loopback listener. Safe to call multiple times and
// safe to call even if Start was never called.
func (s *Session) Close() error {
	s.callback.stop()
	return nil
}
