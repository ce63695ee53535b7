package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"dario.cat/mergo"
	"github.com/cenkalti/backoff/v5"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"

	"mcprt/internal/definition"
	"mcprt/internal/oauthsession"
	"mcprt/internal/placeholder"
	"mcprt/internal/transport"
	"mcprt/pkg/logging"
)

// DefaultMaxOAuthAttempts is how many times the orchestrator retries a
// connection after a successful OAuth promotion before giving up.
const DefaultMaxOAuthAttempts = 3

// AuthPrompt is invoked with the authorization URL a user needs to open to
// complete an OAuth promotion. The default implementation logs it; callers
// that drive a CLI/TUI can supply their own to print it more prominently.
type AuthPrompt func(serverName, authURL string)

// ConnectOptions tunes a single Connect call.
type ConnectOptions struct {
	// DisableOAuth skips promotion entirely: a 401/403 is returned to the
	// caller immediately instead of starting an interactive flow. This is
	// how the façade implements listTools(autoAuthorize=false). It is a
	// separate field (rather than overloading MaxOAuthAttempts==0) because
	// the zero value of MaxOAuthAttempts means "use the default", not
	// "disabled" -- most callers leave it unset and still want promotion.
	DisableOAuth bool

	// MaxOAuthAttempts bounds the post-promotion retry loop. Zero means
	// DefaultMaxOAuthAttempts.
	MaxOAuthAttempts int

	// HTTPClient overrides the client used for streamable-HTTP/SSE
	// connections (and for OAuth metadata discovery and token exchange).
	HTTPClient *http.Client
}

func (o ConnectOptions) maxOAuthAttempts() int {
	if o.MaxOAuthAttempts != 0 {
		return o.MaxOAuthAttempts
	}
	return DefaultMaxOAuthAttempts
}

// promotion is the cached result of promoting one server to OAuth: once a
// server has been promoted, further Connect calls for it skip straight to
// attaching the stored token instead of running the interactive flow again.
type promotion struct {
	tokenStore *oauthsession.TokenStore
	issuerURL  string
}

// Orchestrator runs the connect state machine for a set of server
// definitions. Its promoted-server set is instance-scoped, matching how
// definition.Loader scopes its warn-once set -- two Orchestrators in the
// same process never share promotion state.
type Orchestrator struct {
	log        *logging.Logger
	authPrompt AuthPrompt

	mu       sync.Mutex
	promoted map[string]*promotion
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAuthPrompt overrides how the authorization URL is surfaced to the
// user during an OAuth promotion.
func WithAuthPrompt(fn AuthPrompt) Option {
	return func(o *Orchestrator) { o.authPrompt = fn }
}

// New creates an Orchestrator that logs through log.
func New(log *logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:      log,
		promoted: make(map[string]*promotion),
	}
	o.authPrompt = func(name, authURL string) {
		o.log.Info("orchestrator", "open %s to authenticate %s", authURL, name)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Connect runs the full state machine for def and returns a live,
// initialized client. It never reads or writes a connection pool; the
// caller (the pool, or the façade for ephemeral connections) is responsible
// for caching the result.
//
// The second return value is nil unless this call performed an S3
// promotion, in which case it is D' -- the definition the caller must
// atomically register in place of def so later lookups see auth: oauth.
func (o *Orchestrator) Connect(ctx context.Context, def definition.ServerDefinition, opts ConnectOptions) (transport.MCPClient, *definition.ServerDefinition, error) {
	if def.Command.Kind == definition.CommandStdio {
		client, err := o.connectStdio(ctx, def)
		return client, nil, err
	}
	return o.connectHTTP(ctx, def, opts)
}

// S0(stdio): a stdio server has no transport fallback and no OAuth
// promotion path -- a subprocess speaks the protocol it speaks.
func (o *Orchestrator) connectStdio(ctx context.Context, def definition.ServerDefinition) (transport.MCPClient, error) {
	env, err := placeholder.ResolveMap(def.Env, placeholder.FromEnviron())
	if err != nil {
		return nil, err
	}
	dropEmpty(env)

	cfg := transport.Config{
		Kind:    transport.KindStdio,
		Name:    def.Name,
		Command: def.Command.Command,
		Args:    def.Command.Args,
		Env:     env,
	}

	client, err := transport.New(cfg, o.log)
	if err != nil {
		return nil, err
	}
	if err := client.Initialize(ctx); err != nil {
		if transport.IsUnauthorized(err) {
			return nil, &OAuthUnsupportedByTransportError{Server: def.Name, Cause: err}
		}
		return nil, &TransportFailureError{Server: def.Name, Cause: err}
	}
	return client, nil
}

// connectHTTP runs S1 TryStreamable -> S2 FallbackSSE -> S3 MaybePromote ->
// S4 AuthRetryLoop -> S5 Connected for an HTTP/SSE server definition.
func (o *Orchestrator) connectHTTP(ctx context.Context, def definition.ServerDefinition, opts ConnectOptions) (transport.MCPClient, *definition.ServerDefinition, error) {
	headers, err := placeholder.ResolveMap(def.Command.Headers, placeholder.FromEnviron())
	if err != nil {
		return nil, nil, err
	}

	// If this server was already promoted by an earlier Connect call,
	// attach the stored token and skip straight to the retry loop -- no
	// second interactive flow for a server we've already authenticated.
	// The registry already holds D' from that earlier promotion, so there
	// is nothing new to surface here.
	if p := o.existingPromotion(def.Name); p != nil {
		client, err := o.authRetryLoop(ctx, def, headers, p, opts)
		return client, nil, err
	}

	// S1 for a definition that already declares auth: oauth: start the
	// OAuth session up front instead of waiting for a 401. The registry
	// already holds this definition, so there is no D' to surface.
	if def.Auth == "oauth" && !opts.DisableOAuth {
		client, _, err := o.promoteAndRetry(ctx, def, headers, opts, nil)
		return client, nil, err
	}

	// S1: streamable-HTTP first.
	client, err := o.tryTransport(ctx, transport.KindStreamableHTTP, def, headers, opts, nil)
	if err == nil {
		return client, nil, nil
	}
	if transport.IsUnauthorized(err) {
		return o.handleUnauthorized(ctx, def, headers, opts, err)
	}

	// S2: non-auth failure on streamable-HTTP falls back to SSE.
	client, err = o.tryTransport(ctx, transport.KindSSE, def, headers, opts, nil)
	if err == nil {
		return client, nil, nil
	}
	if transport.IsUnauthorized(err) {
		return o.handleUnauthorized(ctx, def, headers, opts, err)
	}
	return nil, nil, &TransportFailureError{Server: def.Name, Cause: err}
}

// handleUnauthorized is S3's entry point: either refuse immediately
// (autoAuthorize=false, or a definition ineligible for promotion) or start
// the promotion flow.
func (o *Orchestrator) handleUnauthorized(ctx context.Context, def definition.ServerDefinition, headers map[string]string, opts ConnectOptions, cause error) (transport.MCPClient, *definition.ServerDefinition, error) {
	if opts.DisableOAuth || !eligibleForPromotion(def) {
		return nil, nil, &UnauthorizedError{Server: def.Name, Attempts: 0, Cause: cause}
	}
	return o.promoteAndRetry(ctx, def, headers, opts, cause)
}

// eligibleForPromotion reports whether def may be auto-promoted to OAuth on
// an unauthorized response. Only ad-hoc definitions -- those created
// directly at the CLI boundary, never persisted to a config file or import
// source -- qualify; a definition already explicitly declaring its auth
// mode is left alone.
func eligibleForPromotion(def definition.ServerDefinition) bool {
	return def.Source.Path == definition.AdhocPath && def.Auth != "oauth"
}

// tryTransport builds and initializes one transport kind. If tokenStore is
// non-nil the connection goes through mcp-go's OAuth handler
// (DynamicAuthClient) instead of static headers.
func (o *Orchestrator) tryTransport(ctx context.Context, kind transport.Kind, def definition.ServerDefinition, headers map[string]string, opts ConnectOptions, tokenStore mcptransport.TokenStore) (transport.MCPClient, error) {
	cfg := transport.Config{
		Kind:       kind,
		Name:       def.Name,
		URL:        def.Command.URL,
		Headers:    headers,
		HTTPClient: opts.HTTPClient,
	}
	if tokenStore != nil {
		cfg.TokenStore = tokenStore
	}

	client, err := transport.New(cfg, o.log)
	if err != nil {
		return nil, err
	}
	if err := client.Initialize(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// S3 MaybePromote: run the interactive OAuth flow once, cache the result as
// "promoted" for def.Name, and hand off to the retry loop. On success it
// also returns D' = D ⊕ {auth: oauth, tokenCacheDir: default} for the
// caller to register in place of def, per the promotion invariant that the
// registry never keeps serving the pre-promotion definition.
func (o *Orchestrator) promoteAndRetry(ctx context.Context, def definition.ServerDefinition, headers map[string]string, opts ConnectOptions, cause error) (transport.MCPClient, *definition.ServerDefinition, error) {
	o.log.Debug("orchestrator", "%s: promoting to OAuth after: %v", def.Name, cause)

	promoted, err := promotedDefinition(def)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", def.Name, err)
	}

	issuerURL := defaultIssuerURL(def.Command.URL)

	tokenStore, err := oauthsession.NewTokenStore(promoted.TokenCacheDir)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to open token cache: %w", def.Name, err)
	}

	if !tokenStore.HasValid() {
		session := oauthsession.NewSession(oauthsession.Config{
			ServerURL:  def.Command.URL,
			IssuerURL:  issuerURL,
			ClientID:   def.ClientName,
			HTTPClient: opts.HTTPClient,
		})
		defer session.Close()

		authURL, err := session.Start(ctx)
		if err != nil {
			return nil, nil, &UnauthorizedError{Server: def.Name, Attempts: 0, Cause: fmt.Errorf("starting OAuth flow: %w", err)}
		}
		o.authPrompt(def.Name, authURL)

		token, err := session.WaitForAuthorizationCode(ctx)
		if err != nil {
			return nil, nil, &UnauthorizedError{Server: def.Name, Attempts: 0, Cause: fmt.Errorf("completing OAuth flow: %w", err)}
		}

		if err := tokenStore.Save(token, def.Command.URL, issuerURL, token.IDToken); err != nil {
			return nil, nil, fmt.Errorf("%s: failed to persist OAuth token: %w", def.Name, err)
		}
	}

	p := &promotion{tokenStore: tokenStore, issuerURL: issuerURL}
	o.mu.Lock()
	o.promoted[def.Name] = p
	o.mu.Unlock()

	client, err := o.authRetryLoop(ctx, promoted, headers, p, opts)
	if err != nil {
		return nil, nil, err
	}
	return client, &promoted, nil
}

// promotedDefinition builds D' = D ⊕ {auth: oauth, tokenCacheDir: default}.
// mergo only fills def's zero-valued fields from the overlay, so a
// definition that already names its own TokenCacheDir keeps it; only Auth
// (always "" here, per eligibleForPromotion) and an absent TokenCacheDir are
// ever overwritten.
func promotedDefinition(def definition.ServerDefinition) (definition.ServerDefinition, error) {
	overlay := definition.ServerDefinition{
		Auth:          "oauth",
		TokenCacheDir: definition.DefaultTokenCacheDir(def.Name),
	}
	promoted := def
	if err := mergo.Merge(&promoted, overlay); err != nil {
		return definition.ServerDefinition{}, fmt.Errorf("building promoted definition: %w", err)
	}
	return promoted, nil
}

// S4 AuthRetryLoop: retry streamable-HTTP with the stored token attached,
// backing off between attempts. A 401 here (token rejected, e.g. scope
// mismatch) is not retried by re-running the interactive flow -- D'
// (the promotion record) persists for the next Connect call regardless of
// whether this loop ultimately succeeds, per the definition that OAuth
// promotion happens at most once.
func (o *Orchestrator) authRetryLoop(ctx context.Context, def definition.ServerDefinition, headers map[string]string, p *promotion, opts ConnectOptions) (transport.MCPClient, error) {
	provider := oauthsession.NewProvider(p.tokenStore, def.Command.URL, p.issuerURL)

	maxAttempts := opts.maxOAuthAttempts()
	attempt := 0

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 250 * time.Millisecond
	expBackoff.MaxInterval = 5 * time.Second

	operation := func() (transport.MCPClient, error) {
		attempt++
		client, err := o.tryTransport(ctx, transport.KindStreamableHTTP, def, headers, opts, provider)
		if err == nil {
			return client, nil
		}
		if !transport.IsUnauthorized(err) {
			return nil, backoff.Permanent(&TransportFailureError{Server: def.Name, Cause: err})
		}
		return nil, err
	}

	client, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithNotify(func(retryErr error, wait time.Duration) {
			o.log.Debug("orchestrator", "%s: retrying after %v (%v)", def.Name, wait, retryErr)
		}),
	)
	if err == nil {
		return client, nil
	}

	var transportErr *TransportFailureError
	if errors.As(err, &transportErr) {
		return nil, transportErr
	}
	return nil, &UnauthorizedError{Server: def.Name, Attempts: attempt, Cause: err}
}

// dropEmpty removes entries whose resolved value is empty, e.g. an
// "${OPTIONAL_FLAG:-}" placeholder with no override set. A stdio child
// should never see an explicit empty-string env var for a flag it never
// asked for.
func dropEmpty(env map[string]string) {
	for k, v := range env {
		if v == "" {
			delete(env, k)
		}
	}
}

func (o *Orchestrator) existingPromotion(name string) *promotion {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.promoted[name]
}

// defaultIssuerURL treats the MCP server's own origin as the OAuth issuer
// when no WWW-Authenticate-derived issuer is available. Many OAuth-protected
// MCP servers are same-origin authorization servers; servers that delegate
// to a distinct IdP are expected to set a definition-level override (not yet
// modeled -- see DESIGN.md's open-question decisions).
func defaultIssuerURL(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return serverURL
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
