package oauthsession

import (
	"context"
	"sync"

	mcptransport "github.com/mark3labs/mcp-go/client/transport"

	pkgoauth "mcprt/pkg/oauth"
)

// Provider is a thin binder that implements mcp-go's transport.TokenStore
// interface on top of a TokenStore. It has no storage of its own: GetToken
// reads through to the TokenStore and SaveToken persists whatever mcp-go
// writes back after a transport-driven refresh. The only local state is a
// cached ID token, since transport.Token has no field for it.
type Provider struct {
	store     *TokenStore
	serverURL string
	issuerURL string

	mu      sync.RWMutex
	idToken string
}

// NewProvider adapts store for a connection to serverURL/issuerURL.
func NewProvider(store *TokenStore, serverURL, issuerURL string) *Provider {
	return &Provider{store: store, serverURL: serverURL, issuerURL: issuerURL}
}

// GetToken returns the current token, or transport.ErrNoToken if none is
// cached yet -- mcp-go interprets that as "start the authorization flow".
func (p *Provider) GetToken(ctx context.Context) (*mcptransport.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stored, err := p.store.Get()
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.AccessToken == "" {
		return nil, mcptransport.ErrNoToken
	}

	p.mu.Lock()
	p.idToken = stored.IDToken
	p.mu.Unlock()

	return &mcptransport.Token{
		AccessToken:  stored.AccessToken,
		TokenType:    nonEmptyOr(stored.TokenType, "Bearer"),
		RefreshToken: stored.RefreshToken,
		ExpiresAt:    stored.ExpiresAt,
	}, nil
}

// SaveToken persists a token mcp-go obtained or refreshed on our behalf.
// The cached ID token is preserved, since refresh responses typically omit
// id_token.
func (p *Provider) SaveToken(ctx context.Context, token *mcptransport.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token == nil {
		return nil
	}

	p.mu.RLock()
	idToken := p.idToken
	p.mu.RUnlock()

	oauthToken := &pkgoauth.Token{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.ExpiresAt,
	}
	return p.store.Save(oauthToken, p.serverURL, p.issuerURL, idToken)
}

var _ mcptransport.TokenStore = (*Provider)(nil)

func nonEmptyOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
