package oauthsession

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMetadataServer returns a server whose discovery document points
// back at itself for both the authorization and token endpoints.
func buildMetadataServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.NotEmpty(t, r.Form.Get("code_verifier"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	srv = httptest.NewServer(mux)
	return srv
}

func TestSession_FullFlow(t *testing.T) {
	srv := buildMetadataServer(t)
	defer srv.Close()

	sess := NewSession(Config{
		ServerURL: "https://example.com/mcp",
		IssuerURL: srv.URL,
		ClientID:  "test-client",
		Scopes:    []string{"offline_access", "profile"},
	})
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	authURL, err := sess.Start(ctx)
	require.NoError(t, err)
	assert.Contains(t, authURL, srv.URL+"/authorize")
	assert.Contains(t, authURL, "code_challenge=")
	assert.Contains(t, authURL, "scope=offline_access+profile")

	go func() {
		time.Sleep(10 * time.Millisecond)
		resp, err := http.Get(sess.redirectURI + "?code=abc123&state=" + sess.state)
		if err == nil {
			resp.Body.Close()
		}
	}()

	token, err := sess.WaitForAuthorizationCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token.AccessToken)
}

func TestSession_RejectsStateMismatch(t *testing.T) {
	srv := buildMetadataServer(t)
	defer srv.Close()

	sess := NewSession(Config{ServerURL: "https://example.com", IssuerURL: srv.URL})
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := sess.Start(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		resp, err := http.Get(sess.redirectURI + "?code=abc123&state=wrong-state")
		if err == nil {
			resp.Body.Close()
		}
	}()

	_, err = sess.WaitForAuthorizationCode(ctx)
	assert.Error(t, err)
}

func TestSession_DefaultsClientID(t *testing.T) {
	sess := NewSession(Config{ServerURL: "https://example.com", IssuerURL: "https://issuer.example.com"})
	assert.Equal(t, DefaultClientID, sess.clientID)
}
