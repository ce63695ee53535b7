package transport

import (
	"context"
	"regexp"
	"strings"
)

// AuthRequiredError signals that a server rejected the connection attempt
// because it requires OAuth authentication. URL is the server endpoint that
// rejected the request, for use when starting the authorization flow.
type AuthRequiredError struct {
	URL   string
	Cause error
}

func (e *AuthRequiredError) Error() string {
	return "authentication required for " + e.URL + ": " + e.Cause.Error()
}

func (e *AuthRequiredError) Unwrap() error { return e.Cause }

var unauthorizedPattern = regexp.MustCompile(`(?i)\b(401|403)\b|unauthorized|invalid[_-]?token|forbidden`)

// CheckForAuthRequiredError classifies err as an authentication challenge
// using a tolerant case-insensitive regex over the error text (401, 403,
// unauthorized, invalid_token, forbidden) (mcp-go does not currently expose a
// typed status error on these code paths, so matching on the error text is
// the only signal transports have). Returns nil when err is not a challenge.
func CheckForAuthRequiredError(ctx context.Context, err error, url string) *AuthRequiredError {
	if err == nil {
		return nil
	}
	if unauthorizedPattern.MatchString(err.Error()) {
		return &AuthRequiredError{URL: url, Cause: err}
	}
	return nil
}

// IsUnauthorized reports whether err looks like a 401/403 challenge, without
// requiring a URL. Used by the orchestrator to classify the errors its
// connection attempts (including Initialize) return.
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	return unauthorizedPattern.MatchString(strings.ToLower(err.Error()))
}
