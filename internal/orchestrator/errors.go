package orchestrator

import "fmt"

// UnauthorizedError is returned when every connection attempt against a
// server -- including, if attempted, an OAuth promotion and its retries --
// still came back as a 401/403. Attempts is the number of connection
// attempts the post-promotion retry loop made, counting the first one; it is
// 0 when the error was returned before that loop ran.
type UnauthorizedError struct {
	Server   string
	Attempts int
	Cause    error
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%s: unauthorized after %d attempt(s): %v", e.Server, e.Attempts, e.Cause)
}

func (e *UnauthorizedError) Unwrap() error { return e.Cause }

// OAuthUnsupportedByTransportError is returned when a server's stdio
// transport reports a 401/403-shaped failure. stdio transports have no
// redirect URI to promote to, so OAuth promotion is not attempted.
type OAuthUnsupportedByTransportError struct {
	Server string
	Cause  error
}

func (e *OAuthUnsupportedByTransportError) Error() string {
	return fmt.Sprintf("%s: transport does not support OAuth promotion: %v", e.Server, e.Cause)
}

func (e *OAuthUnsupportedByTransportError) Unwrap() error { return e.Cause }

// TransportFailureError wraps a non-auth connection failure (both
// streamable-HTTP and SSE failed, or the SSE fallback isn't applicable).
type TransportFailureError struct {
	Server string
	Cause  error
}

func (e *TransportFailureError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Server, e.Cause)
}

func (e *TransportFailureError) Unwrap() error { return e.Cause }
