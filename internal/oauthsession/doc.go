// Package oauthsession drives the OAuth 2.1 Authorization Code + PKCE flow
// used to promote a server connection from unauthenticated to authenticated
// after it reports a 401/403. It owns the loopback callback listener, PKCE
// and state generation, authorization-code exchange, and the per-definition
// token store that persists the result.
//
// A Session is single-flight: start() opens exactly one loopback listener
// and one browser tab at a time, and close() always tears the listener down
// regardless of whether a code was ever delivered.
package oauthsession
