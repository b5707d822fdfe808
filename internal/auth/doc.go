// Package auth verifies bearer tokens for the monitor API and enforces scopes.
//
// Tokens are JWTs signed with HS256 (shared secret) or RS256 (PEM public key)
// carrying "sub", "roles" and "scopes" claims. With no algorithm configured,
// authentication is disabled and every request runs as the local operator.
package auth
