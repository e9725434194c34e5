// Package auth implements the flow strategies the broker resolves through
// its registry: OAuth 2.0 authorization code (with and without PKCE),
// OAuth 1.0a three-legged, and the client credentials grant.
package auth
