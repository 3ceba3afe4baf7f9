// Package revocation is the fast key-value layer consulted on every
// authenticated request: per-user revoke-before timestamps and per-token
// revocation markers that expire with the token.
package revocation
