// Package jwt signs and parses the bearer tokens handed to clients.
//
// Parse distinguishes an expired-but-authentic token from an invalid one so
// callers can offer refresh only for the former.
package jwt
