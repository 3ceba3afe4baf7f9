// Package middleware adapts goGuard.Engine to net/http routers built on chi.
//
// [Guard] turns each request into a [goGuard.Request], runs Engine.Guard,
// and either rejects with the JSON error contract or passes the
// [goGuard.GuardResult] down through the request context. Every request
// it sees is also recorded on the activity audit stream.
//
// Mount Guard inside r.Group or r.With so that chi has already matched
// the route: the registered pattern ("/user/{userId}") is the policy key.
//
// # What this package must NOT do
//
//   - Parse or verify tokens itself (delegates to Engine).
//   - Access Redis or the credential store.
//   - Make authorization decisions beyond pass/reject from Engine.Guard.
package middleware
