// Package goGuard is the token lifecycle and access-control core of a
// REST/WebSocket backend: bearer token issuance, verification, refresh and
// revocation; role allow-lists keyed by (method, route template); an
// intrusion-detection and brute-force layer in front of every request; and a
// double-buffered audit pipeline that never blocks request handling.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. Every failure is an [*Error] whose Kind can be tested with
// errors.Is against the Err* sentinels, and [ErrorList] renders it as the
// response error list.
//
// # Architecture boundaries
//
// goGuard is the public surface. Flow orchestration, the IDS pipeline, the
// brute-force limiter and audit buffering live under internal/. Durable
// storage is reached only through [CredentialStore] and [AuditStore]; the
// store/pg package implements both on PostgreSQL.
//
// # What this package must NOT do
//
//   - Route requests. The middleware package adapts net/http and chi.
//   - Import any sub-package that re-imports goGuard (no import cycles).
//
// # Performance contract
//
// Verify is the hot path: one signature check, one revoke-before read (served
// locally when Redis.LocalTTL is set) and one marker lookup. It never touches
// the CredentialStore.
package goGuard
