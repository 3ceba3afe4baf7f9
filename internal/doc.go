// Package internal holds the goGuard building blocks that are not part of
// the public API.
//
// # Sub-packages
//
//   - audit: double-buffered Redis audit streams, the async dispatcher and the memory watcher
//   - flows: pure-function orchestration for token, login and guard operations
//   - ids: request inspection, strikes and bans
//   - rate: Redis-backed brute-force limiter
//
// # What this package must NOT do
//
//   - Export types that appear in the public goGuard API.
//   - Be imported by any package outside the goGuard module.
package internal
