// Package flows contains pure-function orchestrators for the Engine's token,
// login and request-guard operations.
//
// Each flow function (RunVerify, RunRefresh, RunRevoke, RunLogin, RunGuard)
// accepts a typed dependency struct and returns a result carrying a
// classified failure. The root package maps failures onto its error kinds,
// records strikes and bumps metrics; flows never do.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goGuard (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
