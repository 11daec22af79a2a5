// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunLogout, RunRevokeAll,
// RunVerifyAccess) accepts a typed dependency struct and returns a result
// carrying either the payload or a classified failure kind. The root Engine
// maps failure kinds to public sentinel errors, metrics and audit events.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import credgate (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
//   - Retry. Store failures are classified and returned to the caller.
package flows
