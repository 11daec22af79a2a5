// Package credgate manages the lifecycle of bearer credentials: it issues
// short-lived signed access credentials and long-lived signed refresh
// credentials, rotates refresh credentials on every use, and rejects any
// consumed or superseded refresh credential as a replay.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build]. All
// shared state lives in Redis; the Engine holds no mutable per-request state.
//
// # Architecture boundaries
//
// credgate is the public surface. It exposes [Engine], [Builder], [Config] and value types
// ([Pair], [MetricsSnapshot], [AuditEvent]). Flow orchestration, rate limiting and audit
// dispatch live under internal/ and are never exported. Credential signing lives in the
// jwt package and Redis persistence in the tokenstore package.
//
// # What this package must NOT do
//
//   - Retry store operations. Store failures surface as [ErrStoreUnavailable].
//   - Distinguish signature, expiry and parse failures to callers. All of them are
//     [ErrInvalidCredential].
//   - Import any sub-package that re-imports credgate (no import cycles).
package credgate
