// Package middleware attaches a verified caller identity to inbound HTTP
// requests.
//
// # Components
//
//   - [Authenticate] reads the Authorization header, verifies the bearer access
//     credential through a [Verifier] and stores an [Identity] in the request
//     context. It never rejects a request.
//   - [RequireIdentity] rejects requests without an Identity with 401. Mount it
//     on the routes that need authentication.
//   - [ClientMeta] records the caller IP and User-Agent for audit events.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Credential parsing
// and store access stay in the Engine; refresh credentials presented as bearer
// tokens are treated as unauthenticated.
package middleware
