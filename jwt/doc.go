// Package jwt signs and verifies the two credential kinds (access and refresh)
// using a single configured signing key and a closed, versioned claim shape.
//
// Verification reports exactly one of three failure classes: ErrMalformed,
// ErrBadSignature and ErrExpired. Store membership and blacklist checks are
// the caller's concern; this package performs no I/O.
package jwt
